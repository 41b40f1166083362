package domain

// Record is the immutable completed reflection handed to the Record Store.
type Record struct {
	ID          RecordID   `json:"id"`
	SessionID   SessionID  `json:"session_id"`
	UserID      UserID     `json:"user_id"`
	TemplateID  TemplateID `json:"template_id"`
	Answers     AnswerMap  `json:"answers"`
	CompletedAt Timestamp  `json:"completed_at"`
}

// Stored is what a Record Store returns for an accepted insert.
type Stored struct {
	RecordID RecordID
	StoredAt Timestamp
	// Duplicate is set when the store already held a record with this id.
	Duplicate bool
}

// ResultKind classifies a submission outcome.
type ResultKind string

const (
	ResultSuccess           ResultKind = "success"
	ResultValidationFailure ResultKind = "validation_failure"
	ResultTransientFailure  ResultKind = "transient_failure"
)

// SubmissionResult is returned to whoever called complete; never persisted.
type SubmissionResult struct {
	Kind     ResultKind `json:"kind"`
	RecordID RecordID   `json:"record_id,omitempty"`
	Errors   ErrorMap   `json:"errors,omitempty"`
	// Reason carries a form-level message: not authenticated, store
	// rejection or the transient cause.
	Reason string `json:"reason,omitempty"`
}

func Success(id RecordID) SubmissionResult {
	return SubmissionResult{Kind: ResultSuccess, RecordID: id}
}

func ValidationFailure(errs ErrorMap, reason string) SubmissionResult {
	return SubmissionResult{Kind: ResultValidationFailure, Errors: errs, Reason: reason}
}

func TransientFailure(reason string) SubmissionResult {
	return SubmissionResult{Kind: ResultTransientFailure, Reason: reason}
}

func (r SubmissionResult) OK() bool { return r.Kind == ResultSuccess }
