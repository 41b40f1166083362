package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

type Status string

const (
	StatusDraft            Status = "draft"
	StatusSubmitting       Status = "submitting"
	StatusSubmitted        Status = "submitted"
	StatusSubmissionFailed Status = "submission_failed"
)

// ReflectionSession is one user's attempt at a template.
type ReflectionSession struct {
	ID               SessionID
	TemplateID       TemplateID
	Answers          AnswerMap
	CurrentStepIndex int
	// CompletedSteps holds every step index that has validated successfully at least once.
	CompletedSteps map[int]bool
	// Errors is scoped to the current step.
	Errors        ErrorMap
	Status        Status
	FailureReason string
	StartedAt     Timestamp
	LastMutatedAt Timestamp
}

// Clone returns a deep copy safe to hand out to callers.
func (s *ReflectionSession) Clone() *ReflectionSession {
	cp := *s
	cp.Answers = s.Answers.Clone()
	cp.Errors = s.Errors.Clone()
	cp.CompletedSteps = make(map[int]bool, len(s.CompletedSteps))
	for k, v := range s.CompletedSteps {
		cp.CompletedSteps[k] = v
	}
	return &cp
}

// DraftVersion is the current persisted shape.
const DraftVersion = 1

// Draft is the persisted, resumable snapshot of a session.
type Draft struct {
	Version        int        `json:"version"`
	SessionID      SessionID  `json:"session_id"`
	TemplateID     TemplateID `json:"template_id"`
	Answers        AnswerMap  `json:"answers"`
	CurrentStep    int        `json:"current_step"`
	CompletedSteps []int      `json:"completed_steps,omitempty"`
	Errors         ErrorMap   `json:"errors,omitempty"`
	Status         Status     `json:"status"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	StartedAt      Timestamp  `json:"started_at"`
	LastMutatedAt  Timestamp  `json:"last_mutated_at"`
}

// NewDraft snapshots a session.
func NewDraft(s *ReflectionSession) *Draft {
	completed := make([]int, 0, len(s.CompletedSteps))
	for i, ok := range s.CompletedSteps {
		if ok {
			completed = append(completed, i)
		}
	}
	sort.Ints(completed)

	return &Draft{
		Version:        DraftVersion,
		SessionID:      s.ID,
		TemplateID:     s.TemplateID,
		Answers:        s.Answers.Clone(),
		CurrentStep:    s.CurrentStepIndex,
		CompletedSteps: completed,
		Errors:         s.Errors.Clone(),
		Status:         s.Status,
		FailureReason:  s.FailureReason,
		StartedAt:      s.StartedAt,
		LastMutatedAt:  s.LastMutatedAt,
	}
}

// Session rebuilds a session from the draft as-is; reconciling it with the
// current template is the engine's job.
func (d *Draft) Session() *ReflectionSession {
	completed := make(map[int]bool, len(d.CompletedSteps))
	for _, i := range d.CompletedSteps {
		completed[i] = true
	}
	answers := d.Answers.Clone()
	errs := d.Errors.Clone()
	return &ReflectionSession{
		ID:               d.SessionID,
		TemplateID:       d.TemplateID,
		Answers:          answers,
		CurrentStepIndex: d.CurrentStep,
		CompletedSteps:   completed,
		Errors:           errs,
		Status:           d.Status,
		FailureReason:    d.FailureReason,
		StartedAt:        d.StartedAt,
		LastMutatedAt:    d.LastMutatedAt,
	}
}

// EncodeDraft serializes a draft to the JSON blob stored by draft backends.
func EncodeDraft(d *Draft) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode draft %s: %w", d.SessionID, err)
	}
	return b, nil
}

// DecodeDraft parses a stored blob, rejecting versions newer than this build knows.
func DecodeDraft(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if d.Version == 0 {
		// blobs written before versioning carry no version field
		d.Version = DraftVersion
	}
	if d.Version > DraftVersion {
		return nil, fmt.Errorf("%w: got %d, support up to %d", ErrDraftVersion, d.Version, DraftVersion)
	}
	if d.Answers == nil {
		d.Answers = AnswerMap{}
	}
	return &d, nil
}
