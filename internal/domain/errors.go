package domain

import "errors"

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrInvalidTemplate   = errors.New("invalid template")
	ErrDraftNotFound     = errors.New("draft not found")
	ErrDraftVersion      = errors.New("unsupported draft version")
	ErrDraftPersist      = errors.New("draft persistence failed")
	ErrTemplateMismatch  = errors.New("draft belongs to a different template")
	ErrIllegalTransition = errors.New("transition not allowed in current state")
	ErrUnknownField      = errors.New("field not declared by template")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrRecordNotFound    = errors.New("record not found")

	// ErrRecordRejected marks a write the store refused as malformed.
	// Retrying without changes will fail again.
	ErrRecordRejected = errors.New("record rejected by store")

	// ErrStoreUnavailable marks a timeout or connectivity failure. Retryable.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
