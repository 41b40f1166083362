package domain

import "context"

// TemplateRegistry resolves reflection types.
type TemplateRegistry interface {
	GetTemplate(id TemplateID) (*Template, error)
	ListTemplates() []*Template
}

// DraftStore persists in-progress sessions keyed by session id.
// Load returns ErrDraftNotFound when nothing is stored.
type DraftStore interface {
	SaveDraft(ctx context.Context, draft *Draft) error
	LoadDraft(ctx context.Context, id SessionID) (*Draft, error)
	DeleteDraft(ctx context.Context, id SessionID) error
}

// RecordStore is the durable home of completed reflections. Inserting an id
// that already exists must return the stored record, not an error.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *Record) (Stored, error)
}

// IdentityProvider supplies the user at submission time, or ErrNotAuthenticated.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (UserID, error)
}

// RecordReader reads a completed reflection back by id. Operator tooling
// uses it to confirm a submission landed; the engine never reads records.
type RecordReader interface {
	GetRecord(ctx context.Context, id RecordID) (*Record, error)
}

// DraftLister is implemented by draft stores that can enumerate their
// contents. Used by operator tooling, never by the engine.
type DraftLister interface {
	ListDrafts(ctx context.Context) ([]*Draft, error)
}
