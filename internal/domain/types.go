package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string
type UserID string
type TemplateID string
type FieldID string
type RecordID string

type Timestamp = time.Time

// recordNamespace scopes the UUIDv5 record ids derived from session ids.
var recordNamespace = uuid.MustParse("6f1c2b7e-3d4a-5e8f-9a0b-1c2d3e4f5a6b")

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// RecordIDFor derives the record id for a session. The same session always
// yields the same record id, so a retried insert can be deduplicated by the store.
func RecordIDFor(id SessionID) RecordID {
	return RecordID(uuid.NewSHA1(recordNamespace, []byte(id)).String())
}
