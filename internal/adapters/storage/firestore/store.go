package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

const (
	draftsCollection  = "drafts"
	recordsCollection = "reflections"
)

// Store keeps drafts and completed reflections in Firestore.
// One store implements both domain.DraftStore and domain.RecordStore.
type Store struct {
	client *firestore.Client
	now    func() time.Time
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, now: time.Now}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) draftDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.client.Collection(draftsCollection).Doc(string(id))
}

func (s *Store) recordDoc(id domain.RecordID) *firestore.DocumentRef {
	return s.client.Collection(recordsCollection).Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

// draftDoc stores the encoded draft as an opaque blob next to a few
// queryable columns.
type draftDoc struct {
	TemplateID string    `firestore:"template_id"`
	Version    int       `firestore:"version"`
	Payload    string    `firestore:"payload"`
	UpdatedAt  time.Time `firestore:"updated_at"`
}

type recordDoc struct {
	SessionID   string         `firestore:"session_id"`
	UserID      string         `firestore:"user_id"`
	TemplateID  string         `firestore:"template_id"`
	Answers     map[string]any `firestore:"answers"`
	CompletedAt time.Time      `firestore:"completed_at"`
	StoredAt    time.Time      `firestore:"stored_at"`
}

// ─────────────────────────────────────────
// DraftStore implementation
// ─────────────────────────────────────────

func (s *Store) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	blob, err := domain.EncodeDraft(draft)
	if err != nil {
		return err
	}

	doc := draftDoc{
		TemplateID: string(draft.TemplateID),
		Version:    draft.Version,
		Payload:    string(blob),
		UpdatedAt:  draft.LastMutatedAt,
	}

	if _, err := s.draftDoc(draft.SessionID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore SaveDraft: %w", mapError(err))
	}
	return nil
}

func (s *Store) LoadDraft(ctx context.Context, id domain.SessionID) (*domain.Draft, error) {
	snap, err := s.draftDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrDraftNotFound, id)
		}
		return nil, fmt.Errorf("firestore LoadDraft: %w", mapError(err))
	}

	var doc draftDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore LoadDraft decode: %w", err)
	}
	return domain.DecodeDraft([]byte(doc.Payload))
}

// DeleteDraft succeeds for documents that do not exist.
func (s *Store) DeleteDraft(ctx context.Context, id domain.SessionID) error {
	if _, err := s.draftDoc(id).Delete(ctx); err != nil {
		return fmt.Errorf("firestore DeleteDraft: %w", mapError(err))
	}
	return nil
}

// ListDrafts returns every stored draft, most recently changed first.
func (s *Store) ListDrafts(ctx context.Context) ([]*domain.Draft, error) {
	iter := s.client.Collection(draftsCollection).OrderBy("updated_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Draft
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListDrafts: %w", mapError(err))
		}

		var doc draftDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode draftDoc: %w", err)
		}
		d, err := domain.DecodeDraft([]byte(doc.Payload))
		if err != nil {
			return nil, fmt.Errorf("draft %s: %w", snap.Ref.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ─────────────────────────────────────────
// RecordStore implementation
// ─────────────────────────────────────────

// InsertRecord creates the document named by the record id. Create fails
// with AlreadyExists on a retry, which is answered with the stored copy.
func (s *Store) InsertRecord(ctx context.Context, rec *domain.Record) (domain.Stored, error) {
	if rec.UserID == "" {
		return domain.Stored{}, fmt.Errorf("%w: missing user id", domain.ErrRecordRejected)
	}

	answers := make(map[string]any, len(rec.Answers))
	for id, v := range rec.Answers {
		answers[string(id)] = v.Interface()
	}

	now := s.now().UTC()
	doc := recordDoc{
		SessionID:   string(rec.SessionID),
		UserID:      string(rec.UserID),
		TemplateID:  string(rec.TemplateID),
		Answers:     answers,
		CompletedAt: rec.CompletedAt,
		StoredAt:    now,
	}

	_, err := s.recordDoc(rec.ID).Create(ctx, doc)
	if err == nil {
		return domain.Stored{RecordID: rec.ID, StoredAt: now}, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return domain.Stored{}, fmt.Errorf("firestore InsertRecord: %w", mapError(err))
	}

	snap, getErr := s.recordDoc(rec.ID).Get(ctx)
	if getErr != nil {
		return domain.Stored{}, fmt.Errorf("firestore InsertRecord read-back: %w", mapError(getErr))
	}
	var existing recordDoc
	if err := snap.DataTo(&existing); err != nil {
		return domain.Stored{}, fmt.Errorf("firestore InsertRecord decode: %w", err)
	}
	return domain.Stored{RecordID: rec.ID, StoredAt: existing.StoredAt, Duplicate: true}, nil
}

// GetRecord implements domain.RecordReader; `farum-api record` calls it.
func (s *Store) GetRecord(ctx context.Context, id domain.RecordID) (*domain.Record, error) {
	snap, err := s.recordDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("firestore GetRecord: %w", mapError(err))
	}

	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetRecord decode: %w", err)
	}

	answers := make(domain.AnswerMap, len(doc.Answers))
	for k, raw := range doc.Answers {
		v, err := domain.ValueFromInterface(raw)
		if err != nil {
			return nil, fmt.Errorf("firestore GetRecord answer %s: %w", k, err)
		}
		answers[domain.FieldID(k)] = v
	}

	return &domain.Record{
		ID:          id,
		SessionID:   domain.SessionID(doc.SessionID),
		UserID:      domain.UserID(doc.UserID),
		TemplateID:  domain.TemplateID(doc.TemplateID),
		Answers:     answers,
		CompletedAt: doc.CompletedAt,
	}, nil
}

// mapError tags gRPC failures with the domain taxonomy so the submission
// controller can tell a rejected write from a retryable one.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied, codes.OutOfRange:
		return fmt.Errorf("%w: %w", domain.ErrRecordRejected, err)
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted, codes.Internal, codes.Canceled:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	default:
		return err
	}
}
