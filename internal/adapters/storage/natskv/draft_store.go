// Package natskv stores drafts in a NATS JetStream key-value bucket, one
// key per session id.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/PabloGalante/farum-reflect/internal/domain"
)

const DefaultBucket = "farum_drafts"

// Options configures the draft bucket.
type Options struct {
	Bucket  string
	Timeout time.Duration // per operation
}

// DefaultOptions returns the bucket name and timeout used by the service.
func DefaultOptions() Options {
	return Options{
		Bucket:  DefaultBucket,
		Timeout: 5 * time.Second,
	}
}

// DraftStore implements domain.DraftStore on a JetStream KV bucket.
// Writes are last-writer-wins; drafts carry no TTL.
type DraftStore struct {
	kv      jetstream.KeyValue
	options Options
}

// Connect dials NATS and opens the JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("farum-reflect"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return nc, js, nil
}

// NewDraftStore creates the bucket if needed and returns a store on it.
func NewDraftStore(ctx context.Context, js jetstream.JetStream, opts Options) (*DraftStore, error) {
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      opts.Bucket,
		Description: "in-progress reflection drafts keyed by session id",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening kv bucket %s: %w", opts.Bucket, err)
	}

	return &DraftStore{kv: kv, options: opts}, nil
}

func (s *DraftStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.options.Timeout > 0 {
		return context.WithTimeout(ctx, s.options.Timeout)
	}
	return ctx, func() {}
}

func (s *DraftStore) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	blob, err := domain.EncodeDraft(draft)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.kv.Put(ctx, string(draft.SessionID), blob); err != nil {
		return fmt.Errorf("kv put %s: %w", draft.SessionID, err)
	}
	return nil
}

func (s *DraftStore) LoadDraft(ctx context.Context, id domain.SessionID) (*domain.Draft, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, string(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDraftNotFound, id)
		}
		return nil, fmt.Errorf("kv get %s: %w", id, err)
	}
	return domain.DecodeDraft(entry.Value())
}

func (s *DraftStore) DeleteDraft(ctx context.Context, id domain.SessionID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.kv.Delete(ctx, string(id)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", id, err)
	}
	return nil
}

// ListDrafts returns every live draft in the bucket.
func (s *DraftStore) ListDrafts(ctx context.Context) ([]*domain.Draft, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []*domain.Draft
	for key := range lister.Keys() {
		d, err := s.LoadDraft(ctx, domain.SessionID(key))
		if err != nil {
			if errors.Is(err, domain.ErrDraftNotFound) {
				// deleted between listing and reading
				continue
			}
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
