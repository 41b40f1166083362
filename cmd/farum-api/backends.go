package main

import (
	"context"
	"errors"
	"fmt"

	firestorestore "github.com/PabloGalante/farum-reflect/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-reflect/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-reflect/internal/adapters/storage/natskv"
	"github.com/PabloGalante/farum-reflect/internal/config"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// backends holds the configured stores and whatever they need closed.
type backends struct {
	drafts  domain.DraftStore
	records domain.RecordStore
	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	log := observability.Logger()
	b := &backends{}

	// 1 Firestore client serves both stores when both ask for it
	var fs *firestorestore.Store
	firestore := func() (*firestorestore.Store, error) {
		if fs != nil {
			return fs, nil
		}
		s, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		b.closers = append(b.closers, s.Close)
		fs = s
		return s, nil
	}

	switch cfg.DraftBackend {
	case config.BackendFirestore:
		s, err := firestore()
		if err != nil {
			return nil, b.fail(err)
		}
		b.drafts = s

	case config.BackendNATS:
		nc, js, err := natskv.Connect(cfg.NATSURL)
		if err != nil {
			return nil, b.fail(err)
		}
		b.closers = append(b.closers, func() error { return nc.Drain() })

		opts := natskv.DefaultOptions()
		opts.Bucket = cfg.NATSBucket
		s, err := natskv.NewDraftStore(ctx, js, opts)
		if err != nil {
			return nil, b.fail(err)
		}
		log.Info("using nats kv drafts", "url", cfg.NATSURL, "bucket", cfg.NATSBucket)
		b.drafts = s

	default:
		log.Info("using in-memory drafts")
		b.drafts = memstore.NewDraftStore()
	}

	switch cfg.RecordBackend {
	case config.BackendFirestore:
		s, err := firestore()
		if err != nil {
			return nil, b.fail(err)
		}
		b.records = s

	default:
		log.Info("using in-memory records")
		b.records = memstore.NewRecordStore()
	}

	return b, nil
}

// fail closes whatever was opened before err.
func (b *backends) fail(err error) error {
	if cerr := b.Close(); cerr != nil {
		return fmt.Errorf("%w (closing: %v)", err, cerr)
	}
	return err
}
