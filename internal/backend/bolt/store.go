// Package bolt provides a bbolt-backed backend.Store.
//
// Each collection maps to a bucket; a Batch is a single read-write
// transaction, which gives the atomic multi-document semantics the chunk
// store's rollover depends on. Document values above a size threshold are
// zstd-compressed at rest (chunk documents compress well, word documents
// stay raw).
package bolt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	bbolt "go.etcd.io/bbolt"

	"monkeypress/internal/backend"
	"monkeypress/internal/logging"
)

// Store is a bbolt-backed document store.
type Store struct {
	db     *bbolt.DB
	path   string
	logger *slog.Logger
}

var _ backend.Store = (*Store)(nil)

// NewStore opens (or creates) a bolt database at path.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logging.Default(logger).With("component", "backend", "type", "bolt"),
	}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return backend.ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return backend.ErrNotFound
		}
		plain, err := decodeValue(v)
		if err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		doc = plain
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc []byte) error {
	return s.Batch(ctx, []backend.Write{{Collection: collection, ID: id, Doc: doc}})
}

func (s *Store) Batch(ctx context.Context, writes []backend.Write) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, w := range writes {
			b, err := tx.CreateBucketIfNotExists([]byte(w.Collection))
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", w.Collection, err)
			}
			if err := b.Put([]byte(w.ID), encodeValue(w.Doc)); err != nil {
				return fmt.Errorf("put %s/%s: %w", w.Collection, w.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, collection string) ([]backend.Document, error) {
	var docs []backend.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			plain, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", collection, k, err)
			}
			docs = append(docs, backend.Document{ID: string(k), Doc: slices.Clone(plain)})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) Close() error {
	s.logger.Info("closing bolt backend", "path", s.path)
	return s.db.Close()
}
