// Package memory provides an in-memory backend.Store. It is the default for
// development and the standard test double; contents vanish on restart.
package memory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"monkeypress/internal/backend"
	"monkeypress/internal/logging"
)

// Store is an in-memory document store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	closed bool
	data   map[string]map[string][]byte // collection -> id -> doc

	logger *slog.Logger
}

var _ backend.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{
		data:   make(map[string]map[string][]byte),
		logger: logging.Default(logger).With("component", "backend", "type", "memory"),
	}
}

func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, backend.ErrClosed
	}
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return slices.Clone(doc), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, doc []byte) error {
	return s.Batch(ctx, []backend.Write{{Collection: collection, ID: id, Doc: doc}})
}

func (s *Store) Batch(ctx context.Context, writes []backend.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	for _, w := range writes {
		col, ok := s.data[w.Collection]
		if !ok {
			col = make(map[string][]byte)
			s.data[w.Collection] = col
		}
		col[w.ID] = slices.Clone(w.Doc)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]backend.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, backend.ErrClosed
	}
	col := s.data[collection]
	docs := make([]backend.Document, 0, len(col))
	for id, doc := range col {
		docs = append(docs, backend.Document{ID: id, Doc: slices.Clone(doc)})
	}
	slices.SortFunc(docs, func(a, b backend.Document) int {
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
