package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"monkeypress/internal/backend"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monkeypress.db")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, path
}

func TestGetSetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, backend.CollectionMeta, "cursor"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, backend.CollectionMeta, "cursor", []byte("99")); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, err := s.Get(ctx, backend.CollectionMeta, "cursor")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc) != "99" {
		t.Fatalf("expected %q, got %q", "99", doc)
	}

	// Overwrite through the upsert path.
	if err := s.Set(ctx, backend.CollectionMeta, "cursor", []byte("100")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	doc, err = s.Get(ctx, backend.CollectionMeta, "cursor")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if string(doc) != "100" {
		t.Fatalf("expected %q, got %q", "100", doc)
	}
}

func TestBatchThenReopen(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	writes := []backend.Write{
		{Collection: backend.CollectionChunks, ID: "chunk_0", Doc: []byte("abcd")},
		{Collection: backend.CollectionMeta, ID: "cursor", Doc: []byte("4")},
	}
	if err := s.Batch(ctx, writes); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for _, w := range writes {
		doc, err := reopened.Get(ctx, w.Collection, w.ID)
		if err != nil {
			t.Fatalf("get %s/%s after reopen: %v", w.Collection, w.ID, err)
		}
		if string(doc) != string(w.Doc) {
			t.Fatalf("%s/%s: expected %q, got %q", w.Collection, w.ID, w.Doc, doc)
		}
	}
}

func TestListOrderedByID(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []string{"word_9_3", "word_10_4", "word_1_5"} {
		if err := s.Set(ctx, backend.CollectionWords, id, []byte(id)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	docs, err := s.List(ctx, backend.CollectionWords)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"word_10_4", "word_1_5", "word_9_3"}
	if len(docs) != len(want) {
		t.Fatalf("expected %d docs, got %d", len(want), len(docs))
	}
	for i, d := range docs {
		if d.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], d.ID)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s, path := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Opening a second time re-runs runMigrations against an already
	// migrated database; applied versions must be skipped.
	again, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen with existing schema: %v", err)
	}
	again.Close()
}
