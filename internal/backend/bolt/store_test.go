package bolt

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
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

	if err := s.Set(ctx, backend.CollectionMeta, "cursor", []byte("123")); err != nil {
		t.Fatalf("set: %v", err)
	}
	doc, err := s.Get(ctx, backend.CollectionMeta, "cursor")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc) != "123" {
		t.Fatalf("expected %q, got %q", "123", doc)
	}
}

func TestLargeDocumentSurvivesCompression(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	// Well above compressThreshold, so it takes the zstd path.
	doc := []byte(strings.Repeat("abcdefgh", 1024))
	if err := s.Set(ctx, backend.CollectionChunks, "chunk_0", doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, backend.CollectionChunks, "chunk_0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, doc) {
		t.Fatalf("compressed round trip mismatch: got %d bytes, want %d", len(got), len(doc))
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

func TestListEmptyAndOrdered(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	docs, err := s.List(ctx, backend.CollectionWords)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty list, got %d docs", len(docs))
	}

	for _, id := range []string{"word_9_3", "word_10_4", "word_1_5"} {
		if err := s.Set(ctx, backend.CollectionWords, id, []byte(id)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	docs, err = s.List(ctx, backend.CollectionWords)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// bbolt iterates in byte order.
	want := []string{"word_10_4", "word_1_5", "word_9_3"}
	for i, d := range docs {
		if d.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], d.ID)
		}
	}
}

func TestValueFraming(t *testing.T) {
	small := []byte("tiny")
	framed := encodeValue(small)
	if framed[0] != markerRaw {
		t.Fatalf("small doc should stay raw, marker 0x%02x", framed[0])
	}

	big := bytes.Repeat([]byte("x"), compressThreshold*2)
	framed = encodeValue(big)
	if framed[0] != markerZstd {
		t.Fatalf("large doc should be compressed, marker 0x%02x", framed[0])
	}
	if len(framed) >= len(big) {
		t.Fatalf("compression did not shrink repetitive doc: %d >= %d", len(framed), len(big))
	}

	back, err := decodeValue(framed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(back, big) {
		t.Fatal("decode mismatch")
	}

	if _, err := decodeValue(nil); err == nil {
		t.Fatal("decode of empty value should fail")
	}
	if _, err := decodeValue([]byte{0x7f}); err == nil {
		t.Fatal("decode of unknown marker should fail")
	}
}
