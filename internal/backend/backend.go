// Package backend defines the durable document store that the chunk store
// and word store persist into.
//
// A backend holds opaque document bytes keyed by string IDs inside named
// collections. It must support single-document get/set, atomic multi-document
// batches, and a full collection scan. Callers own the document encoding;
// the backend never interprets document bytes.
package backend

import (
	"context"
	"errors"
)

// Collections used by the service.
const (
	CollectionChunks = "chunks"
	CollectionMeta   = "meta"
	CollectionWords  = "words"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("backend closed")
)

// Write is a single document write inside a Batch.
type Write struct {
	Collection string
	ID         string
	Doc        []byte
}

// Document is a stored document together with its ID.
type Document struct {
	ID  string
	Doc []byte
}

// Store is a durable document store.
//
// Batch must be atomic: either every write in the batch is applied or none
// is. List returns all documents of a collection ordered by ID (byte order);
// callers needing a numeric order sort after decoding.
type Store interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Set(ctx context.Context, collection, id string, doc []byte) error
	Batch(ctx context.Context, writes []Write) error
	List(ctx context.Context, collection string) ([]Document, error)
	Close() error
}
