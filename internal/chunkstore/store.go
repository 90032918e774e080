// Package chunkstore provides durable, append-only character storage
// addressable by absolute index.
//
// The stream is partitioned into fixed-size chunks. The chunk at the cursor
// (the "working" chunk) lives in RAM and is mirrored to the backend together
// with the cursor on a flush tick; finished chunks are immutable and served
// from a bounded LRU over the backend. Every flush writes the working chunk
// text and the cursor in one atomic batch, so a restart can never observe a
// cursor ahead of its chunk text.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - The store owns its scoped logger (component="chunkstore")
//   - Logging is sparse; lifecycle events and flush failures only
//   - No logging in Append or the read path
package chunkstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vmihailenco/msgpack/v5"

	"monkeypress/internal/backend"
	"monkeypress/internal/callgroup"
	"monkeypress/internal/logging"
)

const (
	// DefaultChunkSize is the number of characters per finished chunk.
	DefaultChunkSize = 8192
	// DefaultFlushInterval is how often the dirty working chunk and cursor
	// are mirrored to the backend.
	DefaultFlushInterval = 2 * time.Second
	// lruEntries bounds the finished-chunk cache.
	lruEntries = 32
)

// chunkDoc is the stored form of a chunk.
type chunkDoc struct {
	Text string `msgpack:"text"`
}

// cursorDoc is the stored form of the cursor.
type cursorDoc struct {
	Index uint64 `msgpack:"index"`
}

func chunkDocID(id uint64) string { return fmt.Sprintf("chunk_%d", id) }

const cursorDocID = "cursor"

// Config holds chunk store configuration.
type Config struct {
	// Backend is the durable document store. Required.
	Backend backend.Store

	// ChunkSize overrides DefaultChunkSize. Tests use small sizes to
	// exercise rollover cheaply.
	ChunkSize int

	// FlushInterval overrides DefaultFlushInterval. Zero means default;
	// negative disables the background flush loop (tests flush manually).
	FlushInterval time.Duration

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Store is the append-only chunked character store.
//
// Append is called by a single logical writer (the generation loop). Reads
// may run concurrently with the writer; they always observe either the pre-
// or post-append state of any single append.
type Store struct {
	backend       backend.Store
	chunkSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	cursor    uint64
	workingID uint64
	working   []byte
	dirty     bool

	cache *lru.Cache[uint64, string]
	fetch callgroup.Group[uint64]

	stop chan struct{}
	done chan struct{}
}

// Open creates a Store over the given backend, recovering the cursor and
// working chunk persisted by a previous run. With a fresh backend the
// cursor starts at zero.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("chunkstore: backend is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	cache, err := lru.New[uint64, string](lruEntries)
	if err != nil {
		return nil, fmt.Errorf("chunkstore: create cache: %w", err)
	}

	s := &Store{
		backend:       cfg.Backend,
		chunkSize:     cfg.ChunkSize,
		flushInterval: cfg.FlushInterval,
		logger:        logging.Default(cfg.Logger).With("component", "chunkstore"),
		cache:         cache,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if err := s.recover(ctx); err != nil {
		return nil, err
	}

	if s.flushInterval > 0 {
		go s.flushLoop()
	} else {
		close(s.done)
	}

	s.logger.Info("chunk store opened",
		"cursor", s.cursor, "working_chunk", s.workingID, "chunk_size", s.chunkSize)
	return s, nil
}

// recover loads the persisted cursor and adopts the working chunk.
func (s *Store) recover(ctx context.Context) error {
	doc, err := s.backend.Get(ctx, backend.CollectionMeta, cursorDocID)
	switch {
	case err == nil:
		var cur cursorDoc
		if err := msgpack.Unmarshal(doc, &cur); err != nil {
			return fmt.Errorf("chunkstore: decode cursor: %w", err)
		}
		s.cursor = cur.Index
	case err == backend.ErrNotFound:
		s.cursor = 0
	default:
		return fmt.Errorf("chunkstore: read cursor: %w", err)
	}

	s.workingID = s.cursor / uint64(s.chunkSize)

	text, err := s.fetchChunkDoc(ctx, s.workingID)
	if err != nil {
		return fmt.Errorf("chunkstore: read working chunk: %w", err)
	}

	if len(text) == s.chunkSize {
		// The chunk at the cursor is already full: the cursor document
		// lagged a rollover. Seat it in the cache and roll forward.
		s.cache.Add(s.workingID, text)
		s.workingID++
		s.cursor = s.workingID * uint64(s.chunkSize)
		return nil
	}

	s.working = []byte(text)
	if got := s.cursor % uint64(s.chunkSize); uint64(len(s.working)) != got {
		// Cursor and working text are written in one batch, so a mismatch
		// means a foreign or damaged backend. Trust the text: the
		// generator regenerates any lost suffix identically.
		s.logger.Warn("cursor does not match working chunk length, truncating",
			"cursor", s.cursor, "working_len", len(s.working))
		s.cursor = s.workingID*uint64(s.chunkSize) + uint64(len(s.working))
	}
	return nil
}

// Append stores ch at the current cursor and returns its absolute index.
// Must be called by a single writer. On a rollover failure neither the
// working chunk nor the cursor advance, and the error is fatal to
// generation.
func (s *Store) Append(ctx context.Context, ch byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cursor
	s.working = append(s.working, ch)
	s.cursor++
	s.dirty = true

	if len(s.working) == s.chunkSize {
		if err := s.writeStateLocked(ctx); err != nil {
			// Roll back: the character was never durably committable.
			s.working = s.working[:len(s.working)-1]
			s.cursor--
			return 0, fmt.Errorf("chunkstore: chunk rollover: %w", err)
		}
		s.cache.Add(s.workingID, string(s.working))
		s.workingID++
		s.working = nil
		s.dirty = false
	}

	return idx, nil
}

// writeStateLocked persists the working chunk text and cursor in one atomic
// batch. Caller holds s.mu.
func (s *Store) writeStateLocked(ctx context.Context) error {
	chunkBytes, err := msgpack.Marshal(chunkDoc{Text: string(s.working)})
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	cursorBytes, err := msgpack.Marshal(cursorDoc{Index: s.cursor})
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	return s.backend.Batch(ctx, []backend.Write{
		{Collection: backend.CollectionChunks, ID: chunkDocID(s.workingID), Doc: chunkBytes},
		{Collection: backend.CollectionMeta, ID: cursorDocID, Doc: cursorBytes},
	})
}

// Flush mirrors the working chunk and cursor to the backend if anything
// changed since the last flush. It is called by the background loop and by
// Close; exported for tests that disable the loop.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.writeStateLocked(ctx); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// Write failures leave the dirty flag set; the next tick
			// retries the identical idempotent batch.
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("cursor flush failed", "error", err)
			}
		}
	}
}

// ReadChunk returns the text of chunk id. The working chunk reflects all
// appends committed before the call; chunks past the cursor read as empty.
func (s *Store) ReadChunk(ctx context.Context, id uint64) (string, error) {
	s.mu.Lock()
	if id == s.workingID {
		text := string(s.working)
		s.mu.Unlock()
		return text, nil
	}
	if id > s.workingID {
		s.mu.Unlock()
		return "", nil
	}
	s.mu.Unlock()

	if text, ok := s.cache.Get(id); ok {
		return text, nil
	}

	// Collapse concurrent cold reads of the same chunk into one fetch.
	var text string
	err := s.fetch.Do(id, func() error {
		if cached, ok := s.cache.Get(id); ok {
			text = cached
			return nil
		}
		fetched, err := s.fetchChunkDoc(ctx, id)
		if err != nil {
			return err
		}
		s.cache.Add(id, fetched)
		text = fetched
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		// Shared a fetch that ran under another caller's closure; the
		// winner installed the chunk in the cache.
		if cached, ok := s.cache.Get(id); ok {
			return cached, nil
		}
		return s.fetchChunkDoc(ctx, id)
	}
	return text, nil
}

// fetchChunkDoc reads a chunk document from the backend. A missing document
// reads as the empty string.
func (s *Store) fetchChunkDoc(ctx context.Context, id uint64) (string, error) {
	doc, err := s.backend.Get(ctx, backend.CollectionChunks, chunkDocID(id))
	if err == backend.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var c chunkDoc
	if err := msgpack.Unmarshal(doc, &c); err != nil {
		return "", fmt.Errorf("decode chunk %d: %w", id, err)
	}
	return c.Text, nil
}

// ReadSlice returns length characters of the stream starting at absolute
// index start. Requests extending past the cursor return a short string;
// length <= 0 returns the empty string.
func (s *Store) ReadSlice(ctx context.Context, start uint64, length int) (string, error) {
	if length <= 0 {
		return "", nil
	}

	size := uint64(s.chunkSize)
	first := start / size
	last := (start + uint64(length) - 1) / size

	var joined []byte
	for id := first; id <= last; id++ {
		text, err := s.ReadChunk(ctx, id)
		if err != nil {
			return "", fmt.Errorf("chunkstore: read slice: %w", err)
		}
		joined = append(joined, text...)
		if len(text) < s.chunkSize {
			// Short chunk: we hit the working chunk or the end of the
			// stream; later chunks cannot contribute.
			break
		}
	}

	offset := start - first*size
	if offset >= uint64(len(joined)) {
		return "", nil
	}
	end := offset + uint64(length)
	if end > uint64(len(joined)) {
		end = uint64(len(joined))
	}
	return string(joined[offset:end]), nil
}

// Cursor returns the absolute index of the next character to be written.
func (s *Store) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// ChunkCount returns the number of chunks holding at least one character.
func (s *Store) ChunkCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.workingID
	if len(s.working) > 0 {
		n++
	}
	return n
}

// ChunkSize returns the configured chunk size.
func (s *Store) ChunkSize() int { return s.chunkSize }

// Close stops the flush loop and performs a final synchronous flush, after
// which the persisted cursor equals the in-memory cursor.
func (s *Store) Close(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done

	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("chunkstore: final flush: %w", err)
	}
	s.logger.Info("chunk store closed", "cursor", s.Cursor())
	return nil
}
