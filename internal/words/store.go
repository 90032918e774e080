package words

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"monkeypress/internal/backend"
	"monkeypress/internal/logging"
	"monkeypress/internal/notify"
)

const (
	// DefaultBatchSize is the pending-hit count that forces an immediate
	// flush.
	DefaultBatchSize = 16
	// DefaultFlushInterval is the coalescing delay before pending hits are
	// flushed without the batch filling.
	DefaultFlushInterval = 5 * time.Second
)

// wordDoc is the stored form of a hit.
type wordDoc struct {
	Start     uint64 `msgpack:"start"`
	Len       int    `msgpack:"len"`
	Word      string `msgpack:"word"`
	Timestamp int64  `msgpack:"timestamp"`
}

// StoreConfig holds word store configuration.
type StoreConfig struct {
	// Backend is the durable document store. Required.
	Backend backend.Store

	// BatchSize overrides DefaultBatchSize.
	BatchSize int

	// FlushInterval overrides DefaultFlushInterval. Zero means default;
	// negative disables the background loop (tests flush manually).
	FlushInterval time.Duration

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger

	// Now is the clock used for document timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Store persists detected word hits with batched, timer-coalesced writes
// and tracks the high-water mark over all persisted positions.
//
// Add enqueues and returns immediately; a background loop flushes when the
// batch fills or the coalescing timer fires. Failed flushes keep the hits
// pending and retry on the next wakeup.
type Store struct {
	backend       backend.Store
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu        sync.Mutex
	pending   []Hit
	highWater uint64

	kick *notify.Signal
	stop chan struct{}
	done chan struct{}
}

// NewStore creates a word store over the given backend and starts its
// flush loop.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("words: backend is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		backend:       cfg.Backend,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        logging.Default(cfg.Logger).With("component", "wordstore"),
		now:           cfg.Now,
		kick:          notify.NewSignal(),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	if s.flushInterval > 0 {
		go s.flushLoop()
	} else {
		close(s.done)
	}
	return s, nil
}

// Add enqueues a hit for persistence and advances the high-water mark.
func (s *Store) Add(hit Hit) {
	s.mu.Lock()
	s.pending = append(s.pending, hit)
	if hit.End() > s.highWater {
		s.highWater = hit.End()
	}
	s.mu.Unlock()
	s.kick.Notify()
}

// HighWater returns one past the end of the latest hit seen by Add or
// LoadAll. It is monotonically non-decreasing.
func (s *Store) HighWater() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highWater
}

// PendingCount returns the number of hits not yet flushed.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes all pending hits as one atomic batch. On failure the hits
// stay pending for retry. Exported for tests that disable the loop.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	writes := make([]backend.Write, 0, len(batch))
	ts := s.now().UnixMilli()
	for _, hit := range batch {
		doc, err := msgpack.Marshal(wordDoc{
			Start:     hit.Start,
			Len:       hit.Len,
			Word:      hit.Word,
			Timestamp: ts,
		})
		if err != nil {
			return fmt.Errorf("words: encode hit: %w", err)
		}
		writes = append(writes, backend.Write{
			Collection: backend.CollectionWords,
			ID:         hit.DocID(),
			Doc:        doc,
		})
	}

	if err := s.backend.Batch(ctx, writes); err != nil {
		// Put the batch back in front of anything added meanwhile.
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		return fmt.Errorf("words: flush batch: %w", err)
	}
	return nil
}

// flushLoop coalesces Adds: a full batch flushes immediately, otherwise
// each Add restarts the coalescing timer.
func (s *Store) flushLoop() {
	defer close(s.done)

	timer := time.NewTimer(s.flushInterval)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		wake := s.kick.C()
		select {
		case <-s.stop:
			return
		case <-wake:
			if s.PendingCount() >= s.batchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				if err := s.Flush(context.Background()); err != nil {
					s.logger.Warn("word flush failed", "error", err)
				}
				continue
			}
			// Coalesce: (re)start the timer for this add.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.flushInterval)
		case <-timer.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("word flush failed", "error", err)
			}
		}
	}
}

// LoadAll reads every persisted hit ordered by start position and resets
// the high-water mark from the latest one.
func (s *Store) LoadAll(ctx context.Context) ([]Hit, error) {
	docs, err := s.backend.List(ctx, backend.CollectionWords)
	if err != nil {
		return nil, fmt.Errorf("words: load: %w", err)
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		var doc wordDoc
		if err := msgpack.Unmarshal(d.Doc, &doc); err != nil {
			return nil, fmt.Errorf("words: decode %s: %w", d.ID, err)
		}
		hits = append(hits, Hit{Start: doc.Start, Len: doc.Len, Word: doc.Word})
	}

	// Backend List order is by document ID (byte order); hits need
	// numeric start order.
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return a.Len - b.Len
		}
	})

	s.mu.Lock()
	for _, h := range hits {
		if h.End() > s.highWater {
			s.highWater = h.End()
		}
	}
	s.mu.Unlock()

	return hits, nil
}

// Close stops the flush loop and performs a final flush.
func (s *Store) Close(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done

	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("words: final flush: %w", err)
	}
	s.logger.Info("word store closed", "high_water", s.HighWater())
	return nil
}
