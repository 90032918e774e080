// Package engine drives the generator at a rate derived from the audience
// and fans the resulting events out to subscribers.
//
// The core is a single-writer loop: one tick task executes
// monkey.Next -> detector.Push -> broadcast, and nothing else writes the
// cursor, the detector window, or the in-memory hit list. Subscribers are
// decoupled through buffered channels; a snapshot is sequenced before the
// subscriber joins the broadcast set, so no live event between the two can
// be missed.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - The engine owns its scoped logger (component="engine")
//   - Subscriber connect/disconnect and halts are logged; ticks are not
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"monkeypress/internal/chunkstore"
	"monkeypress/internal/generator"
	"monkeypress/internal/logging"
	"monkeypress/internal/notify"
	"monkeypress/internal/words"
)

const (
	// StepInterval is the generation tick period (60 Hz).
	StepInterval = time.Second / 60
	// CharsPerUserPerMinute scales audience size to throughput.
	CharsPerUserPerMinute = 5
	// BaselineUsers is the simulated audience added in test mode.
	BaselineUsers = 250
	// jitterSpan is the width of the test-mode audience jitter.
	jitterSpan = 50
)

// Config holds engine configuration.
type Config struct {
	// Chunks is the durable character store. Required.
	Chunks *chunkstore.Store
	// Words is the hit persistence store. Required.
	Words *words.Store
	// Dictionary drives detection. Required.
	Dictionary *words.Dictionary

	// TestMode adds the jittered baseline audience so the stream moves
	// without real viewers.
	TestMode bool

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Engine wires generator, detector, word store and subscribers together.
type Engine struct {
	chunks    *chunkstore.Store
	wordStore *words.Store
	monkey    *generator.Monkey
	detector  *words.Detector
	dict      *words.Dictionary
	testMode  bool
	logger    *slog.Logger
	rng       *rand.Rand

	halted  *notify.Flag
	started time.Time

	mu    sync.Mutex
	subs  map[uuid.UUID]*Subscriber
	hits  []words.Hit
	carry float64
}

// New creates an Engine. Reconcile must be called before Run.
func New(cfg Config) (*Engine, error) {
	if cfg.Chunks == nil || cfg.Words == nil || cfg.Dictionary == nil {
		return nil, fmt.Errorf("engine: chunks, words and dictionary are required")
	}
	return &Engine{
		chunks:    cfg.Chunks,
		wordStore: cfg.Words,
		monkey:    generator.NewMonkey(cfg.Chunks),
		detector:  words.NewDetector(cfg.Dictionary),
		dict:      cfg.Dictionary,
		testMode:  cfg.TestMode,
		logger:    logging.Default(cfg.Logger).With("component", "engine"),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		halted:    notify.NewFlag(),
		started:   time.Now(),
		subs:      make(map[uuid.UUID]*Subscriber),
	}, nil
}

// Reconcile recovers the word index after a restart: it loads persisted
// hits, rescans the gap up to the cursor, persists anything missed, and
// primes the detector window with the characters just before the cursor so
// a word spanning the restart point is still recognized. It must complete
// before the engine accepts subscribers.
func (e *Engine) Reconcile(ctx context.Context) error {
	persisted, err := e.wordStore.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("engine: load words: %w", err)
	}

	missed, err := words.Rescan(ctx, e.chunks, e.dict, e.wordStore.HighWater())
	if err != nil {
		return fmt.Errorf("engine: rescan: %w", err)
	}
	for _, hit := range missed {
		e.wordStore.Add(hit)
	}

	all := append(persisted, missed...)
	slices.SortFunc(all, func(a, b words.Hit) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return a.Len - b.Len
		}
	})

	if err := e.primeDetector(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.hits = all
	e.mu.Unlock()

	e.logger.Info("word index reconciled",
		"persisted", len(persisted), "rescanned", len(missed), "cursor", e.chunks.Cursor())
	return nil
}

// primeDetector replays the last MaxWordLen-1 characters into a fresh
// window. Emitted hits are discarded; they end before the cursor and were
// already handled by the rescan.
func (e *Engine) primeDetector(ctx context.Context) error {
	cursor := e.chunks.Cursor()
	if cursor == 0 {
		return nil
	}
	n := uint64(words.MaxWordLen - 1)
	if cursor < n {
		n = cursor
	}
	text, err := e.chunks.ReadSlice(ctx, cursor-n, int(n))
	if err != nil {
		return fmt.Errorf("engine: prime detector: %w", err)
	}
	e.detector.Reset()
	for i := 0; i < len(text); i++ {
		e.detector.Push(text[i], cursor-n+uint64(i))
	}
	return nil
}

// Run executes the generation loop until ctx is cancelled or a fatal store
// error halts generation. A halt is sticky and surfaces through Healthy.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("generation loop starting",
		"step", StepInterval, "test_mode", e.testMode)

	ticker := time.NewTicker(StepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("generation loop stopped")
			return nil
		case <-ticker.C:
			if err := e.step(ctx, StepInterval); err != nil {
				e.halted.Set(err)
				e.logger.Error("generation halted", "error", err)
				return err
			}
		}
	}
}

// step emits the characters owed for one tick. The fractional remainder is
// carried so throughput does not drift.
func (e *Engine) step(ctx context.Context, dt time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cps := float64(e.usersOnlineLocked()*CharsPerUserPerMinute) / 60
	e.carry += cps * dt.Seconds()
	n := int(e.carry)
	e.carry -= float64(n)

	for range n {
		emit, err := e.monkey.Next(ctx)
		if err != nil {
			return err
		}
		e.broadcastLocked(Char{Index: emit.Index, Ch: string(emit.Ch)})

		if hit, ok := e.detector.Push(emit.Ch, emit.Index); ok {
			e.hits = append(e.hits, hit)
			e.broadcastLocked(Word(hit))
			e.wordStore.Add(hit)
		}
	}
	return nil
}

// usersOnlineLocked returns the audience size driving the rate. Caller
// holds e.mu.
func (e *Engine) usersOnlineLocked() int {
	users := len(e.subs)
	if e.testMode {
		users += BaselineUsers + e.rng.IntN(jitterSpan) - jitterSpan/2
	}
	if users < 0 {
		users = 0
	}
	return users
}

// broadcastLocked delivers ev to every subscriber. Slow subscribers lose
// events rather than stall the writer. Caller holds e.mu.
func (e *Engine) broadcastLocked(ev Event) {
	for _, sub := range e.subs {
		select {
		case sub.events <- ev:
		default:
			sub.dropped++
		}
	}
}

// Subscribe registers a new subscriber. The snapshot is queued before the
// subscriber joins the broadcast set, so the first live Char it receives
// has an index at or after the snapshot cursor.
func (e *Engine) Subscribe() *Subscriber {
	sub := newSubscriber()

	e.mu.Lock()
	snapshot := Snapshot{
		Cursor: e.chunks.Cursor(),
		Words:  slices.Clone(e.hits),
	}
	sub.events <- snapshot
	e.subs[sub.id] = sub
	count := len(e.subs)
	e.mu.Unlock()

	e.logger.Info("subscriber connected", "name", sub.name, "subscribers", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its event channel.
func (e *Engine) Unsubscribe(sub *Subscriber) {
	e.mu.Lock()
	if _, ok := e.subs[sub.id]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.subs, sub.id)
	dropped := sub.dropped
	count := len(e.subs)
	close(sub.events)
	e.mu.Unlock()

	e.logger.Info("subscriber disconnected",
		"name", sub.name, "dropped_events", dropped, "subscribers", count)
}

// Healthy reports whether generation is still running.
func (e *Engine) Healthy() bool { return !e.halted.IsSet() }

// HaltCause returns the error that halted generation, or nil.
func (e *Engine) HaltCause() error { return e.halted.Cause() }

// Subscribers returns the number of connected subscribers.
func (e *Engine) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// UsersOnline returns the audience size currently driving the rate.
func (e *Engine) UsersOnline() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usersOnlineLocked()
}

// CharsPerMinute returns the current nominal throughput.
func (e *Engine) CharsPerMinute() int {
	return e.UsersOnline() * CharsPerUserPerMinute
}

// WordCount returns the number of hits detected so far.
func (e *Engine) WordCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.hits)
}

// Uptime returns the time since the engine was created.
func (e *Engine) Uptime() time.Duration { return time.Since(e.started) }
