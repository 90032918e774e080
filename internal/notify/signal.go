// Package notify provides small notification primitives used to wake
// background flush loops and to latch fatal conditions.
package notify

import "sync"

// Signal is an edge-triggered broadcast. Waiters select on C(), and any
// Notify() wakes all of them by closing the current channel and installing
// a fresh one. Waiters must re-call C() after each wakeup.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes all current waiters.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that is closed on the next Notify() call.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}

// Flag is a sticky one-shot condition. Once set, it stays set; the first
// Set wins and records its cause. It is used to latch fatal states such as
// a failed chunk rollover halting the generation loop.
type Flag struct {
	mu    sync.Mutex
	ch    chan struct{}
	set   bool
	cause error
}

// NewFlag creates an unset Flag.
func NewFlag() *Flag { return &Flag{ch: make(chan struct{})} }

// Set latches the flag with the given cause. Subsequent calls are no-ops.
func (f *Flag) Set(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.set = true
	f.cause = cause
	close(f.ch)
}

// IsSet reports whether the flag has been latched.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Cause returns the error recorded by the first Set, or nil.
func (f *Flag) Cause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cause
}

// Done returns a channel that is closed once the flag is set.
func (f *Flag) Done() <-chan struct{} { return f.ch }
