// Package callgroup deduplicates concurrent calls by key.
//
// When several goroutines request the same key at once, only one runs the
// function; the rest block until it finishes and share its error. The key is
// forgotten once the call returns, so later calls execute fresh. The chunk
// store uses this to collapse a read stampede on a cold chunk into a single
// backend fetch.
package callgroup

import "sync"

// Group deduplicates concurrent function calls by key.
// The zero value is ready to use.
type Group[K comparable] struct {
	mu    sync.Mutex
	calls map[K]*call
}

type call struct {
	done chan struct{}
	err  error
}

// Do executes fn if no call for key is in flight, otherwise waits for the
// in-flight call and returns its error. Do blocks until the result is
// available.
func (g *Group[K]) Do(key K, fn func() error) error {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call)
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.err
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.err
}
