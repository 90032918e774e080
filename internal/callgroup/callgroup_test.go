package callgroup

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestDoSingleCall(t *testing.T) {
	var g Group[string]
	want := errors.New("boom")
	if err := g.Do("k", func() error { return want }); err != want {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestDoDeduplicatesConcurrentCalls(t *testing.T) {
	var g Group[uint64]
	var executions atomic.Int64

	gate := make(chan struct{})
	started := make(chan struct{})

	// First caller holds the key open until gate is closed.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Do(7, func() error {
			close(started)
			executions.Add(1)
			<-gate
			return nil
		})
	}()

	<-started

	const concurrent = 8
	wg.Add(concurrent)
	for range concurrent {
		go func() {
			defer wg.Done()
			g.Do(7, func() error {
				executions.Add(1)
				return nil
			})
		}()
	}

	close(gate)
	wg.Wait()

	if n := executions.Load(); n != 1 {
		t.Fatalf("expected 1 execution, got %d", n)
	}
}

func TestDoForgetsKeyAfterReturn(t *testing.T) {
	var g Group[int]
	var executions atomic.Int64

	for range 3 {
		if err := g.Do(1, func() error {
			executions.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := executions.Load(); n != 3 {
		t.Fatalf("sequential calls should each execute, got %d executions", n)
	}
}
