package core

import (
	"context"
	"sync"

	"pkt.systems/hostbridge/schema"
)

// Future is the pending result of work scheduled on the host thread.
// It resolves exactly once; waiters block on Done and never poll.
type Future struct {
	once      sync.Once
	done      chan struct{}
	result    schema.CommandResult
	cancelled bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that already holds result.
func Resolved(result schema.CommandResult) *Future {
	f := newFuture()
	f.resolve(result)
	return f
}

func cancelledFuture() *Future {
	f := newFuture()
	f.cancel()
	return f
}

func (f *Future) resolve(result schema.CommandResult) bool {
	resolved := false
	f.once.Do(func() {
		f.result = result
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *Future) cancel() bool {
	resolved := false
	f.once.Do(func() {
		f.result = schema.FailErr(schema.ErrCancelled)
		f.cancelled = true
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the result without blocking. ok is false until resolved.
func (f *Future) Result() (result schema.CommandResult, ok bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return schema.CommandResult{}, false
	}
}

// Cancelled reports whether the future was resolved by a dispatcher stop.
func (f *Future) Cancelled() bool {
	select {
	case <-f.done:
		return f.cancelled
	default:
		return false
	}
}

// Wait blocks until the result is available or ctx ends.
// A cancelled future returns its error result together with schema.ErrCancelled.
func (f *Future) Wait(ctx context.Context) (schema.CommandResult, error) {
	select {
	case <-f.done:
		if f.cancelled {
			return f.result, schema.ErrCancelled
		}
		return f.result, nil
	case <-ctx.Done():
		return schema.CommandResult{}, ctx.Err()
	}
}
