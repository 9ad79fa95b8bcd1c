package lockbox

import (
	"context"
	"encoding/json"
	"sync"
)

type (
	// Future is a one-shot broadcast cell delivering the outcome of a
	// scheduled update. It is fulfilled exactly once by the backend; any
	// number of readers may block on it, and all observe the same outcome
	// once it has been fulfilled
	Future struct {
		done  chan struct{}
		value any
		err   error
		once  sync.Once
	}

	// ColdFuture delivers a scheduled cold update's result as encoded bytes
	ColdFuture struct {
		inner *Future
	}
)

// NewFuture creates an unfulfilled Future. Backend implementations call
// Complete once the corresponding event has been applied
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete fulfills the cell. Calls after the first have no effect
func (f *Future) Complete(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed once the cell has been fulfilled
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Take blocks until the cell is fulfilled and returns its outcome. The
// context only bounds the wait; an update that has been scheduled still runs
// to completion even if the caller stops waiting
func (f *Future) Take(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel that is closed once the cell has been fulfilled
func (f *ColdFuture) Done() <-chan struct{} {
	return f.inner.done
}

// Take blocks until the cell is fulfilled and returns the result encoded as
// JSON
func (f *ColdFuture) Take(ctx context.Context) ([]byte, error) {
	value, err := f.inner.Take(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(value)
}
