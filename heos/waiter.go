package heos

import (
	"context"
	"sync"
)

// waiter is the shared outcome of one in-flight transition. Concurrent
// callers of connect/disconnect/reconnect wait on the same waiter instead of
// racing a second transition.
type waiter struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// settle records the outcome exactly once. Later calls are no-ops.
func (w *waiter) settle(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.done)
	})
}

// wait blocks until the transition settles or the caller's context is
// cancelled. Cancellation releases only this caller; the transition itself
// always runs to settlement.
func (w *waiter) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err

	case <-ctx.Done():
		return ctx.Err()
	}
}
