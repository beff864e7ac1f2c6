package booking

import (
	"context"
	"sync"
)

// Future joins one submitted Task with its eventual Result. It resolves at
// most once; resolving it before the worker dequeues the entry (via Cancel)
// makes the worker skip execution while still consuming the queue slot.
type Future struct {
	mu   sync.Mutex
	done chan struct{}
	res  Result
	set  bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve stores the result; the first caller wins.
func (f *Future) resolve(res Result) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return false
	}
	f.res = res
	f.set = true
	close(f.done)
	return true
}

// Cancel resolves the future with a failed "cancelled" result. It is a no-op
// once the future is resolved.
func (f *Future) Cancel() {
	f.resolve(Failed("Задача отменена до запуска."))
}

// Done reports whether the future is already resolved.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
