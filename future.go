package courier

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is a value that settles exactly once, either fulfilled with a value
// or rejected with an error. It is safe for concurrent use.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already fulfilled with v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.settle(v, nil)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.settle(zero, err)
	return f
}

// settle records the outcome; only the first call has any effect.
func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then attaches a continuation to f. onFulfilled runs with the value when f
// fulfills, onRejected with the error when it rejects. A nil handler passes
// the outcome through unchanged; a nil onFulfilled requires T and U to match.
func Then[T, U any](f *Future[T], onFulfilled func(T) (U, error), onRejected func(error) (U, error)) *Future[U] {
	next := newFuture[U]()
	go func() {
		<-f.done
		var (
			v   U
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrInterceptorPanic, r)
				}
			}()
			v, err = continueWith(f.value, f.err, onFulfilled, onRejected)
		}()
		next.settle(v, err)
	}()
	return next
}

func continueWith[T, U any](value T, err error, onFulfilled func(T) (U, error), onRejected func(error) (U, error)) (U, error) {
	var zero U
	if err != nil {
		if onRejected == nil {
			return zero, err
		}
		return onRejected(err)
	}
	if onFulfilled == nil {
		if u, ok := any(value).(U); ok {
			return u, nil
		}
		return zero, fmt.Errorf("courier: cannot pass %T through a continuation of %T", value, zero)
	}
	return onFulfilled(value)
}

// All waits for every future and returns their values in order. The first
// rejection cancels the wait and is returned.
func All[T any](ctx context.Context, futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
