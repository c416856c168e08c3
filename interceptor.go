package courier

import (
	"context"
	"sync"
)

// Interceptor is a handler pair inserted into the request or response path.
// Fulfilled receives the value produced by the previous step; Rejected
// receives its error and may recover by returning a value.
type Interceptor[T any] struct {
	Fulfilled func(ctx context.Context, v T) (T, error)
	Rejected  func(ctx context.Context, err error) (T, error)

	// Synchronous request interceptors run on the caller's goroutine when
	// every request interceptor in the chain is synchronous.
	Synchronous bool

	// RunWhen, when set, skips the request interceptor if it returns false.
	RunWhen func(cfg *Config) bool
}

// InterceptorOption configures an interceptor at registration.
type InterceptorOption func(*interceptorOptions)

type interceptorOptions struct {
	synchronous bool
	runWhen     func(*Config) bool
}

// Synchronous marks the interceptor as free of blocking work.
func Synchronous() InterceptorOption {
	return func(o *interceptorOptions) {
		o.synchronous = true
	}
}

// RunWhen gates the interceptor on a predicate over the request config.
func RunWhen(fn func(cfg *Config) bool) InterceptorOption {
	return func(o *interceptorOptions) {
		o.runWhen = fn
	}
}

// InterceptorManager is an ordered registry of interceptors. Ejected slots
// are kept as tombstones so ids handed out by Use stay valid.
type InterceptorManager[T any] struct {
	mu       sync.RWMutex
	handlers []*Interceptor[T]
}

// NewInterceptorManager returns an empty registry.
func NewInterceptorManager[T any]() *InterceptorManager[T] {
	return &InterceptorManager[T]{}
}

// Use appends an interceptor and returns its id for Eject.
func (m *InterceptorManager[T]) Use(fulfilled func(ctx context.Context, v T) (T, error), rejected func(ctx context.Context, err error) (T, error), opts ...InterceptorOption) int {
	var o interceptorOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, &Interceptor[T]{
		Fulfilled:   fulfilled,
		Rejected:    rejected,
		Synchronous: o.synchronous,
		RunWhen:     o.runWhen,
	})
	return len(m.handlers) - 1
}

// Eject removes the interceptor registered under id. Unknown ids are ignored.
func (m *InterceptorManager[T]) Eject(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id >= 0 && id < len(m.handlers) {
		m.handlers[id] = nil
	}
}

// Clear removes every interceptor.
func (m *InterceptorManager[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = nil
}

// Len reports how many live interceptors are registered.
func (m *InterceptorManager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, h := range m.handlers {
		if h != nil {
			n++
		}
	}
	return n
}

// ForEach calls fn for every live interceptor in registration order. It
// iterates over a snapshot, so fn may register or eject interceptors.
func (m *InterceptorManager[T]) ForEach(fn func(h *Interceptor[T])) {
	for _, h := range m.snapshot() {
		fn(h)
	}
}

func (m *InterceptorManager[T]) snapshot() []*Interceptor[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Interceptor[T], 0, len(m.handlers))
	for _, h := range m.handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}
