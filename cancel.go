package courier

import (
	"context"
	"net/http"
	"sync"
)

// CancelFunc requests cancellation of the token it was issued for. Only the
// first call has any effect.
type CancelFunc func(message string, cfg *Config, req *http.Request)

// Subscription identifies a listener registered with CancelToken.Subscribe.
// The zero value never refers to a live listener.
type Subscription uint64

type cancelListener struct {
	id Subscription
	fn func(reason *CanceledError)
}

// CancelToken is a one-shot, cooperative cancellation signal. Cancelling it
// records a reason and notifies subscribers; it never interrupts work on its
// own. Transports observe it through Subscribe, ThrowIfRequested or Context.
type CancelToken struct {
	mu        sync.Mutex
	reason    *CanceledError
	listeners []cancelListener
	nextID    Subscription
	future    *Future[*CanceledError]
}

// NewCancelToken creates a token and hands its cancel function to executor.
// It panics if executor is nil.
func NewCancelToken(executor func(cancel CancelFunc)) *CancelToken {
	if executor == nil {
		panic("courier: cancel token executor must not be nil")
	}
	t := &CancelToken{future: newFuture[*CanceledError]()}
	executor(t.cancel)
	return t
}

// CancelSource pairs a token with the function that cancels it.
type CancelSource struct {
	Token  *CancelToken
	Cancel CancelFunc
}

// NewCancelSource returns a fresh token together with its cancel function.
func NewCancelSource() CancelSource {
	var cancel CancelFunc
	token := NewCancelToken(func(c CancelFunc) {
		cancel = c
	})
	return CancelSource{Token: token, Cancel: cancel}
}

func (t *CancelToken) cancel(message string, cfg *Config, req *http.Request) {
	t.mu.Lock()
	if t.reason != nil {
		t.mu.Unlock()
		return
	}
	reason := &CanceledError{Message: message, Config: cfg, Request: req}
	t.reason = reason
	listeners := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	t.future.settle(reason, nil)

	for i := len(listeners) - 1; i >= 0; i-- {
		listeners[i].fn(reason)
	}
}

// Reason returns the cancellation reason, or nil while the token is pending.
func (t *CancelToken) Reason() *CanceledError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// ThrowIfRequested returns the cancellation reason once the token has been
// cancelled and nil before that.
func (t *CancelToken) ThrowIfRequested() error {
	if reason := t.Reason(); reason != nil {
		return reason
	}
	return nil
}

// Subscribe registers listener to be called with the reason on cancellation.
// If the token is already cancelled the listener runs immediately and the
// zero Subscription is returned.
func (t *CancelToken) Subscribe(listener func(reason *CanceledError)) Subscription {
	t.mu.Lock()
	if reason := t.reason; reason != nil {
		t.mu.Unlock()
		listener(reason)
		return 0
	}
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, cancelListener{id: id, fn: listener})
	t.mu.Unlock()
	return id
}

// Unsubscribe removes a pending listener. Unknown or already fired
// subscriptions are ignored.
func (t *CancelToken) Unsubscribe(sub Subscription) {
	if sub == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, l := range t.listeners {
		if l.id == sub {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// Done is closed when the token is cancelled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.future.Done()
}

// Future exposes cancellation as a future fulfilled with the reason.
func (t *CancelToken) Future() *Future[*CanceledError] {
	return t.future
}

// Continuation is a callback attached with CancelToken.Then.
type Continuation struct {
	token *CancelToken
	sub   Subscription
	fired *Future[*CanceledError]
	stop  chan struct{}
	once  sync.Once
	done  chan struct{}
}

// Then runs onCanceled on its own goroutine once the token is cancelled.
// Cancelling the returned Continuation detaches it from the token so that
// short-lived watchers do not pile up on a long-lived token.
func (t *CancelToken) Then(onCanceled func(reason *CanceledError)) *Continuation {
	c := &Continuation{
		token: t,
		fired: newFuture[*CanceledError](),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	c.sub = t.Subscribe(func(reason *CanceledError) {
		c.fired.settle(reason, nil)
	})
	go func() {
		defer close(c.done)
		select {
		case <-c.fired.Done():
			select {
			case <-c.stop:
				return
			default:
			}
			if onCanceled != nil {
				onCanceled(c.fired.value)
			}
		case <-c.stop:
		}
	}()
	return c
}

// Cancel detaches the continuation. onCanceled does not run unless it has
// already started.
func (c *Continuation) Cancel() {
	c.once.Do(func() {
		c.token.Unsubscribe(c.sub)
		close(c.stop)
	})
}

// Done is closed after the continuation either ran or was cancelled.
func (c *Continuation) Done() <-chan struct{} {
	return c.done
}

// Context derives a context that is cancelled together with the token.
// The returned CancelFunc releases the token subscription.
func (t *CancelToken) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	sub := t.Subscribe(func(reason *CanceledError) {
		cancel(reason)
	})
	return ctx, func() {
		t.Unsubscribe(sub)
		cancel(context.Canceled)
	}
}
