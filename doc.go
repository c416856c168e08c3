// Package courier provides an HTTP client built around interceptor chains and
// cooperative cancellation:
//
//   - Per-key config merging between instance defaults and per-call configs
//   - Method-grouped default headers flattened into one case-insensitive set
//   - Request and response interceptor registries with stable ejection ids
//   - Synchronous or asynchronous execution of the request chain
//   - CancelToken, a one-shot publish/subscribe cancellation signal
//   - Prometheus metrics and structured logging through a small Logger interface
//
// Every request returns a *Future[*Response]:
//
//	client := courier.New(
//	    courier.WithBaseURL("https://api.example.com"),
//	    courier.WithTimeout(5*time.Second),
//	)
//	resp, err := client.Get(ctx, "/users", nil).Await(ctx)
//
// Request interceptors run most recently registered first; response
// interceptors run in registration order. When every request interceptor is
// registered with Synchronous(), they run on the caller's goroutine before
// Request returns. Otherwise the whole chain runs on a separate goroutine.
//
// Cancellation is cooperative. A cancelled token is observed before the
// transport is called, by the HTTP transport itself, and after the transport
// returns:
//
//	source := courier.NewCancelSource()
//	f := client.Get(ctx, "/slow", &courier.Config{CancelToken: source.Token})
//	source.Cancel("user navigated away", nil, nil)
//	_, err := f.Await(ctx) // courier.IsCancel(err) == true
package courier
