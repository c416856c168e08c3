package courier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ambiyansyah-risyal/courier/internal/validator"
)

// ErrNilConfig is returned when a request interceptor yields a nil config.
var ErrNilConfig = errors.New("courier: request interceptor returned nil config")

var transitionalSchema = validator.Schema{
	"silentJSONParsing":   validator.Boolean(),
	"forcedJSONParsing":   validator.Boolean(),
	"clarifyTimeoutError": validator.Boolean(),
}

var paramsSerializerSchema = validator.Schema{
	"encode":    validator.Function(),
	"serialize": validator.Function(),
}

// validateConfig checks the loosely typed options of a merged config.
func validateConfig(cfg *Config) error {
	if cfg.Transitional != nil {
		if err := validator.AssertOptions(cfg.Transitional, transitionalSchema, false); err != nil {
			return optionError("transitional", err, cfg)
		}
	}
	if cfg.ParamsSerializer != nil {
		if err := validator.AssertOptions(cfg.ParamsSerializer, paramsSerializerSchema, true); err != nil {
			return optionError("paramsSerializer", err, cfg)
		}
		if _, err := paramsSerializerFrom(cfg.ParamsSerializer); err != nil {
			return &Error{Code: ErrCodeBadOptionValue, Message: "paramsSerializer: " + err.Error(), Cause: err, Config: cfg}
		}
	}
	return nil
}

func optionError(group string, err error, cfg *Config) error {
	code := ErrCodeBadOptionValue
	var optErr *validator.OptionError
	if errors.As(err, &optErr) {
		code = optErr.Code
	}
	return &Error{Code: code, Message: group + ": " + err.Error(), Cause: err, Config: cfg}
}

// step is one link of a dispatch chain.
type step[T any] struct {
	fulfilled func(ctx context.Context, v T) (T, error)
	rejected  func(ctx context.Context, err error) (T, error)
}

// run applies the step to the outcome of the previous one. A failed
// predecessor goes to rejected, or passes through when rejected is nil.
func (s step[T]) run(ctx context.Context, v T, err error) (out T, outErr error) {
	defer recoverStep(&outErr)
	if err != nil {
		if s.rejected == nil {
			return v, err
		}
		return s.rejected(ctx, err)
	}
	if s.fulfilled == nil {
		return v, nil
	}
	return s.fulfilled(ctx, v)
}

func recoverStep(errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("%w: %v", ErrInterceptorPanic, r)
	}
}

// requestChain snapshots the request registry. Interceptors are prepended,
// so the most recently registered one runs first. The chain is synchronous
// only when it is non-empty and every member opted in.
func (c *Client) requestChain(cfg *Config) ([]step[*Config], bool) {
	var chain []step[*Config]
	synchronous := true
	c.Interceptors.Request.ForEach(func(h *Interceptor[*Config]) {
		if h.RunWhen != nil && !h.RunWhen(cfg) {
			return
		}
		synchronous = synchronous && h.Synchronous
		chain = append([]step[*Config]{{fulfilled: h.Fulfilled, rejected: h.Rejected}}, chain...)
	})
	return chain, synchronous && len(chain) > 0
}

// responseChain snapshots the response registry in registration order.
func (c *Client) responseChain() []step[*Response] {
	var chain []step[*Response]
	c.Interceptors.Response.ForEach(func(h *Interceptor[*Response]) {
		chain = append(chain, step[*Response]{fulfilled: h.Fulfilled, rejected: h.Rejected})
	})
	return chain
}

// runAsync threads the config through every step on a single goroutine.
// Request returns before the first interceptor runs.
func (c *Client) runAsync(ctx context.Context, cfg *Config, requestChain []step[*Config], responseChain []step[*Response], tr *tracker) *Future[*Response] {
	future := newFuture[*Response]()
	go func() {
		var (
			current = cfg
			err     error
		)
		for _, s := range requestChain {
			current, err = s.run(ctx, current, err)
		}

		var resp *Response
		if err == nil {
			resp, err = c.dispatch(ctx, current, tr)
		}
		resp, err = runResponseChain(ctx, responseChain, resp, err)

		tr.end(resp, err)
		future.settle(resp, err)
	}()
	return future
}

// runSync runs the request interceptors on the caller's goroutine. A failing
// interceptor gets its own Rejected handler called once and the request ends
// there, without reaching the transport or the response chain.
func (c *Client) runSync(ctx context.Context, cfg *Config, requestChain []step[*Config], responseChain []step[*Response], tr *tracker) *Future[*Response] {
	current := cfg
	for _, s := range requestChain {
		next, err := step[*Config]{fulfilled: s.fulfilled}.run(ctx, current, nil)
		if err != nil {
			if s.rejected != nil {
				if _, rerr := (step[*Config]{rejected: s.rejected}).run(ctx, nil, err); rerr != nil {
					err = rerr
				}
			}
			tr.end(nil, err)
			return Rejected[*Response](err)
		}
		current = next
	}

	if err := c.preflight(ctx, current); err != nil {
		tr.end(nil, err)
		return Rejected[*Response](err)
	}

	future := newFuture[*Response]()
	go func() {
		resp, err := c.send(ctx, current, tr)
		resp, err = runResponseChain(ctx, responseChain, resp, err)
		tr.end(resp, err)
		future.settle(resp, err)
	}()
	return future
}

func runResponseChain(ctx context.Context, chain []step[*Response], resp *Response, err error) (*Response, error) {
	for _, s := range chain {
		resp, err = s.run(ctx, resp, err)
	}
	return resp, err
}

// dispatch is the transport step of the chain.
func (c *Client) dispatch(ctx context.Context, cfg *Config, tr *tracker) (*Response, error) {
	if err := c.preflight(ctx, cfg); err != nil {
		return nil, err
	}
	return c.send(ctx, cfg, tr)
}

// preflight runs the checks that precede any transport work.
func (c *Client) preflight(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return ErrNilConfig
	}
	return cancellationRequested(ctx, cfg)
}

func (c *Client) send(ctx context.Context, cfg *Config, tr *tracker) (resp *Response, err error) {
	defer recoverStep(&err)

	transport := cfg.Transport
	if transport == nil {
		return nil, ErrNilTransport
	}

	if cfg.Header == nil {
		cfg.Header = make(http.Header)
	}
	if c.requestIDHeader != "" && tr.requestID != "" && cfg.Header.Get(c.requestIDHeader) == "" {
		cfg.Header.Set(c.requestIDHeader, tr.requestID)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if cerr := cancellationRequested(ctx, cfg); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
	}

	resp, err = transport.RoundTrip(ctx, cfg)
	if err != nil {
		if !IsCancel(err) {
			if cerr := cancellationRequested(ctx, cfg); cerr != nil {
				return nil, cerr
			}
		}
		return resp, err
	}

	if cerr := cancellationRequested(ctx, cfg); cerr != nil {
		return nil, cerr
	}
	return resp, nil
}

// cancellationRequested reports the cancel token's reason, or a cancellation
// derived from ctx once it is done.
func cancellationRequested(ctx context.Context, cfg *Config) error {
	if cfg.CancelToken != nil {
		if err := cfg.CancelToken.ThrowIfRequested(); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		var reason *CanceledError
		if errors.As(context.Cause(ctx), &reason) {
			return reason
		}
		return &CanceledError{Message: ctx.Err().Error(), Config: cfg}
	}
	return nil
}
