package courier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testBaseURL          = "https://api.example.com"
	expectedNoErrMsg     = "Expected no error, got %v"
	expectedStatus200Msg = "Expected status 200, got %d"
)

var errBoom = errors.New("boom")

// recordingTransport answers every request with 200 and remembers the
// configs it was handed.
type recordingTransport struct {
	mu      sync.Mutex
	calls   int
	configs []*Config
	respond func(ctx context.Context, cfg *Config) (*Response, error)
}

func (rt *recordingTransport) RoundTrip(ctx context.Context, cfg *Config) (*Response, error) {
	rt.mu.Lock()
	rt.calls++
	rt.configs = append(rt.configs, cfg)
	respond := rt.respond
	rt.mu.Unlock()
	if respond != nil {
		return respond(ctx, cfg)
	}
	return &Response{Status: http.StatusOK, StatusText: "OK", Config: cfg}, nil
}

func (rt *recordingTransport) Calls() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.calls
}

func (rt *recordingTransport) Last() *Config {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.configs) == 0 {
		return nil
	}
	return rt.configs[len(rt.configs)-1]
}

func newTestClient(t *testing.T, options ...Option) (*Client, *recordingTransport) {
	t.Helper()
	rt := &recordingTransport{}
	client := New(append([]Option{WithTransport(rt)}, options...)...)
	if !client.IsValid() {
		t.Fatalf("client configuration invalid: %v", client.ValidationError())
	}
	return client, rt
}

func await(t *testing.T, f *Future[*Response]) (*Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatal("future did not settle in time")
	}
	return resp, err
}

func TestNew(t *testing.T) {
	client := New()

	if client == nil {
		t.Fatal("New() returned nil")
	}
	if !client.IsValid() {
		t.Fatalf("Expected default client to be valid, got %v", client.ValidationError())
	}

	defaults := client.Defaults()
	if got := defaults.MethodHeaders[CommonHeaders].Get("Accept"); got != DefaultAccept {
		t.Errorf("Expected common Accept %q, got %q", DefaultAccept, got)
	}
	if defaults.MaxContentLength != -1 {
		t.Errorf("Expected MaxContentLength=-1, got %d", defaults.MaxContentLength)
	}
	if _, ok := defaults.Transport.(*HTTPTransport); !ok {
		t.Errorf("Expected *HTTPTransport, got %T", defaults.Transport)
	}
	if client.Interceptors.Request.Len() != 0 || client.Interceptors.Response.Len() != 0 {
		t.Error("Expected empty interceptor registries")
	}
}

func TestRequestMergesDefaultsAndFlattensHeaders(t *testing.T) {
	client, rt := newTestClient(t,
		WithBaseURL(testBaseURL),
		WithHeader("X-Common", "common"),
		WithMethodHeader("post", "X-Post-Only", "yes"),
	)

	caller := &Config{URL: "/users", Header: http.Header{"X-Request": {"1"}}}
	resp, err := await(t, client.Request(context.Background(), caller))
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf(expectedStatus200Msg, resp.Status)
	}

	sent := rt.Last()
	if sent.Method != "get" {
		t.Errorf("Expected method get, got %q", sent.Method)
	}
	if sent.BaseURL != testBaseURL {
		t.Errorf("Expected baseURL %q, got %q", testBaseURL, sent.BaseURL)
	}
	if sent.MethodHeaders != nil {
		t.Errorf("Expected MethodHeaders to be cleared, got %v", sent.MethodHeaders)
	}
	for name, want := range map[string]string{"X-Common": "common", "X-Request": "1", "Accept": DefaultAccept} {
		if got := sent.Header.Get(name); got != want {
			t.Errorf("Expected %s=%q, got %q", name, want, got)
		}
	}
	if got := sent.Header.Get("X-Post-Only"); got != "" {
		t.Errorf("Expected post bucket to be dropped for get, got %q", got)
	}

	if caller.Method != "" || len(caller.Header) != 1 {
		t.Errorf("caller config was mutated: %+v", caller)
	}
}

func TestRequestMethodResolution(t *testing.T) {
	tests := []struct {
		name     string
		defaults string
		method   string
		want     string
	}{
		{"fallback", "", "", "get"},
		{"instance default", "PUT", "", "put"},
		{"override wins", "put", "DELETE", "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rt := newTestClient(t, WithDefaults(&Config{Method: tt.defaults}))
			if _, err := await(t, client.Request(context.Background(), &Config{URL: "/", Method: tt.method})); err != nil {
				t.Fatalf(expectedNoErrMsg, err)
			}
			if got := rt.Last().Method; got != tt.want {
				t.Errorf("Expected method %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInterceptorOrder(t *testing.T) {
	client, _ := newTestClient(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	for _, name := range []string{"req1", "req2", "req3"} {
		client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
			record(name)
			return cfg, nil
		}, nil)
	}
	for _, name := range []string{"res1", "res2"} {
		client.Interceptors.Response.Use(func(_ context.Context, resp *Response) (*Response, error) {
			record(name)
			return resp, nil
		}, nil)
	}

	if _, err := await(t, client.Get(context.Background(), "/", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}

	want := "req3,req2,req1,res1,res2"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("Expected order %s, got %s", want, got)
	}
}

func TestSynchronousChainRunsBeforeRequestReturns(t *testing.T) {
	client, rt := newTestClient(t)

	var ran bool
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		ran = true
		cfg.Header.Set("X-Sync", "1")
		return cfg, nil
	}, nil, Synchronous())

	future := client.Get(context.Background(), "/", nil)
	if !ran {
		t.Fatal("Expected synchronous interceptor to run before Request returned")
	}

	if _, err := await(t, future); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().Header.Get("X-Sync"); got != "1" {
		t.Errorf("Expected X-Sync=1, got %q", got)
	}
}

func TestAsynchronousChainReturnsFirst(t *testing.T) {
	client, rt := newTestClient(t)

	release := make(chan struct{})
	var syncRan atomic.Bool
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		syncRan.Store(true)
		return cfg, nil
	}, nil, Synchronous())
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		<-release
		return cfg, nil
	}, nil)

	future := client.Get(context.Background(), "/", nil)
	if future.Settled() {
		t.Fatal("Expected future to be pending while the async interceptor blocks")
	}
	if syncRan.Load() {
		t.Fatal("Expected synchronous interceptor to wait for the async chain")
	}

	close(release)
	if _, err := await(t, future); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if !syncRan.Load() {
		t.Error("Expected synchronous interceptor to run in async mode")
	}
	if rt.Calls() != 1 {
		t.Errorf("Expected 1 transport call, got %d", rt.Calls())
	}
}

func TestRunWhenSkippedInterceptorDoesNotAffectMode(t *testing.T) {
	client, _ := newTestClient(t)

	var asyncRan atomic.Bool
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		asyncRan.Store(true)
		return cfg, nil
	}, nil, RunWhen(func(cfg *Config) bool { return cfg.URL == "/admin" }))

	var syncRan bool
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		syncRan = true
		return cfg, nil
	}, nil, Synchronous())

	future := client.Get(context.Background(), "/public", nil)
	if !syncRan {
		t.Fatal("Expected chain to run synchronously once the async interceptor is skipped")
	}
	if _, err := await(t, future); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if asyncRan.Load() {
		t.Error("Expected RunWhen=false interceptor to be skipped")
	}
}

func TestSynchronousInterceptorErrorCallsRejectedOnce(t *testing.T) {
	client, rt := newTestClient(t)

	var rejectedCalls int
	var rejectedWith error
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return nil, errBoom
	}, func(_ context.Context, err error) (*Config, error) {
		rejectedCalls++
		rejectedWith = err
		return &Config{}, nil
	}, Synchronous())

	future := client.Get(context.Background(), "/", nil)
	if !future.Settled() {
		t.Fatal("Expected an already rejected future")
	}
	_, err := await(t, future)
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected errBoom, got %v", err)
	}
	if rejectedCalls != 1 {
		t.Errorf("Expected Rejected to be called once, got %d", rejectedCalls)
	}
	if !errors.Is(rejectedWith, errBoom) {
		t.Errorf("Expected Rejected to receive errBoom, got %v", rejectedWith)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestSynchronousRejectedHandlerErrorWins(t *testing.T) {
	client, rt := newTestClient(t)
	errHandler := errors.New("handler failed")

	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return nil, errBoom
	}, func(_ context.Context, err error) (*Config, error) {
		return nil, errHandler
	}, Synchronous())

	_, err := await(t, client.Get(context.Background(), "/", nil))
	if !errors.Is(err, errHandler) {
		t.Errorf("Expected handler error, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestAsyncRejectionRecovery(t *testing.T) {
	client, rt := newTestClient(t)

	// Registered first, runs last: recovers from the failure of the one below.
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		t.Error("Fulfilled must not run after a failure")
		return cfg, nil
	}, func(_ context.Context, err error) (*Config, error) {
		if !errors.Is(err, errBoom) {
			t.Errorf("Expected errBoom, got %v", err)
		}
		return &Config{URL: "/recovered", Method: "get", Transport: rt}, nil
	})
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return nil, errBoom
	}, nil)

	if _, err := await(t, client.Get(context.Background(), "/", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().URL; got != "/recovered" {
		t.Errorf("Expected recovered config to reach transport, got %q", got)
	}
}

func TestAsyncErrorPassesThroughWithoutRejected(t *testing.T) {
	client, rt := newTestClient(t)

	var passed atomic.Bool
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		passed.Store(true)
		return cfg, nil
	}, nil)
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return nil, errBoom
	}, nil)

	_, err := await(t, client.Get(context.Background(), "/", nil))
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected errBoom, got %v", err)
	}
	if passed.Load() {
		t.Error("Expected fulfilled handler to be skipped after a failure")
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestResponseInterceptorRecoversTransportError(t *testing.T) {
	client, rt := newTestClient(t)
	rt.respond = func(context.Context, *Config) (*Response, error) {
		return nil, &Error{Code: ErrCodeNetwork, Message: "Network Error"}
	}

	client.Interceptors.Response.Use(nil, func(_ context.Context, err error) (*Response, error) {
		if e, ok := AsError(err); !ok || e.Code != ErrCodeNetwork {
			t.Errorf("Expected network error, got %v", err)
		}
		return &Response{Status: http.StatusNoContent}, nil
	})

	resp, err := await(t, client.Get(context.Background(), "/", nil))
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if resp.Status != http.StatusNoContent {
		t.Errorf("Expected recovered status 204, got %d", resp.Status)
	}
}

func TestEjectedInterceptorDoesNotRun(t *testing.T) {
	client, _ := newTestClient(t)

	var ejectedRan, keptRan atomic.Bool
	id := client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		ejectedRan.Store(true)
		return cfg, nil
	}, nil)
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		keptRan.Store(true)
		return cfg, nil
	}, nil)
	client.Interceptors.Request.Eject(id)

	if _, err := await(t, client.Get(context.Background(), "/", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if ejectedRan.Load() {
		t.Error("Expected ejected interceptor to be skipped")
	}
	if !keptRan.Load() {
		t.Error("Expected remaining interceptor to run")
	}
}

func TestInterceptorPanicIsRecovered(t *testing.T) {
	client, rt := newTestClient(t)
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		panic("interceptor bug")
	}, nil)

	_, err := await(t, client.Get(context.Background(), "/", nil))
	if !errors.Is(err, ErrInterceptorPanic) {
		t.Errorf("Expected ErrInterceptorPanic, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestNilConfigFromInterceptor(t *testing.T) {
	client, rt := newTestClient(t)
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return nil, nil
	}, nil)

	_, err := await(t, client.Get(context.Background(), "/", nil))
	if !errors.Is(err, ErrNilConfig) {
		t.Errorf("Expected ErrNilConfig, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestRequestValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *Config
		wantCode string
	}{
		{
			name:     "transitional wrong type",
			cfg:      &Config{Transitional: Options{"silentJSONParsing": "yes"}},
			wantCode: ErrCodeBadOptionValue,
		},
		{
			name:     "transitional unknown key",
			cfg:      &Config{Transitional: Options{"legacyMode": true}},
			wantCode: ErrCodeBadOption,
		},
		{
			name:     "params serializer not a function",
			cfg:      &Config{ParamsSerializer: Options{"serialize": "qs"}},
			wantCode: ErrCodeBadOptionValue,
		},
		{
			name:     "params serializer wrong signature",
			cfg:      &Config{ParamsSerializer: Options{"encode": func(int) int { return 0 }}},
			wantCode: ErrCodeBadOptionValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rt := newTestClient(t)
			var interceptorRan atomic.Bool
			client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
				interceptorRan.Store(true)
				return cfg, nil
			}, nil)

			future := client.Request(context.Background(), tt.cfg)
			if !future.Settled() {
				t.Fatal("Expected validation failure to reject immediately")
			}
			_, err := await(t, future)
			e, ok := AsError(err)
			if !ok {
				t.Fatalf("Expected *Error, got %T: %v", err, err)
			}
			if e.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, e.Code)
			}
			if interceptorRan.Load() || rt.Calls() != 0 {
				t.Error("Expected no interceptor or transport work after validation failure")
			}
		})
	}
}

func TestParamsSerializerExtraKeysAllowed(t *testing.T) {
	client, _ := newTestClient(t)
	cfg := &Config{ParamsSerializer: Options{"indexes": true}}
	if _, err := await(t, client.Request(context.Background(), cfg)); err != nil {
		t.Errorf("Expected unknown paramsSerializer keys to be allowed, got %v", err)
	}
}

func TestCancelBeforeDispatch(t *testing.T) {
	client, rt := newTestClient(t)
	source := NewCancelSource()
	source.Cancel("stop", nil, nil)

	_, err := await(t, client.Get(context.Background(), "/", &Config{CancelToken: source.Token}))
	if !IsCancel(err) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	if err.Error() != "stop" {
		t.Errorf("Expected reason 'stop', got %q", err.Error())
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestCancelDuringAsyncInterceptor(t *testing.T) {
	client, rt := newTestClient(t)
	source := NewCancelSource()

	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		source.Cancel("navigated away", cfg, nil)
		return cfg, nil
	}, nil)

	_, err := await(t, client.Get(context.Background(), "/", &Config{CancelToken: source.Token}))
	if !IsCancel(err) {
		t.Fatalf("Expected cancellation, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestCancelInSynchronousChainRejectsImmediately(t *testing.T) {
	client, rt := newTestClient(t)
	source := NewCancelSource()

	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		source.Cancel("abort", cfg, nil)
		return cfg, nil
	}, nil, Synchronous())

	future := client.Get(context.Background(), "/", &Config{CancelToken: source.Token})
	if !future.Settled() {
		t.Fatal("Expected pre-flight cancellation to reject before Request returned")
	}
	if _, err := await(t, future); !IsCancel(err) {
		t.Errorf("Expected cancellation, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestCancelAfterTransportSuccess(t *testing.T) {
	client, rt := newTestClient(t)
	source := NewCancelSource()
	rt.respond = func(_ context.Context, cfg *Config) (*Response, error) {
		source.Cancel("late", cfg, nil)
		return &Response{Status: http.StatusOK, Config: cfg}, nil
	}

	resp, err := await(t, client.Get(context.Background(), "/", &Config{CancelToken: source.Token}))
	if !IsCancel(err) {
		t.Fatalf("Expected cancellation to win over the response, got %v", err)
	}
	if resp != nil {
		t.Errorf("Expected no response, got %+v", resp)
	}
}

func TestCancelReasonWinsOverTransportError(t *testing.T) {
	client, rt := newTestClient(t)
	source := NewCancelSource()
	rt.respond = func(_ context.Context, cfg *Config) (*Response, error) {
		source.Cancel("user abort", cfg, nil)
		return nil, &Error{Code: ErrCodeNetwork, Message: "Network Error"}
	}

	_, err := await(t, client.Get(context.Background(), "/", &Config{CancelToken: source.Token}))
	if !IsCancel(err) || err.Error() != "user abort" {
		t.Errorf("Expected cancellation reason, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	client, rt := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := await(t, client.Get(ctx, "/", nil))
	if !IsCancel(err) {
		t.Errorf("Expected cancellation from ctx, got %v", err)
	}
	if rt.Calls() != 0 {
		t.Errorf("Expected transport not to be called, got %d calls", rt.Calls())
	}
}

func TestVerbs(t *testing.T) {
	client, rt := newTestClient(t)
	ctx := context.Background()
	body := map[string]any{"name": "courier"}

	tests := []struct {
		name       string
		call       func() *Future[*Response]
		wantMethod string
		wantData   bool
	}{
		{"get", func() *Future[*Response] { return client.Get(ctx, "/r", nil) }, "get", false},
		{"delete", func() *Future[*Response] { return client.Delete(ctx, "/r", nil) }, "delete", false},
		{"head", func() *Future[*Response] { return client.Head(ctx, "/r", nil) }, "head", false},
		{"options", func() *Future[*Response] { return client.Options(ctx, "/r", nil) }, "options", false},
		{"post", func() *Future[*Response] { return client.Post(ctx, "/r", body, nil) }, "post", true},
		{"put", func() *Future[*Response] { return client.Put(ctx, "/r", body, nil) }, "put", true},
		{"patch", func() *Future[*Response] { return client.Patch(ctx, "/r", body, nil) }, "patch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := await(t, tt.call()); err != nil {
				t.Fatalf(expectedNoErrMsg, err)
			}
			sent := rt.Last()
			if sent.Method != tt.wantMethod {
				t.Errorf("Expected method %s, got %s", tt.wantMethod, sent.Method)
			}
			if sent.URL != "/r" {
				t.Errorf("Expected URL /r, got %s", sent.URL)
			}
			if (sent.Data != nil) != tt.wantData {
				t.Errorf("Expected data present=%v, got %v", tt.wantData, sent.Data)
			}
		})
	}
}

func TestFormVerbsSetMultipartContentType(t *testing.T) {
	client, rt := newTestClient(t)

	for _, call := range []func() *Future[*Response]{
		func() *Future[*Response] { return client.PostForm(context.Background(), "/f", map[string]any{"a": "1"}, nil) },
		func() *Future[*Response] { return client.PutForm(context.Background(), "/f", map[string]any{"a": "1"}, nil) },
		func() *Future[*Response] { return client.PatchForm(context.Background(), "/f", map[string]any{"a": "1"}, nil) },
	} {
		if _, err := await(t, call()); err != nil {
			t.Fatalf(expectedNoErrMsg, err)
		}
		if got := rt.Last().Header.Get("Content-Type"); got != "multipart/form-data" {
			t.Errorf("Expected multipart/form-data, got %q", got)
		}
	}
}

func TestDeleteForwardsCallerData(t *testing.T) {
	client, rt := newTestClient(t)
	if _, err := await(t, client.Delete(context.Background(), "/r", &Config{Data: "payload"})); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().Data; got != "payload" {
		t.Errorf("Expected caller data to be forwarded, got %v", got)
	}
}

func TestGetURI(t *testing.T) {
	client, _ := newTestClient(t, WithBaseURL(testBaseURL))

	uri, err := client.GetURI(&Config{URL: "/users", Params: map[string][]string{"page": {"2"}, "q": {"a b"}}})
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	want := testBaseURL + "/users?page=2&q=a+b"
	if uri != want {
		t.Errorf("Expected %s, got %s", want, uri)
	}

	uri, err = client.GetURI(&Config{URL: "https://other.example.com/x"})
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if uri != "https://other.example.com/x" {
		t.Errorf("Expected absolute URL to bypass baseURL, got %s", uri)
	}
}

func TestCreateDerivesDefaults(t *testing.T) {
	parent, _ := newTestClient(t, WithBaseURL(testBaseURL), WithHeader("X-Parent", "1"))
	parent.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		t.Error("parent interceptor must not run for the derived client")
		return cfg, nil
	}, nil)

	childTransport := &recordingTransport{}
	child := parent.Create(&Config{
		Timeout:       time.Second,
		MethodHeaders: map[string]http.Header{CommonHeaders: {"X-Child": {"1"}}},
		Transport:     childTransport,
	})
	if !child.IsValid() {
		t.Fatalf("Expected derived client to be valid, got %v", child.ValidationError())
	}
	if child.Interceptors.Request.Len() != 0 {
		t.Error("Expected derived client to start with an empty registry")
	}

	if _, err := await(t, child.Get(context.Background(), "/x", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	sent := childTransport.Last()
	if sent == nil {
		t.Fatal("Expected derived transport to be used")
	}
	if sent.BaseURL != testBaseURL || sent.Timeout != time.Second {
		t.Errorf("Expected inherited baseURL and own timeout, got %q %v", sent.BaseURL, sent.Timeout)
	}
	if sent.Header.Get("X-Parent") != "1" || sent.Header.Get("X-Child") != "1" {
		t.Errorf("Expected both common headers, got %v", sent.Header)
	}

	if parent.Defaults().Timeout != 0 {
		t.Error("Create must not change the parent defaults")
	}
}

func TestPerCallTransportIsIgnored(t *testing.T) {
	client, rt := newTestClient(t)
	other := &recordingTransport{}

	if _, err := await(t, client.Get(context.Background(), "/", &Config{Transport: other})); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if other.Calls() != 0 || rt.Calls() != 1 {
		t.Errorf("Expected instance transport to be used, got instance=%d per-call=%d", rt.Calls(), other.Calls())
	}
}

func TestNilTransport(t *testing.T) {
	client := New(WithTransport(nil))
	if client.IsValid() {
		t.Fatal("Expected client without transport to be invalid")
	}

	_, err := await(t, client.Get(context.Background(), "/", nil))
	if !errors.Is(err, ErrNilTransport) {
		t.Errorf("Expected ErrNilTransport, got %v", err)
	}
}

func TestRequestIDHeader(t *testing.T) {
	client, rt := newTestClient(t,
		WithRequestIDHeader("X-Request-ID"),
		WithRequestIDGenerator(func() string { return "req-42" }),
	)

	if _, err := await(t, client.Get(context.Background(), "/", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("Expected request id req-42, got %q", got)
	}

	if _, err := await(t, client.Get(context.Background(), "/", &Config{Header: http.Header{"X-Request-Id": {"caller"}}})); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().Header.Get("X-Request-ID"); got != "caller" {
		t.Errorf("Expected caller request id to be kept, got %q", got)
	}
}

func TestRequestIDDefaultsToUUID(t *testing.T) {
	client, rt := newTestClient(t, WithRequestIDHeader("X-Request-ID"))
	if _, err := await(t, client.Get(context.Background(), "/", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if got := rt.Last().Header.Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("Expected a UUID request id, got %q", got)
	}
}

func TestClientMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewMetricsCollectorWithRegistry(registry)
	client, rt := newTestClient(t, WithMetricsCollector(collector))

	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		return cfg, nil
	}, nil, Synchronous())

	if _, err := await(t, client.Get(context.Background(), testBaseURL+"/ok", nil)); err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}

	rt.respond = func(context.Context, *Config) (*Response, error) {
		return nil, &Error{Code: ErrCodeNetwork, Message: "Network Error"}
	}
	if _, err := await(t, client.Get(context.Background(), testBaseURL+"/fail", nil)); err == nil {
		t.Fatal("Expected network error")
	}

	source := NewCancelSource()
	source.Cancel("", nil, nil)
	if _, err := await(t, client.Get(context.Background(), testBaseURL+"/cancel", &Config{CancelToken: source.Token})); !IsCancel(err) {
		t.Fatalf("Expected cancellation, got %v", err)
	}

	if got := testutil.ToFloat64(collector.dispatchMode.WithLabelValues("sync")); got != 3 {
		t.Errorf("Expected 3 sync dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsTotal.WithLabelValues("GET", "200", "api.example.com/ok")); got != 1 {
		t.Errorf("Expected 1 successful request, got %v", got)
	}
	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues(ErrCodeNetwork, "GET", "api.example.com/fail")); got != 1 {
		t.Errorf("Expected 1 network error, got %v", got)
	}
	if got := testutil.ToFloat64(collector.cancellations.WithLabelValues("GET", "api.example.com/cancel")); got != 1 {
		t.Errorf("Expected 1 cancellation, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requestsInFlight.WithLabelValues("GET", "api.example.com/ok")); got != 0 {
		t.Errorf("Expected no requests in flight, got %v", got)
	}
}

func TestEndpointFromConfig(t *testing.T) {
	tests := []struct {
		cfg  *Config
		want string
	}{
		{&Config{URL: "https://api.example.com/users"}, "api.example.com/users"},
		{&Config{BaseURL: "https://api.example.com", URL: "/v1/items"}, "api.example.com/v1/items"},
		{&Config{URL: "https://api.example.com"}, "api.example.com/"},
		{&Config{URL: "%zz"}, "unknown"},
	}

	for _, tt := range tests {
		if got := endpointFromConfig(tt.cfg); got != tt.want {
			t.Errorf("endpointFromConfig(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestConcurrentRequests(t *testing.T) {
	client, rt := newTestClient(t)
	client.Interceptors.Request.Use(func(_ context.Context, cfg *Config) (*Config, error) {
		cfg.Header.Set("X-Seen", "1")
		return cfg, nil
	}, nil)

	futures := make([]*Future[*Response], 20)
	for i := range futures {
		futures[i] = client.Get(context.Background(), "/", nil)
	}
	results, err := All(context.Background(), futures...)
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if len(results) != len(futures) || rt.Calls() != len(futures) {
		t.Errorf("Expected %d responses and transport calls, got %d and %d", len(futures), len(results), rt.Calls())
	}
}
