package courier

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ambiyansyah-risyal/courier/internal/urlbuild"
)

// Client dispatches requests through ordered request and response
// interceptor chains to a Transport. It is safe for concurrent use.
type Client struct {
	defaults     *Config
	Interceptors Interceptors

	strategies      map[string]MergeStrategy
	logger          Logger
	metrics         *MetricsCollector
	rateLimiter     *rate.Limiter
	requestIDHeader string
	requestIDGen    func() string
	loadErr         error
	validationError error
}

// Interceptors holds the two registries of a client.
type Interceptors struct {
	Request  *InterceptorManager[*Config]
	Response *InterceptorManager[*Response]
}

// New constructs a Client from DefaultConfig and the provided options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		defaults: DefaultConfig(),
		Interceptors: Interceptors{
			Request:  NewInterceptorManager[*Config](),
			Response: NewInterceptorManager[*Response](),
		},
		strategies:   DefaultMergeStrategies(),
		logger:       nil,
		metrics:      nil,
		requestIDGen: uuid.NewString,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Create derives a client whose defaults are the receiver's defaults merged
// with cfg. The new client starts with empty interceptor registries. A
// Transport set in cfg replaces the inherited one.
func (c *Client) Create(cfg *Config) *Client {
	defaults := mergeConfig(c.strategies, c.defaults, cfg)
	if cfg != nil && cfg.Transport != nil {
		defaults.Transport = cfg.Transport
	}
	child := &Client{
		defaults: defaults,
		Interceptors: Interceptors{
			Request:  NewInterceptorManager[*Config](),
			Response: NewInterceptorManager[*Response](),
		},
		strategies:      maps.Clone(c.strategies),
		logger:          c.logger,
		metrics:         c.metrics,
		rateLimiter:     c.rateLimiter,
		requestIDHeader: c.requestIDHeader,
		requestIDGen:    c.requestIDGen,
	}
	if err := child.ValidateConfiguration(); err != nil {
		child.validationError = err
	}
	return child
}

// Defaults returns a copy of the instance defaults.
func (c *Client) Defaults() *Config {
	return mergeConfig(c.strategies, c.defaults, nil)
}

// RequestURL dispatches a request for url, using cfg for everything else.
func (c *Client) RequestURL(ctx context.Context, url string, cfg *Config) *Future[*Response] {
	return c.Request(ctx, c.shape(cfg, &Config{URL: url, Data: dataOf(cfg)}))
}

// Request merges cfg with the instance defaults, runs the interceptor chains
// around the transport and returns the pending response. cfg is not modified.
func (c *Client) Request(ctx context.Context, cfg *Config) *Future[*Response] {
	if ctx == nil {
		ctx = context.Background()
	}

	config := mergeConfig(c.strategies, c.defaults, cfg)

	if err := validateConfig(config); err != nil {
		c.log().Warn("Rejected request config", "error", err.Error())
		if c.metrics != nil {
			c.metrics.RecordError(errorLabel(err), strings.ToUpper(config.Method), endpointFromConfig(config))
		}
		return Rejected[*Response](err)
	}

	method := config.Method
	if method == "" {
		method = c.defaults.Method
	}
	if method == "" {
		method = "get"
	}
	config.Method = strings.ToLower(method)

	FlattenHeaders(config, config.Method)

	requestChain, synchronous := c.requestChain(config)
	responseChain := c.responseChain()

	tr := c.begin(config, synchronous)
	if synchronous {
		return c.runSync(ctx, config, requestChain, responseChain, tr)
	}
	return c.runAsync(ctx, config, requestChain, responseChain, tr)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, cfg *Config) *Future[*Response] {
	return c.requestWithoutBody(ctx, "get", url, cfg)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, cfg *Config) *Future[*Response] {
	return c.requestWithoutBody(ctx, "delete", url, cfg)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, cfg *Config) *Future[*Response] {
	return c.requestWithoutBody(ctx, "head", url, cfg)
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, cfg *Config) *Future[*Response] {
	return c.requestWithoutBody(ctx, "options", url, cfg)
}

// Post issues a POST request with data as the body.
func (c *Client) Post(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "post", url, data, cfg, false)
}

// Put issues a PUT request with data as the body.
func (c *Client) Put(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "put", url, data, cfg, false)
}

// Patch issues a PATCH request with data as the body.
func (c *Client) Patch(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "patch", url, data, cfg, false)
}

// PostForm issues a POST request with data encoded as multipart/form-data.
func (c *Client) PostForm(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "post", url, data, cfg, true)
}

// PutForm issues a PUT request with data encoded as multipart/form-data.
func (c *Client) PutForm(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "put", url, data, cfg, true)
}

// PatchForm issues a PATCH request with data encoded as multipart/form-data.
func (c *Client) PatchForm(ctx context.Context, url string, data any, cfg *Config) *Future[*Response] {
	return c.requestWithBody(ctx, "patch", url, data, cfg, true)
}

func (c *Client) requestWithoutBody(ctx context.Context, method, url string, cfg *Config) *Future[*Response] {
	return c.Request(ctx, c.shape(cfg, &Config{Method: method, URL: url, Data: dataOf(cfg)}))
}

func (c *Client) requestWithBody(ctx context.Context, method, url string, data any, cfg *Config, form bool) *Future[*Response] {
	shaped := &Config{Method: method, URL: url, Data: data}
	if form {
		shaped.Header = map[string][]string{"Content-Type": {"multipart/form-data"}}
	}
	return c.Request(ctx, c.shape(cfg, shaped))
}

// shape overlays fixed call fields on a caller config.
func (c *Client) shape(cfg, fixed *Config) *Config {
	return mergeConfig(c.strategies, cfg, fixed)
}

func dataOf(cfg *Config) any {
	if cfg == nil {
		return nil
	}
	return cfg.Data
}

// GetURI returns the URL a request for cfg would be sent to.
func (c *Client) GetURI(cfg *Config) (string, error) {
	config := mergeConfig(c.strategies, c.defaults, cfg)
	serializer, err := paramsSerializerFrom(config.ParamsSerializer)
	if err != nil {
		return "", &Error{Code: ErrCodeBadOptionValue, Message: "invalid paramsSerializer", Cause: err, Config: config}
	}
	fullPath := urlbuild.BuildFullPath(config.BaseURL, config.URL)
	return urlbuild.BuildURL(fullPath, config.Params, serializer), nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) log() Logger {
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// tracker follows one request for logging and metrics.
type tracker struct {
	client    *Client
	start     time.Time
	method    string
	endpoint  string
	requestID string
}

func (c *Client) begin(cfg *Config, synchronous bool) *tracker {
	tr := &tracker{
		client:   c,
		start:    time.Now(),
		method:   strings.ToUpper(cfg.Method),
		endpoint: endpointFromConfig(cfg),
	}
	if c.requestIDHeader != "" {
		if id := cfg.Header.Get(c.requestIDHeader); id != "" {
			tr.requestID = id
		} else if c.requestIDGen != nil {
			tr.requestID = c.requestIDGen()
		}
	}

	mode := "async"
	if synchronous {
		mode = "sync"
	}
	c.log().Debug("Starting request", "requestID", tr.requestID, "method", tr.method, "endpoint", tr.endpoint, "mode", mode)
	if c.metrics != nil {
		c.metrics.RecordDispatchMode(mode)
		c.metrics.RecordRequestStart(tr.method, tr.endpoint)
	}
	return tr
}

func (tr *tracker) end(resp *Response, err error) {
	c := tr.client
	duration := time.Since(tr.start)
	status := 0
	if resp != nil {
		status = resp.Status
	} else if e, ok := AsError(err); ok && e.Response != nil {
		status = e.Response.Status
	}

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(tr.method, tr.endpoint)
		c.metrics.RecordRequest(tr.method, tr.endpoint, status, duration)
	}

	switch {
	case err == nil:
		c.log().Debug("Request completed", "requestID", tr.requestID, "status", status, "duration", duration)
	case IsCancel(err):
		c.log().Debug("Request canceled", "requestID", tr.requestID, "reason", err.Error())
		if c.metrics != nil {
			c.metrics.RecordCancellation(tr.method, tr.endpoint)
		}
	default:
		c.log().Debug("Request failed", "requestID", tr.requestID, "error", err.Error(), "duration", duration)
		if c.metrics != nil {
			c.metrics.RecordError(errorLabel(err), tr.method, tr.endpoint)
		}
	}
}

func errorLabel(err error) string {
	if IsCancel(err) {
		return ErrCodeCanceled
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return "Interceptor"
}

func endpointFromConfig(cfg *Config) string {
	u, err := url.Parse(urlbuild.BuildFullPath(cfg.BaseURL, cfg.URL))
	if err != nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)

	if u.Path != "" && u.Path != "/" {
		if !strings.HasPrefix(u.Path, "/") {
			builder.WriteByte('/')
		}
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}

func paramsSerializerFrom(opts Options) (*urlbuild.Serializer, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	s := &urlbuild.Serializer{}
	switch fn := opts["encode"].(type) {
	case nil:
	case func(string) string:
		s.Encode = fn
	case EncodeFunc:
		s.Encode = fn
	default:
		return nil, fmt.Errorf("encode must be func(string) string, got %T", fn)
	}
	switch fn := opts["serialize"].(type) {
	case nil:
	case func(url.Values) string:
		s.Serialize = fn
	case ParamsSerializerFunc:
		s.Serialize = fn
	default:
		return nil, fmt.Errorf("serialize must be func(url.Values) string, got %T", fn)
	}
	return s, nil
}
