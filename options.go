package courier

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// WithDefaults merges cfg into the instance defaults.
func WithDefaults(cfg *Config) Option {
	return func(c *Client) {
		transport := c.defaults.Transport
		c.defaults = mergeConfig(c.strategies, c.defaults, cfg)
		if cfg != nil && cfg.Transport != nil {
			transport = cfg.Transport
		}
		c.defaults.Transport = transport
	}
}

// WithBaseURL sets the default base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.defaults.BaseURL = baseURL
	}
}

// WithTimeout sets the default request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.defaults.Timeout = d
	}
}

// WithHeader sets a header sent with every request
func WithHeader(name, value string) Option {
	return WithMethodHeader(CommonHeaders, name, value)
}

// WithMethodHeader sets a default header for one method bucket
func WithMethodHeader(method, name, value string) Option {
	return func(c *Client) {
		if c.defaults.MethodHeaders == nil {
			c.defaults.MethodHeaders = make(map[string]http.Header)
		}
		method = strings.ToLower(method)
		if c.defaults.MethodHeaders[method] == nil {
			c.defaults.MethodHeaders[method] = make(http.Header)
		}
		c.defaults.MethodHeaders[method].Set(name, value)
	}
}

// WithTransport sets the transport used by every request
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.defaults.Transport = t
	}
}

// WithHTTPClient sets the HTTP client of the default transport
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.defaults.Transport = NewHTTPTransport(client)
	}
}

// WithValidateStatus sets the status check used by the HTTP transport
func WithValidateStatus(fn func(status int) bool) Option {
	return func(c *Client) {
		c.defaults.ValidateStatus = fn
	}
}

// WithMergeStrategy overrides how one config key is merged
func WithMergeStrategy(key string, strategy MergeStrategy) Option {
	return func(c *Client) {
		c.strategies[key] = strategy
	}
}

// WithRateLimit throttles dispatch to r requests per second with the given burst
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = rate.NewLimiter(r, burst)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging to stderr
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDHeader stamps a generated request id on every request under name
func WithRequestIDHeader(name string) Option {
	return func(c *Client) {
		c.requestIDHeader = name
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// WithConfigFile merges defaults loaded from a TOML file. Load errors are
// reported by ValidateConfiguration.
func WithConfigFile(path string) Option {
	return func(c *Client) {
		cfg, err := LoadConfigFile(path)
		if err != nil {
			c.loadErr = err
			return
		}
		WithDefaults(cfg)(c)
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateTimeoutConfig()...)
	errors = append(errors, c.validateMergeStrategies()...)
	errors = append(errors, c.validateRequestIDConfig()...)
	errors = append(errors, c.validateRateLimiterConfig()...)
	errors = append(errors, c.validateDefaults()...)

	if len(errors) > 0 {
		return &Error{
			Code:    ErrCodeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.defaults.Transport == nil {
		errors = append(errors, "transport cannot be nil")
	}

	return errors
}

func (c *Client) validateTimeoutConfig() []string {
	var errors []string

	if c.defaults.Timeout < 0 {
		errors = append(errors, "timeout must be non-negative")
	}
	if c.defaults.Timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	return errors
}

func (c *Client) validateMergeStrategies() []string {
	var errors []string

	for key, s := range c.strategies {
		if s < OverrideWins || s > DefaultOnly {
			errors = append(errors, fmt.Sprintf("merge strategy for %q is unknown (%d)", key, s))
		}
	}

	return errors
}

func (c *Client) validateRequestIDConfig() []string {
	var errors []string

	if c.requestIDHeader != "" && c.requestIDGen == nil {
		errors = append(errors, "request id generator must be set when a request id header is configured")
	}

	return errors
}

func (c *Client) validateRateLimiterConfig() []string {
	var errors []string

	if c.rateLimiter != nil {
		if c.rateLimiter.Burst() <= 0 && c.rateLimiter.Limit() != rate.Inf {
			errors = append(errors, "rate limiter burst must be positive")
		}
		if c.rateLimiter.Limit() < 0 {
			errors = append(errors, "rate limiter limit must be non-negative")
		}
	}

	return errors
}

func (c *Client) validateDefaults() []string {
	var errors []string

	if c.loadErr != nil {
		errors = append(errors, fmt.Sprintf("config file: %v", c.loadErr))
	}
	if err := validateConfig(c.defaults); err != nil {
		errors = append(errors, err.Error())
	}

	return errors
}
