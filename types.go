package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// Options is a loosely typed option bag used for settings that may arrive from
// configuration files (transitional flags, params serializer hooks).
type Options map[string]any

// BasicAuth holds HTTP basic credentials applied by the transport.
type BasicAuth struct {
	Username string
	Password string
}

// Config describes a single request. Instance defaults and per-call configs
// share this type and are combined with MergeConfig.
type Config struct {
	URL     string
	Method  string
	BaseURL string

	// Header holds flat per-request headers. After dispatch normalization it
	// is the only header set the transport sees.
	Header http.Header

	// MethodHeaders groups header sets by lower-case method name plus a
	// "common" bucket. It is folded into Header before the interceptors run.
	MethodHeaders map[string]http.Header

	Params           url.Values
	ParamsSerializer Options

	Data    any
	Timeout time.Duration

	Transitional Options

	CancelToken *CancelToken

	ValidateStatus   func(status int) bool
	MaxContentLength int64
	Auth             *BasicAuth

	// Transport is pinned by the instance defaults; per-call values are ignored.
	Transport Transport

	// Extra carries options this package does not recognize.
	Extra map[string]any
}

// Response is the settled result of a dispatched request.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Data       []byte
	Config     *Config
	Request    *http.Request
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Transport performs the network exchange for a fully prepared config.
type Transport interface {
	RoundTrip(ctx context.Context, cfg *Config) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, cfg *Config) (*Response, error)

func (f TransportFunc) RoundTrip(ctx context.Context, cfg *Config) (*Response, error) {
	return f(ctx, cfg)
}

// Option represents a client configuration option
type Option func(*Client)

// ParamsSerializerFunc turns query params into an encoded query string.
type ParamsSerializerFunc func(params url.Values) string

// EncodeFunc encodes a single query component.
type EncodeFunc func(s string) string
