package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ambiyansyah-risyal/courier/internal/urlbuild"
)

var errConfigTimeout = errors.New("courier: config timeout exceeded")

// HTTPTransport is the default Transport. It sends requests with a
// *http.Client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client. A nil client gets a fresh *http.Client.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// FormFile is a multipart file part.
type FormFile struct {
	Filename string
	Content  io.Reader
}

// TransitionalFlags is the typed view of Config.Transitional.
type TransitionalFlags struct {
	SilentJSONParsing   bool `mapstructure:"silentJSONParsing"`
	ForcedJSONParsing   bool `mapstructure:"forcedJSONParsing"`
	ClarifyTimeoutError bool `mapstructure:"clarifyTimeoutError"`
}

// TransitionalFlags decodes Config.Transitional over the default flags.
func (c *Config) TransitionalFlags() (TransitionalFlags, error) {
	flags := TransitionalFlags{SilentJSONParsing: true, ForcedJSONParsing: true}
	if len(c.Transitional) == 0 {
		return flags, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &flags,
	})
	if err != nil {
		return flags, err
	}
	if err := decoder.Decode(map[string]any(c.Transitional)); err != nil {
		return flags, fmt.Errorf("decode transitional options: %w", err)
	}
	return flags, nil
}

// RoundTrip sends cfg over HTTP. Cancellation through cfg.CancelToken or
// ctx aborts the exchange with a *CanceledError.
func (t *HTTPTransport) RoundTrip(ctx context.Context, cfg *Config) (*Response, error) {
	flags, err := cfg.TransitionalFlags()
	if err != nil {
		return nil, &Error{Code: ErrCodeBadOptionValue, Message: "transitional", Cause: err, Config: cfg}
	}

	if cfg.CancelToken != nil {
		var release context.CancelFunc
		ctx, release = cfg.CancelToken.Context(ctx)
		defer release()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, cfg.Timeout, errConfigTimeout)
		defer cancel()
	}

	target, err := requestTarget(cfg)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidURL, Message: "Invalid URL", Cause: err, Config: cfg}
	}

	header := cfg.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	body, err := encodeBody(cfg.Data, header)
	if err != nil {
		return nil, &Error{Code: ErrCodeBadRequest, Message: "encode request body", Cause: err, Config: cfg}
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), target, body)
	if err != nil {
		return nil, &Error{Code: ErrCodeBadRequest, Message: "build request", Cause: err, Config: cfg}
	}
	req.Header = header
	if cfg.Auth != nil {
		req.SetBasicAuth(cfg.Auth.Username, cfg.Auth.Password)
	}

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err, cfg, req, flags)
	}
	defer httpResp.Body.Close()

	data, err := readBody(httpResp.Body, cfg.MaxContentLength)
	if err != nil {
		if errors.Is(err, errContentTooLarge) {
			return nil, &Error{
				Code:    ErrCodeBadResponse,
				Message: fmt.Sprintf("maxContentLength size of %d exceeded", cfg.MaxContentLength),
				Config:  cfg,
				Request: req,
			}
		}
		return nil, transportError(ctx, err, cfg, req, flags)
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: http.StatusText(httpResp.StatusCode),
		Header:     httpResp.Header,
		Data:       data,
		Config:     cfg,
		Request:    req,
	}

	if cfg.ValidateStatus != nil && !cfg.ValidateStatus(resp.Status) {
		code := ErrCodeBadResponse
		if resp.Status < 500 {
			code = ErrCodeBadRequest
		}
		return nil, &Error{
			Code:     code,
			Message:  fmt.Sprintf("Request failed with status code %d", resp.Status),
			Config:   cfg,
			Request:  req,
			Response: resp,
		}
	}

	if !flags.SilentJSONParsing && expectsJSON(resp, flags) && !json.Valid(resp.Data) {
		return nil, &Error{
			Code:     ErrCodeBadResponse,
			Message:  "response body is not valid JSON",
			Config:   cfg,
			Request:  req,
			Response: resp,
		}
	}

	return resp, nil
}

func requestTarget(cfg *Config) (string, error) {
	serializer, err := paramsSerializerFrom(cfg.ParamsSerializer)
	if err != nil {
		return "", err
	}
	full := urlbuild.BuildURL(urlbuild.BuildFullPath(cfg.BaseURL, cfg.URL), cfg.Params, serializer)
	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", full)
	}
	return full, nil
}

func transportError(ctx context.Context, err error, cfg *Config, req *http.Request, flags TransitionalFlags) error {
	cause := context.Cause(ctx)
	var reason *CanceledError
	switch {
	case errors.As(cause, &reason):
		return reason
	case errors.Is(cause, errConfigTimeout):
		code := ErrCodeConnAborted
		if flags.ClarifyTimeoutError {
			code = ErrCodeTimedOut
		}
		return &Error{
			Code:    code,
			Message: fmt.Sprintf("timeout of %dms exceeded", cfg.Timeout.Milliseconds()),
			Cause:   err,
			Config:  cfg,
			Request: req,
		}
	case errors.Is(ctx.Err(), context.Canceled):
		return &CanceledError{Message: "canceled", Config: cfg, Request: req}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Code: ErrCodeConnAborted, Message: "context deadline exceeded", Cause: err, Config: cfg, Request: req}
	default:
		return &Error{Code: ErrCodeNetwork, Message: "Network Error", Cause: err, Config: cfg, Request: req}
	}
}

var errContentTooLarge = errors.New("courier: content too large")

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit < 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errContentTooLarge
	}
	return data, nil
}

func expectsJSON(resp *Response, flags TransitionalFlags) bool {
	if len(bytes.TrimSpace(resp.Data)) == 0 {
		return false
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return true
	}
	if !flags.ForcedJSONParsing {
		return false
	}
	first := bytes.TrimSpace(resp.Data)[0]
	return first == '{' || first == '['
}

// encodeBody turns data into a request body and fills in Content-Type.
func encodeBody(data any, header http.Header) (io.Reader, error) {
	if data == nil {
		return nil, nil
	}
	contentType := strings.ToLower(header.Get("Content-Type"))

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return encodeMultipart(data, header)
	}

	switch v := data.(type) {
	case []byte:
		return bytes.NewReader(v), nil
	case string:
		return strings.NewReader(v), nil
	case io.Reader:
		return v, nil
	case url.Values:
		setDefaultContentType(header, "application/x-www-form-urlencoded")
		return strings.NewReader(v.Encode()), nil
	}

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		values, err := formValues(data)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(values.Encode()), nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal JSON body: %w", err)
	}
	setDefaultContentType(header, "application/json")
	return bytes.NewReader(payload), nil
}

func setDefaultContentType(header http.Header, contentType string) {
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}
}

func formValues(data any) (url.Values, error) {
	switch v := data.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		values := make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
		return values, nil
	case map[string]any:
		values := make(url.Values, len(v))
		for k, item := range v {
			if list, ok := item.([]string); ok {
				values[k] = list
				continue
			}
			values.Set(k, fmt.Sprint(item))
		}
		return values, nil
	default:
		return nil, fmt.Errorf("cannot form-encode %T", data)
	}
}

func encodeMultipart(data any, header http.Header) (io.Reader, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	var fields map[string]any
	switch v := data.(type) {
	case map[string]any:
		fields = v
	default:
		values, err := formValues(data)
		if err != nil {
			return nil, err
		}
		fields = make(map[string]any, len(values))
		for k, vv := range values {
			fields[k] = vv
		}
	}

	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := writePart(w, name, fields[name]); err != nil {
			return nil, fmt.Errorf("multipart field %q: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	header.Set("Content-Type", w.FormDataContentType())
	return &buf, nil
}

func writePart(w *multipart.Writer, name string, value any) error {
	switch v := value.(type) {
	case FormFile:
		part, err := w.CreateFormFile(name, v.Filename)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, v.Content)
		return err
	case *FormFile:
		return writePart(w, name, *v)
	case []string:
		for _, s := range v {
			if err := w.WriteField(name, s); err != nil {
				return err
			}
		}
		return nil
	case []byte:
		return w.WriteField(name, string(v))
	default:
		return w.WriteField(name, fmt.Sprint(v))
	}
}
