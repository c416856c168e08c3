package courier

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCanceled matches every *CanceledError via errors.Is.
	ErrCanceled = errors.New("courier: canceled")

	// ErrNilTransport is returned when no transport is configured.
	ErrNilTransport = errors.New("courier: no transport configured")

	// ErrInterceptorPanic wraps a panic recovered from an interceptor or transport.
	ErrInterceptorPanic = errors.New("courier: interceptor panicked")
)

// Error codes carried by *Error.
const (
	ErrCodeBadOptionValue = "ERR_BAD_OPTION_VALUE"
	ErrCodeBadOption      = "ERR_BAD_OPTION"
	ErrCodeNetwork        = "ERR_NETWORK"
	ErrCodeBadRequest     = "ERR_BAD_REQUEST"
	ErrCodeBadResponse    = "ERR_BAD_RESPONSE"
	ErrCodeInvalidURL     = "ERR_INVALID_URL"
	ErrCodeConnAborted    = "ECONNABORTED"
	ErrCodeTimedOut       = "ETIMEDOUT"
	ErrCodeCanceled       = "ERR_CANCELED"
	ErrCodeValidation     = "ERR_CLIENT_CONFIG"
)

// Error is the failure type produced by option validation and by the HTTP
// transport.
type Error struct {
	Code     string
	Message  string
	Cause    error
	Config   *Config
	Request  *http.Request
	Response *Response
}

// Error implements error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Response != nil {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Response.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error codes for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Code: %s\n", e.Code)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	if e.Config != nil {
		if e.Config.Method != "" {
			fmt.Fprintf(&b, "Method: %s\n", strings.ToUpper(e.Config.Method))
		}
		if e.Config.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", e.Config.URL)
		}
	}
	if e.Response != nil {
		fmt.Fprintf(&b, "Status Code: %d\n", e.Response.Status)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	return b.String()
}

// AsError extracts *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CanceledError is the reason recorded by a cancelled CancelToken.
type CanceledError struct {
	Message string
	Config  *Config
	Request *http.Request
}

func (e *CanceledError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return "canceled"
	}
	return e.Message
}

// Is makes errors.Is(err, ErrCanceled) hold for every cancellation reason.
func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// IsCancel reports whether err is, or wraps, a cancellation reason.
func IsCancel(err error) bool {
	return errors.Is(err, ErrCanceled)
}
