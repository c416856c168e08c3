package courier

import "net/http"

// DefaultAccept is the Accept header every client starts with.
const DefaultAccept = "application/json, text/plain, */*"

// DefaultConfig returns the defaults a new Client starts from.
func DefaultConfig() *Config {
	return &Config{
		MethodHeaders: map[string]http.Header{
			CommonHeaders: {
				"Accept":     {DefaultAccept},
				"User-Agent": {"courier/" + Version},
			},
		},
		Transitional: Options{
			"silentJSONParsing":   true,
			"forcedJSONParsing":   true,
			"clarifyTimeoutError": false,
		},
		ValidateStatus:   DefaultValidateStatus,
		MaxContentLength: -1,
		Transport:        NewHTTPTransport(nil),
	}
}

// DefaultValidateStatus accepts 2xx statuses.
func DefaultValidateStatus(status int) bool {
	return status >= 200 && status < 300
}
