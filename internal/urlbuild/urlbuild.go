// Package urlbuild joins base URLs with request paths and appends query strings.
package urlbuild

import (
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var absoluteURL = regexp.MustCompile(`^([a-zA-Z][a-zA-Z\d+\-.]*:)?//`)

// IsAbsolute reports whether u carries a scheme or is protocol-relative.
func IsAbsolute(u string) bool {
	return absoluteURL.MatchString(u)
}

// Combine joins baseURL and relative with exactly one slash between them.
func Combine(baseURL, relative string) string {
	if relative == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(relative, "/")
}

// BuildFullPath prefixes requested with baseURL unless requested is absolute.
func BuildFullPath(baseURL, requested string) string {
	if baseURL != "" && !IsAbsolute(requested) {
		return Combine(baseURL, requested)
	}
	return requested
}

// Serializer customizes query string encoding. Either field may be nil.
type Serializer struct {
	Encode    func(string) string
	Serialize func(url.Values) string
}

// BuildURL appends params to rawURL. A fragment in rawURL is dropped, and an
// existing query string is extended with "&".
func BuildURL(rawURL string, params url.Values, s *Serializer) string {
	if len(params) == 0 {
		return rawURL
	}

	var query string
	switch {
	case s != nil && s.Serialize != nil:
		query = s.Serialize(params)
	case s != nil && s.Encode != nil:
		query = encodeWith(params, s.Encode)
	default:
		query = params.Encode()
	}
	if query == "" {
		return rawURL
	}

	if i := strings.IndexByte(rawURL, '#'); i != -1 {
		rawURL = rawURL[:i]
	}
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + query
	}
	return rawURL + "?" + query
}

func encodeWith(params url.Values, encode func(string) string) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(params)) {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(encode(k))
			b.WriteByte('=')
			b.WriteString(encode(v))
		}
	}
	return b.String()
}
