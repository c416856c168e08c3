package courier

import (
	"maps"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// MergeStrategy decides how one config key combines a base and an override.
type MergeStrategy int

const (
	// OverrideWins takes the override value when present, else the base value.
	OverrideWins MergeStrategy = iota
	// DeepMerge merges mapping values key by key, override keys winning.
	DeepMerge
	// OverrideOnly always takes the override value.
	OverrideOnly
	// DefaultOnly always keeps the base value.
	DefaultOnly
)

func (s MergeStrategy) String() string {
	switch s {
	case OverrideWins:
		return "override-wins"
	case DeepMerge:
		return "deep-merge"
	case OverrideOnly:
		return "override-only"
	case DefaultOnly:
		return "default-only"
	default:
		return "unknown"
	}
}

// Config keys understood by the merge strategy table.
const (
	KeyURL              = "url"
	KeyMethod           = "method"
	KeyBaseURL          = "baseURL"
	KeyHeader           = "header"
	KeyMethodHeaders    = "methodHeaders"
	KeyParams           = "params"
	KeyParamsSerializer = "paramsSerializer"
	KeyData             = "data"
	KeyTimeout          = "timeout"
	KeyTransitional     = "transitional"
	KeyCancelToken      = "cancelToken"
	KeyValidateStatus   = "validateStatus"
	KeyMaxContentLength = "maxContentLength"
	KeyAuth             = "auth"
	KeyTransport        = "transport"
)

// DefaultMergeStrategies returns a fresh copy of the built-in strategy table.
// Keys absent from the table, including unrecognized Extra keys, use
// OverrideWins.
func DefaultMergeStrategies() map[string]MergeStrategy {
	return map[string]MergeStrategy{
		KeyURL:              OverrideWins,
		KeyMethod:           OverrideWins,
		KeyBaseURL:          OverrideWins,
		KeyHeader:           DeepMerge,
		KeyMethodHeaders:    DeepMerge,
		KeyParams:           DeepMerge,
		KeyParamsSerializer: OverrideWins,
		KeyData:             OverrideOnly,
		KeyTimeout:          OverrideWins,
		KeyTransitional:     OverrideWins,
		KeyCancelToken:      OverrideWins,
		KeyValidateStatus:   OverrideWins,
		KeyMaxContentLength: OverrideWins,
		KeyAuth:             OverrideWins,
		KeyTransport:        DefaultOnly,
	}
}

type fieldMerger func(dst, base, override *Config, s MergeStrategy)

var fieldMergers = map[string]fieldMerger{
	KeyURL:     field(func(c *Config) *string { return &c.URL }, nonEmpty, nil, nil),
	KeyMethod:  field(func(c *Config) *string { return &c.Method }, nonEmpty, nil, nil),
	KeyBaseURL: field(func(c *Config) *string { return &c.BaseURL }, nonEmpty, nil, nil),
	KeyHeader: field(func(c *Config) *http.Header { return &c.Header },
		func(h http.Header) bool { return len(h) > 0 }, mergeHeader, cloneHeader),
	KeyMethodHeaders: field(func(c *Config) *map[string]http.Header { return &c.MethodHeaders },
		func(m map[string]http.Header) bool { return len(m) > 0 }, mergeMethodHeaders, cloneMethodHeaders),
	KeyParams: field(func(c *Config) *url.Values { return &c.Params },
		func(v url.Values) bool { return len(v) > 0 }, mergeParams, cloneParams),
	KeyParamsSerializer: field(func(c *Config) *Options { return &c.ParamsSerializer },
		func(o Options) bool { return len(o) > 0 }, mergeOptions, cloneOptions),
	KeyData: field(func(c *Config) *any { return &c.Data },
		func(v any) bool { return v != nil }, nil, nil),
	KeyTimeout: field(func(c *Config) *time.Duration { return &c.Timeout },
		func(d time.Duration) bool { return d != 0 }, nil, nil),
	KeyTransitional: field(func(c *Config) *Options { return &c.Transitional },
		func(o Options) bool { return len(o) > 0 }, mergeOptions, cloneOptions),
	KeyCancelToken: field(func(c *Config) **CancelToken { return &c.CancelToken },
		func(t *CancelToken) bool { return t != nil }, nil, nil),
	KeyValidateStatus: field(func(c *Config) *func(int) bool { return &c.ValidateStatus },
		func(f func(int) bool) bool { return f != nil }, nil, nil),
	KeyMaxContentLength: field(func(c *Config) *int64 { return &c.MaxContentLength },
		func(n int64) bool { return n != 0 }, nil, nil),
	KeyAuth: field(func(c *Config) **BasicAuth { return &c.Auth },
		func(a *BasicAuth) bool { return a != nil }, nil, cloneAuth),
	KeyTransport: field(func(c *Config) *Transport { return &c.Transport },
		func(t Transport) bool { return t != nil }, nil, nil),
}

func field[T any](get func(*Config) *T, present func(T) bool, deep func(base, override T) T, clone func(T) T) fieldMerger {
	return func(dst, base, override *Config, s MergeStrategy) {
		v := pick(s, *get(base), *get(override), present, deep)
		if clone != nil {
			v = clone(v)
		}
		*get(dst) = v
	}
}

func pick[T any](s MergeStrategy, base, override T, present func(T) bool, deep func(base, override T) T) T {
	switch s {
	case OverrideOnly:
		return override
	case DefaultOnly:
		return base
	case DeepMerge:
		if deep != nil {
			return deep(base, override)
		}
	}
	if present(override) {
		return override
	}
	return base
}

func nonEmpty(s string) bool { return s != "" }

// MergeConfig combines base and override with the default strategy table.
// Neither input is modified; nil is treated as an empty config.
func MergeConfig(base, override *Config) *Config {
	return mergeConfig(nil, base, override)
}

func mergeConfig(strategies map[string]MergeStrategy, base, override *Config) *Config {
	if strategies == nil {
		strategies = DefaultMergeStrategies()
	}
	if base == nil {
		base = &Config{}
	}
	if override == nil {
		override = &Config{}
	}

	out := &Config{}
	for key, merge := range fieldMergers {
		merge(out, base, override, strategyFor(strategies, key))
	}
	out.Extra = mergeExtra(strategies, base.Extra, override.Extra)
	return out
}

func strategyFor(strategies map[string]MergeStrategy, key string) MergeStrategy {
	if s, ok := strategies[key]; ok {
		return s
	}
	return OverrideWins
}

func mergeExtra(strategies map[string]MergeStrategy, base, override map[string]any) map[string]any {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	keys := make(map[string]struct{}, len(base)+len(override))
	for k := range base {
		keys[k] = struct{}{}
	}
	for k := range override {
		keys[k] = struct{}{}
	}
	for k := range keys {
		b, hasBase := base[k]
		o, hasOverride := override[k]
		switch strategyFor(strategies, k) {
		case OverrideOnly:
			if hasOverride {
				out[k] = cloneValue(o)
			}
		case DefaultOnly:
			if hasBase {
				out[k] = cloneValue(b)
			}
		case DeepMerge:
			out[k] = deepMergeValue(b, o, hasOverride)
		default:
			if hasOverride {
				out[k] = cloneValue(o)
			} else {
				out[k] = cloneValue(b)
			}
		}
	}
	return out
}

func deepMergeValue(base, override any, hasOverride bool) any {
	bm, baseIsMap := base.(map[string]any)
	om, overrideIsMap := override.(map[string]any)
	switch {
	case baseIsMap && overrideIsMap:
		out := make(map[string]any, len(bm)+len(om))
		for k, v := range bm {
			out[k] = cloneValue(v)
		}
		for k, v := range om {
			if prev, ok := out[k]; ok {
				out[k] = deepMergeValue(prev, v, true)
			} else {
				out[k] = cloneValue(v)
			}
		}
		return out
	case hasOverride:
		return cloneValue(override)
	default:
		return cloneValue(base)
	}
}

func cloneValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, vv := range m {
			out[k] = cloneValue(vv)
		}
		return out
	}
	return v
}

func mergeHeader(base, override http.Header) http.Header {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(http.Header, len(base)+len(override))
	for k, vv := range base {
		out[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vv...)
	}
	for k, vv := range override {
		out[textproto.CanonicalMIMEHeaderKey(k)] = append([]string(nil), vv...)
	}
	return out
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	return mergeHeader(h, nil)
}

func mergeMethodHeaders(base, override map[string]http.Header) map[string]http.Header {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]http.Header, len(base)+len(override))
	for k, h := range base {
		k = strings.ToLower(k)
		out[k] = mergeHeader(out[k], h)
	}
	for k, h := range override {
		k = strings.ToLower(k)
		out[k] = mergeHeader(out[k], h)
	}
	return out
}

func cloneMethodHeaders(m map[string]http.Header) map[string]http.Header {
	if m == nil {
		return nil
	}
	return mergeMethodHeaders(m, nil)
}

func mergeParams(base, override url.Values) url.Values {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(url.Values, len(base)+len(override))
	for k, vv := range base {
		out[k] = append([]string(nil), vv...)
	}
	for k, vv := range override {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

func cloneParams(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	return mergeParams(v, nil)
}

func mergeOptions(base, override Options) Options {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(Options, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

func cloneOptions(o Options) Options {
	if o == nil {
		return nil
	}
	return maps.Clone(o)
}

func cloneAuth(a *BasicAuth) *BasicAuth {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
