package courier

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
)

// fileConfig is the on-disk shape of a Config. Keys that do not match a
// field land in Extra.
type fileConfig struct {
	URL              string                       `mapstructure:"url"`
	Method           string                       `mapstructure:"method"`
	BaseURL          string                       `mapstructure:"base_url"`
	Headers          map[string]string            `mapstructure:"headers"`
	MethodHeaders    map[string]map[string]string `mapstructure:"method_headers"`
	Params           map[string][]string          `mapstructure:"params"`
	Timeout          time.Duration                `mapstructure:"timeout"`
	MaxContentLength int64                        `mapstructure:"max_content_length"`
	Transitional     *fileTransitional            `mapstructure:"transitional"`
	Auth             *fileAuth                    `mapstructure:"auth"`
	Extra            map[string]any               `mapstructure:",remain"`
}

type fileTransitional struct {
	SilentJSONParsing   *bool `mapstructure:"silent_json_parsing"`
	ForcedJSONParsing   *bool `mapstructure:"forced_json_parsing"`
	ClarifyTimeoutError *bool `mapstructure:"clarify_timeout_error"`
}

type fileAuth struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoadConfigFile reads a TOML file and decodes it with DecodeConfig.
func LoadConfigFile(path string) (*Config, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg, err := DecodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig builds a Config from a generic map, as produced by TOML or
// JSON decoders. Durations are given as strings such as "1500ms".
func DecodeConfig(input map[string]any) (*Config, error) {
	var fc fileConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fc,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}
	return fc.config(), nil
}

func (fc *fileConfig) config() *Config {
	cfg := &Config{
		URL:              fc.URL,
		Method:           strings.ToLower(fc.Method),
		BaseURL:          fc.BaseURL,
		Timeout:          fc.Timeout,
		MaxContentLength: fc.MaxContentLength,
	}

	if len(fc.Headers) > 0 {
		cfg.Header = make(http.Header, len(fc.Headers))
		for k, v := range fc.Headers {
			cfg.Header.Set(k, v)
		}
	}
	if len(fc.MethodHeaders) > 0 {
		cfg.MethodHeaders = make(map[string]http.Header, len(fc.MethodHeaders))
		for method, headers := range fc.MethodHeaders {
			h := make(http.Header, len(headers))
			for k, v := range headers {
				h.Set(k, v)
			}
			cfg.MethodHeaders[strings.ToLower(method)] = h
		}
	}
	if len(fc.Params) > 0 {
		cfg.Params = url.Values(fc.Params)
	}
	if t := fc.Transitional; t != nil {
		cfg.Transitional = Options{}
		setFlag(cfg.Transitional, "silentJSONParsing", t.SilentJSONParsing)
		setFlag(cfg.Transitional, "forcedJSONParsing", t.ForcedJSONParsing)
		setFlag(cfg.Transitional, "clarifyTimeoutError", t.ClarifyTimeoutError)
	}
	if fc.Auth != nil {
		cfg.Auth = &BasicAuth{Username: fc.Auth.Username, Password: fc.Auth.Password}
	}
	if len(fc.Extra) > 0 {
		cfg.Extra = fc.Extra
	}
	return cfg
}

func setFlag(opts Options, key string, v *bool) {
	if v != nil {
		opts[key] = *v
	}
}
