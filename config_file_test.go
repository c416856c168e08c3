package courier

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDecodeConfig(t *testing.T) {
	input := map[string]any{
		"url":                "/users",
		"method":             "POST",
		"base_url":           testBaseURL,
		"timeout":            "1500ms",
		"max_content_length": 2048,
		"headers":            map[string]any{"x-trace": "on"},
		"method_headers": map[string]any{
			"GET": map[string]any{"Accept": "application/json"},
		},
		"params":       map[string]any{"page": "1", "tag": []any{"a", "b"}},
		"transitional": map[string]any{"clarify_timeout_error": true},
		"auth":         map[string]any{"username": "alice", "password": "secret"},
		"region":       "eu-west",
	}

	cfg, err := DecodeConfig(input)
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}

	if cfg.URL != "/users" || cfg.Method != "post" || cfg.BaseURL != testBaseURL {
		t.Errorf("Unexpected scalars: %+v", cfg)
	}
	if cfg.Timeout != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s timeout, got %v", cfg.Timeout)
	}
	if cfg.MaxContentLength != 2048 {
		t.Errorf("Expected max content length 2048, got %d", cfg.MaxContentLength)
	}
	if cfg.Header.Get("X-Trace") != "on" {
		t.Errorf("Expected canonical header, got %v", cfg.Header)
	}
	if cfg.MethodHeaders["get"].Get("Accept") != "application/json" {
		t.Errorf("Expected lower-case method bucket, got %v", cfg.MethodHeaders)
	}
	if cfg.Params.Get("page") != "1" || len(cfg.Params["tag"]) != 2 {
		t.Errorf("Unexpected params: %v", cfg.Params)
	}
	if cfg.Transitional["clarifyTimeoutError"] != true || len(cfg.Transitional) != 1 {
		t.Errorf("Unexpected transitional options: %v", cfg.Transitional)
	}
	if cfg.Auth == nil || cfg.Auth.Username != "alice" {
		t.Errorf("Unexpected auth: %+v", cfg.Auth)
	}
	if cfg.Extra["region"] != "eu-west" {
		t.Errorf("Expected unknown keys in Extra, got %v", cfg.Extra)
	}

	if err := validateConfig(cfg); err != nil {
		t.Errorf("Expected decoded config to validate, got %v", err)
	}
}

func TestDecodeConfigBadDuration(t *testing.T) {
	if _, err := DecodeConfig(map[string]any{"timeout": "soon"}); err == nil {
		t.Error("Expected invalid duration to fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	content := `
base_url = "https://api.example.com"
timeout = "5s"

[headers]
Authorization = "Bearer token"

[params]
lang = ["en", "de"]

[transitional]
silent_json_parsing = false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf(expectedNoErrMsg, err)
	}
	if cfg.BaseURL != testBaseURL || cfg.Timeout != 5*time.Second {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.Header.Get("Authorization") != "Bearer token" {
		t.Errorf("Unexpected headers: %v", cfg.Header)
	}
	if got := cfg.Params["lang"]; len(got) != 2 || got[1] != "de" {
		t.Errorf("Unexpected params: %v", cfg.Params)
	}
	if cfg.Transitional["silentJSONParsing"] != false {
		t.Errorf("Unexpected transitional: %v", cfg.Transitional)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected missing file to fail")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("base_url = "), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("Expected malformed TOML to fail")
	}
}
