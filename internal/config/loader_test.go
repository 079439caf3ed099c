package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	// Create a temp YAML file
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "intentd.yaml", `
rate_limit:
  window: 30s
  limit: 5
disambiguation:
  min_confidence: 0.9
  min_margin: 0.2
  fallback_min_confidence: 0.95
  fallback_min_margin: 0.3
`)
	writeFile(t, dir, "providers.yaml", `
providers:
  openai:
    type: openai
    base_url: https://api.openai.com/v1
    api_key: ${OPENAI_API_KEY:sk-test}
    timeout: 2s
`)

	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.RateLimit.Limit != 5 {
		t.Errorf("expected limit 5, got %d", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("expected window 30s, got %s", cfg.RateLimit.Window)
	}
	if cfg.Disambiguation.MinConfidence != 0.9 {
		t.Errorf("expected min_confidence 0.9, got %f", cfg.Disambiguation.MinConfidence)
	}
	// Unset sections keep their defaults.
	if cfg.Resolver.TopK != 5 {
		t.Errorf("expected default top_k 5, got %d", cfg.Resolver.TopK)
	}

	p, ok := l.Providers().Providers["openai"]
	if !ok {
		t.Fatal("expected openai provider")
	}
	if p.APIKey != "sk-test" {
		t.Errorf("expected default api key, got %q", p.APIKey)
	}
}

func TestLoader_Load_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "intentd.yaml", `
parser:
  confidence_floor: 0.5
  heuristic_ceiling: 0.7
`)
	writeFile(t, dir, "providers.yaml", "providers: {}\n")

	l := NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := l.Load(); err == nil {
		t.Fatal("expected error when heuristic ceiling exceeds confidence floor")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero limit", func(c *Config) { c.RateLimit.Limit = 0 }, true},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, true},
		{"margin out of range", func(c *Config) { c.Disambiguation.MinMargin = 1.5 }, true},
		{"unknown identity mode", func(c *Config) { c.Identity.Mode = "oauth" }, true},
		{"static without tenant", func(c *Config) { c.Identity.Mode = "static" }, true},
		{"static complete", func(c *Config) {
			c.Identity.Mode = "static"
			c.Identity.StaticTenant = "org-1"
			c.Identity.StaticUser = "user-1"
		}, false},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "intentd", User: "svc", Password: "p@ss", MaxOpenConns: 10}
	want := "postgres://svc:p%40ss@db:5432/intentd?sslmode=disable&pool_max_conns=10"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
