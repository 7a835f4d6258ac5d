// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
  stream_addr: "0.0.0.0:9090"
  strict_names: true

auth:
  enabled: true
  jwt_secret: "test-secret"
  issuer: "dialgate-test"

sessions:
  reap_interval: "5m"
  idle_threshold: "30m"

database:
  path: "./test.db"

voice:
  use_fake: true

mirror:
  sink: "csv"
  csv_path: "./mirror.csv"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Server.StreamAddr != "0.0.0.0:9090" {
		t.Errorf("Server.StreamAddr = %q", cfg.Server.StreamAddr)
	}
	if !cfg.Server.StrictNames {
		t.Error("Server.StrictNames should be true")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Sessions.ReapInterval != 5*time.Minute {
		t.Errorf("Sessions.ReapInterval = %v", cfg.Sessions.ReapInterval)
	}
	if cfg.Sessions.IdleThreshold != 30*time.Minute {
		t.Errorf("Sessions.IdleThreshold = %v", cfg.Sessions.IdleThreshold)
	}
	if cfg.Mirror.Sink != "csv" || cfg.Mirror.CSVPath != "./mirror.csv" {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("DIALGATE_TEST_SECRET", "from-env")

	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
auth:
  enabled: true
  jwt_secret: "${DIALGATE_TEST_SECRET}"
database:
  path: "./test.db"
voice:
  use_fake: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "${DIALGATE_DEFINITELY_UNSET_VAR}"
voice:
  use_fake: true
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "database.path") {
		t.Errorf("expected database.path validation failure, got %v", err)
	}
}

func TestLoad_RequireInitializeDefault(t *testing.T) {
	t.Run("unset defaults to true", func(t *testing.T) {
		cfg := &Config{}
		if !cfg.Server.RequireInitializeOrDefault() {
			t.Error("RequireInitialize should default to true")
		}
	})

	t.Run("explicit false respected", func(t *testing.T) {
		configPath := writeConfig(t, `
server:
  http_addr: ":8080"
  require_initialize: false
database:
  path: "./test.db"
voice:
  use_fake: true
`)
		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.RequireInitializeOrDefault() {
			t.Error("explicit false should be respected")
		}
	})
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "no addresses",
			content: `
database:
  path: "./test.db"
voice:
  use_fake: true
`,
			wantErr: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
voice:
  use_fake: true
`,
			wantErr: "database.path",
		},
		{
			name: "auth enabled without secret",
			content: `
server:
  http_addr: ":8080"
auth:
  enabled: true
database:
  path: "./test.db"
voice:
  use_fake: true
`,
			wantErr: "jwt_secret",
		},
		{
			name: "csv sink without path",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
voice:
  use_fake: true
mirror:
  sink: "csv"
`,
			wantErr: "csv_path",
		},
		{
			name: "unknown mirror sink",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
voice:
  use_fake: true
mirror:
  sink: "kafka"
`,
			wantErr: "mirror.sink",
		},
		{
			name: "real voice without base url",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`,
			wantErr: "voice.base_url",
		},
		{
			name: "bad duration",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
voice:
  use_fake: true
sessions:
  reap_interval: "five minutes"
`,
			wantErr: "reap_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
