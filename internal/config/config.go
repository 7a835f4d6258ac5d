// ABOUTME: Configuration loading and parsing for dialgate.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dialgate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Sessions SessionsConfig `yaml:"sessions"`
	Database DatabaseConfig `yaml:"database"`
	Voice    VoiceConfig    `yaml:"voice"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds transport addresses and protocol behavior knobs.
type ServerConfig struct {
	HTTPAddr   string `yaml:"http_addr"`
	StreamAddr string `yaml:"stream_addr"`
	// RequireInitialize gates capability calls behind the initialize
	// handshake. Turning it off is a local-debugging convenience; it is not
	// a security boundary.
	RequireInitialize *bool `yaml:"require_initialize"`
	// StrictNames makes duplicate capability registration a startup panic
	// instead of a warn-and-overwrite.
	StrictNames bool `yaml:"strict_names"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// SessionsConfig holds session lifecycle timing.
type SessionsConfig struct {
	ReapInterval  time.Duration `yaml:"-"`
	IdleThreshold time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ReapIntervalRaw  string `yaml:"reap_interval"`
	IdleThresholdRaw string `yaml:"idle_threshold"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VoiceConfig holds voice provider configuration.
type VoiceConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// UseFake swaps the HTTP dialer for the in-memory fake, for local runs
	// without a provider account.
	UseFake bool `yaml:"use_fake"`
}

// MirrorConfig holds mirror sink configuration.
type MirrorConfig struct {
	// Sink is "outbox" (sqlite table) or "csv".
	Sink    string `yaml:"sink"`
	CSVPath string `yaml:"csv_path"`
}

// CatalogConfig points at the capability catalog file.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RequireInitializeOrDefault returns the knob's value, defaulting to true
// when unset.
func (s *ServerConfig) RequireInitializeOrDefault() bool {
	if s.RequireInitialize == nil {
		return true
	}
	return *s.RequireInitialize
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" && c.Server.StreamAddr == "" {
		return fmt.Errorf("at least one of server.http_addr / server.stream_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	switch c.Mirror.Sink {
	case "", "outbox":
	case "csv":
		if c.Mirror.CSVPath == "" {
			return fmt.Errorf("mirror.csv_path is required for the csv sink")
		}
	default:
		return fmt.Errorf("mirror.sink must be \"outbox\" or \"csv\", got %q", c.Mirror.Sink)
	}

	if !c.Voice.UseFake && c.Voice.BaseURL == "" {
		return fmt.Errorf("voice.base_url is required unless voice.use_fake is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.ReapIntervalRaw != "" {
		cfg.Sessions.ReapInterval, err = time.ParseDuration(cfg.Sessions.ReapIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reap_interval %q: %w", cfg.Sessions.ReapIntervalRaw, err)
		}
	}

	if cfg.Sessions.IdleThresholdRaw != "" {
		cfg.Sessions.IdleThreshold, err = time.ParseDuration(cfg.Sessions.IdleThresholdRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_threshold %q: %w", cfg.Sessions.IdleThresholdRaw, err)
		}
	}

	return nil
}
