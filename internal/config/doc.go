// Package config handles configuration loading for dialgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DIALGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sessions:
//	  reap_interval: "5m"
//	  idle_threshold: "30m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"    # HTTP request/response transport
//	  stream_addr: "0.0.0.0:9090"  # newline-delimited stream transport
//	  require_initialize: true
//	  strict_names: false
//
// Database:
//
//	database:
//	  path: "/var/lib/dialgate/dialgate.db"
//
// Authentication:
//
//	auth:
//	  enabled: true
//	  jwt_secret: "${DIALGATE_JWT_SECRET}"
//	  issuer: "dialgate"
//
// Voice provider:
//
//	voice:
//	  base_url: "https://voice.example.com"
//	  api_key: "${VOICE_API_KEY}"
//	  use_fake: false
//
// Mirror sink:
//
//	mirror:
//	  sink: "outbox"   # outbox (sqlite table) or csv
//	  csv_path: ""
//
// Capability catalog:
//
//	catalog:
//	  path: "/etc/dialgate/catalog.toml"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - At least one transport address is configured
//   - Database path is set
//   - JWT secret presence when auth is enabled
//   - Mirror sink values and csv_path pairing
//   - Voice base URL unless the fake dialer is selected
//   - Duration format validity
//
// # Usage
//
//	cfg, err := config.Load("/etc/dialgate/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
