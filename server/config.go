// ABOUTME: Server configuration loaded from COMBINE_* environment variables.
// ABOUTME: Enforces security constraint: remote access requires auth token.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// ConfigError represents configuration validation errors.
var (
	ErrRemoteWithoutToken = errors.New(
		"COMBINE_ALLOW_REMOTE is true but COMBINE_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"COMBINE_BIND is a non-loopback address but COMBINE_ALLOW_REMOTE is not true; set COMBINE_ALLOW_REMOTE=true and COMBINE_AUTH_TOKEN to allow remote access",
	)
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Home        string // Data directory (COMBINE_HOME, default: ~/.combine)
	Bind        string // Socket address (COMBINE_BIND, default: 127.0.0.1:8700)
	AllowRemote bool   // Allow non-loopback connections (COMBINE_ALLOW_REMOTE, default: false)
	AuthToken   string // Bearer token for API auth (COMBINE_AUTH_TOKEN, optional)
	DatabaseURL string // Postgres connection string (COMBINE_DATABASE_URL; empty means SQLite under Home)
	APIKey      string // LLM provider API key (COMBINE_API_KEY)
	Model       string // LLM model name (COMBINE_MODEL, optional)
	BaseURL     string // LLM provider base URL for OpenAI-compatible endpoints (COMBINE_BASE_URL)
}

// ConfigFromEnv loads configuration from COMBINE_* environment variables with
// sensible defaults.
func ConfigFromEnv() (*Config, error) {
	home := envOrDefault("COMBINE_HOME", "")
	if home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		home = filepath.Join(homeDir, ".combine")
	}

	bind := envOrDefault("COMBINE_BIND", "127.0.0.1:8700")

	allowRemote := false
	if v := os.Getenv("COMBINE_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	authToken := os.Getenv("COMBINE_AUTH_TOKEN")

	// Security: remote access requires auth token
	if allowRemote && authToken == "" {
		return nil, ErrRemoteWithoutToken
	}

	// Security: refuse non-loopback binds unless explicitly opting into
	// remote access. Only 127.0.0.0/8, ::1, and "localhost" are safe.
	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
			case ip != nil:
				return nil, fmt.Errorf("%w: COMBINE_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
			default:
				return nil, fmt.Errorf("%w: COMBINE_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return &Config{
		Home:        home,
		Bind:        bind,
		AllowRemote: allowRemote,
		AuthToken:   authToken,
		DatabaseURL: os.Getenv("COMBINE_DATABASE_URL"),
		APIKey:      os.Getenv("COMBINE_API_KEY"),
		Model:       os.Getenv("COMBINE_MODEL"),
		BaseURL:     os.Getenv("COMBINE_BASE_URL"),
	}, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
