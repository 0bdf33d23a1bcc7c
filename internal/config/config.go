package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosuda/boardsync/internal/backoff"
	"github.com/gosuda/boardsync/internal/session"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	API   APIConfig
	Sync  SyncConfig
	OAuth OAuthConfig
	Log   LogConfig
	Dev   DevConfig
}

// APIConfig holds backend endpoint settings.
type APIConfig struct {
	BaseURL string
	Token   string //nolint:gosec // G117: API credential config
}

// SyncConfig holds live connection tuning.
type SyncConfig struct {
	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	DialTimeout       time.Duration
}

// OAuthConfig holds client-credentials settings, used when no static
// token is configured.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string //nolint:gosec // G117: OAuth credential config
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// DevConfig holds settings for the local development server.
type DevConfig struct {
	Addr            string
	JWTSecret       string //nolint:gosec // G117: dev fixture signing secret
	CORSOrigins     []string
	Boards          []string
	SuggestInterval time.Duration
}

// Load reads configuration from environment variables. Defaults are
// safe for local development against the bundled dev server; point
// BOARDSYNC_API_BASE_URL at a real backend for anything else.
func Load() (*Config, error) {
	heartbeat, err := getEnvDuration("BOARDSYNC_HEARTBEAT_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	backoffBase, err := getEnvDuration("BOARDSYNC_BACKOFF_BASE", time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	backoffCap, err := getEnvDuration("BOARDSYNC_BACKOFF_CAP", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dialTimeout, err := getEnvDuration("BOARDSYNC_DIAL_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	suggestInterval, err := getEnvDuration("BOARDSYNC_DEV_SUGGEST_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL: getEnv("BOARDSYNC_API_BASE_URL", "http://localhost:8090"),
			Token:   getEnv("BOARDSYNC_TOKEN", ""),
		},
		Sync: SyncConfig{
			HeartbeatInterval: heartbeat,
			BackoffBase:       backoffBase,
			BackoffCap:        backoffCap,
			DialTimeout:       dialTimeout,
		},
		OAuth: OAuthConfig{
			TokenURL:     getEnv("BOARDSYNC_OAUTH_TOKEN_URL", ""),
			ClientID:     getEnv("BOARDSYNC_OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("BOARDSYNC_OAUTH_CLIENT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("BOARDSYNC_LOG_LEVEL", "info"),
			Format: getEnv("BOARDSYNC_LOG_FORMAT", "console"),
		},
		Dev: DevConfig{
			Addr:            getEnv("BOARDSYNC_DEV_ADDR", ":8090"),
			JWTSecret:       getEnv("BOARDSYNC_DEV_JWT_SECRET", ""),
			CORSOrigins:     getEnvList("BOARDSYNC_DEV_CORS_ORIGINS", []string{"*"}),
			Boards:          getEnvList("BOARDSYNC_DEV_BOARDS", []string{"board-1"}),
			SuggestInterval: suggestInterval,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("BOARDSYNC_API_BASE_URL is required")
	}

	if c.Sync.HeartbeatInterval <= 0 {
		return fmt.Errorf("BOARDSYNC_HEARTBEAT_INTERVAL must be positive, got %s", c.Sync.HeartbeatInterval)
	}
	if c.Sync.BackoffBase <= 0 {
		return fmt.Errorf("BOARDSYNC_BACKOFF_BASE must be positive, got %s", c.Sync.BackoffBase)
	}
	if c.Sync.BackoffCap < c.Sync.BackoffBase {
		return fmt.Errorf("BOARDSYNC_BACKOFF_CAP must be >= BOARDSYNC_BACKOFF_BASE, got %s < %s",
			c.Sync.BackoffCap, c.Sync.BackoffBase)
	}
	if c.Sync.DialTimeout <= 0 {
		return fmt.Errorf("BOARDSYNC_DIAL_TIMEOUT must be positive, got %s", c.Sync.DialTimeout)
	}

	// A token URL without credentials cannot mint anything.
	if c.OAuth.TokenURL != "" && (c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "") {
		return errors.New("BOARDSYNC_OAUTH_CLIENT_ID and BOARDSYNC_OAUTH_CLIENT_SECRET are required with BOARDSYNC_OAUTH_TOKEN_URL")
	}

	if c.Dev.SuggestInterval < 0 {
		return fmt.Errorf("BOARDSYNC_DEV_SUGGEST_INTERVAL must not be negative, got %s", c.Dev.SuggestInterval)
	}

	return nil
}

// TokenSource builds the credential source the environment configures:
// the static token when one is set, client-credentials OAuth when a
// token URL is set, nil otherwise.
func (c *Config) TokenSource(ctx context.Context) session.Source {
	if c.API.Token != "" {
		return session.StaticSource(c.API.Token)
	}
	if c.OAuth.TokenURL != "" {
		return session.ClientCredentials(ctx, c.OAuth.TokenURL, c.OAuth.ClientID, c.OAuth.ClientSecret)
	}
	return nil
}

// Backoff returns the reconnect policy for the live connection.
func (c *SyncConfig) Backoff() backoff.Policy {
	return backoff.Policy{Base: c.BackoffBase, Cap: c.BackoffCap}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
