// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	// SiteURL is the base URL the dispatcher posts evaluations to.
	SiteURL    string
	CronSecret string

	DispatchTimeout     time.Duration
	FetchTimeout        time.Duration
	BacklogPageSize     int
	BacklogWindow       string
	MaxDispatchAttempts int
	DrainSchedule       string
	DrainPostComment    bool

	GitHubToken    string
	IngestInterval time.Duration

	LLMEndpoint string
	LLMAPIKey   string
	LLMModel    string
	RulesPath   string

	LogLevel  slog.Level
	LogFormat string
}

// HasGitHubToken reports whether merged PRs can be ingested and evaluation
// comments posted.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from MERGEMINT_ environment variables and returns
// a validated Config. Every variable is optional. Malformed values fail fast
// rather than silently falling back to a default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envString("MERGEMINT_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        envString("MERGEMINT_DB_PATH", "mergemint.db"),
		SiteURL:       strings.TrimRight(envString("MERGEMINT_SITE_URL", "http://127.0.0.1:8080"), "/"),
		CronSecret:    os.Getenv("MERGEMINT_CRON_SECRET"),
		BacklogWindow: strings.ToLower(envString("MERGEMINT_BACKLOG_WINDOW", "oldest")),
		DrainSchedule: strings.TrimSpace(os.Getenv("MERGEMINT_DRAIN_SCHEDULE")),
		GitHubToken:   os.Getenv("MERGEMINT_GITHUB_TOKEN"),
		LLMEndpoint:   os.Getenv("MERGEMINT_LLM_ENDPOINT"),
		LLMAPIKey:     os.Getenv("MERGEMINT_LLM_API_KEY"),
		LLMModel:      envString("MERGEMINT_LLM_MODEL", "gpt-4o-mini"),
		RulesPath:     os.Getenv("MERGEMINT_RULES_PATH"),
		LogFormat:     strings.ToLower(envString("MERGEMINT_LOG_FORMAT", "text")),
	}

	var err error
	if cfg.DispatchTimeout, err = envDuration("MERGEMINT_DISPATCH_TIMEOUT", 28*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = envDuration("MERGEMINT_FETCH_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IngestInterval, err = envDuration("MERGEMINT_INGEST_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BacklogPageSize, err = envInt("MERGEMINT_BACKLOG_PAGE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.MaxDispatchAttempts, err = envInt("MERGEMINT_MAX_DISPATCH_ATTEMPTS", 0); err != nil {
		return nil, err
	}
	if cfg.DrainPostComment, err = envBool("MERGEMINT_DRAIN_POST_COMMENT", false); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(envString("MERGEMINT_LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DispatchTimeout <= 0:
		return fmt.Errorf("MERGEMINT_DISPATCH_TIMEOUT must be positive, got %s", c.DispatchTimeout)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("MERGEMINT_FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	case c.IngestInterval <= 0:
		return fmt.Errorf("MERGEMINT_INGEST_INTERVAL must be positive, got %s", c.IngestInterval)
	case c.BacklogPageSize <= 0:
		return fmt.Errorf("MERGEMINT_BACKLOG_PAGE_SIZE must be positive, got %d", c.BacklogPageSize)
	case c.MaxDispatchAttempts < 0:
		return fmt.Errorf("MERGEMINT_MAX_DISPATCH_ATTEMPTS must not be negative, got %d", c.MaxDispatchAttempts)
	case c.BacklogWindow != "oldest" && c.BacklogWindow != "newest":
		return fmt.Errorf("MERGEMINT_BACKLOG_WINDOW must be oldest or newest, got %q", c.BacklogWindow)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("MERGEMINT_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return parsed, nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return parsed, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("MERGEMINT_LOG_LEVEL has invalid level %q: %w", v, err)
	}
	return level, nil
}
