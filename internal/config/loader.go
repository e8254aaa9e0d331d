package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/wudi/pagecache/internal/logging"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
	secrets    *SecretRegistry
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
		secrets:    NewSecretRegistry(),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal YAML into config
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := resolveSecrets(context.Background(), cfg, l.secrets); err != nil {
		return nil, err
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	if err := validateCache(cfg.Cache); err != nil {
		return err
	}

	if cfg.Source.BaseURL != "" {
		u, err := url.Parse(cfg.Source.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("source: invalid base_url %q", cfg.Source.BaseURL)
		}
	}
	if cfg.Source.Timeout < 0 {
		return fmt.Errorf("source: timeout must not be negative")
	}
	if cfg.Source.ItemsPath == "" {
		return fmt.Errorf("source: items_path is required")
	}
	if cfg.Source.Retry.MaxRetries < 0 {
		return fmt.Errorf("source.retry: max_retries must not be negative")
	}
	if cfg.Source.Retry.MaxBackoff > 0 && cfg.Source.Retry.InitialBackoff > cfg.Source.Retry.MaxBackoff {
		return fmt.Errorf("source.retry: initial_backoff exceeds max_backoff")
	}
	if r := cfg.Source.Retry.BudgetRatio; r < 0 || r > 1 {
		return fmt.Errorf("source.retry: budget_ratio must be between 0 and 1")
	}
	if cfg.Source.RateLimit.RPS < 0 || cfg.Source.RateLimit.Burst < 0 {
		return fmt.Errorf("source.rate_limit: rps and burst must not be negative")
	}

	if cfg.PrefetchWorkers.Workers < 0 || cfg.PrefetchWorkers.BatchSize < 0 {
		return fmt.Errorf("prefetch_workers: workers and batch_size must not be negative")
	}
	if cfg.PrefetchWorkers.PollInterval < 0 {
		return fmt.Errorf("prefetch_workers: poll_interval must not be negative")
	}

	if len(cfg.Scopes) > 0 && cfg.Source.BaseURL == "" {
		return fmt.Errorf("source: base_url is required when scopes are configured")
	}
	names := make(map[string]bool)
	for i, s := range cfg.Scopes {
		if s.Name == "" {
			return fmt.Errorf("scope %d: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate scope name: %s", s.Name)
		}
		names[s.Name] = true
		if s.PageSize < 0 {
			return fmt.Errorf("scope %s: page_size must not be negative", s.Name)
		}
		if !s.SortOrder.Valid() {
			return fmt.Errorf("scope %s: invalid sort_order %q", s.Name, s.SortOrder)
		}
	}

	return nil
}

func validateCache(c CacheConfig) error {
	ev := c.Eviction
	if ev.MaxCacheSize <= 0 {
		return fmt.Errorf("cache.eviction: max_cache_size must be positive")
	}
	if ev.MaxAge < 0 || ev.StaleTolerance < 0 {
		return fmt.Errorf("cache.eviction: durations must not be negative")
	}
	if ev.MaxAge > 0 && ev.StaleTolerance > ev.MaxAge {
		return fmt.Errorf("cache.eviction: stale_tolerance %s exceeds max_age %s", ev.StaleTolerance, ev.MaxAge)
	}

	pf := c.Prefetch
	if pf.PagesAhead < 0 || pf.PagesBehind < 0 {
		return fmt.Errorf("cache.prefetch: page counts must not be negative")
	}
	if pf.Delay < 0 {
		return fmt.Errorf("cache.prefetch: delay must not be negative")
	}
	return nil
}
