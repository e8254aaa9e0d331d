package config

import (
	"time"

	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/pagecache"
)

// Config is the root configuration of the pagecache daemon
type Config struct {
	Logging         logging.Config        `yaml:"logging"`
	Cache           CacheConfig           `yaml:"cache"`
	Source          SourceConfig          `yaml:"source"`
	PrefetchWorkers PrefetchWorkersConfig `yaml:"prefetch_workers"`
	Scopes          []ScopeConfig         `yaml:"scopes"`
	Admin           AdminConfig           `yaml:"admin"`
}

// CacheConfig holds the construction-time settings shared by every scope cache
type CacheConfig struct {
	Eviction pagecache.EvictionPolicy   `yaml:"eviction"`
	Prefetch pagecache.PrefetchStrategy `yaml:"prefetch"`
}

// SourceConfig describes the paginated HTTP API pages are fetched from
type SourceConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Timeout    time.Duration     `yaml:"timeout"`
	UserAgent  string            `yaml:"user_agent"`
	Headers    map[string]string `yaml:"headers"`
	Params     ParamNames        `yaml:"params"`
	ItemsPath  string            `yaml:"items_path"` // gjson path to the item array
	Pagination PaginationPaths   `yaml:"pagination"`
	Retry      RetryConfig       `yaml:"retry"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit"`
}

// ParamNames maps pagination params to query string names
type ParamNames struct {
	Page      string `yaml:"page"`
	PageSize  string `yaml:"page_size"`
	Cursor    string `yaml:"cursor"`
	SortField string `yaml:"sort_field"`
	SortOrder string `yaml:"sort_order"`
}

// PaginationPaths are gjson paths to the envelope fields of a response.
// Empty paths are skipped.
type PaginationPaths struct {
	Page        string `yaml:"page"`
	PageSize    string `yaml:"page_size"`
	TotalCount  string `yaml:"total_count"`
	TotalPages  string `yaml:"total_pages"`
	HasNext     string `yaml:"has_next"`
	HasPrevious string `yaml:"has_previous"`
	NextCursor  string `yaml:"next_cursor"`
	PrevCursor  string `yaml:"prev_cursor"`
}

// RetryConfig controls exponential backoff of failed fetches
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	// BudgetRatio is the number of retries each fetch earns. 0 disables the budget.
	BudgetRatio         float64 `yaml:"budget_ratio"`
	MinRetriesPerSecond int     `yaml:"min_retries_per_second"`
}

// RateLimitConfig paces outgoing fetches. RPS <= 0 disables pacing.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PrefetchWorkersConfig controls how prefetch queues are drained
type PrefetchWorkersConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// ScopeConfig is one paginated resource with its own cache
type ScopeConfig struct {
	Name      string              `yaml:"name" json:"name"`
	Path      string              `yaml:"path" json:"path"`
	PageSize  int                 `yaml:"page_size" json:"page_size,omitempty"`
	SortField string              `yaml:"sort_field" json:"sort_field,omitempty"`
	SortOrder pagecache.SortOrder `yaml:"sort_order" json:"sort_order,omitempty"`
}

// FirstPage returns the params of the scope's first page.
func (s ScopeConfig) FirstPage() pagecache.Params {
	return pagecache.Params{
		Page:      1,
		PageSize:  s.PageSize,
		SortField: s.SortField,
		SortOrder: s.SortOrder,
	}
}

// AdminConfig configures the admin/metrics listener
type AdminConfig struct {
	Address string `yaml:"address"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: logging.Config{
			Level:  "info",
			Output: "stderr",
		},
		Cache: CacheConfig{
			Eviction: pagecache.DefaultEvictionPolicy(),
			Prefetch: pagecache.DefaultPrefetchStrategy(),
		},
		Source: SourceConfig{
			Timeout:   10 * time.Second,
			UserAgent: "pagecache/dev",
			Params: ParamNames{
				Page:      "page",
				PageSize:  "page_size",
				Cursor:    "cursor",
				SortField: "sort",
				SortOrder: "order",
			},
			ItemsPath: "items",
			Pagination: PaginationPaths{
				Page:        "pagination.page",
				PageSize:    "pagination.page_size",
				TotalCount:  "pagination.total_count",
				TotalPages:  "pagination.total_pages",
				HasNext:     "pagination.has_next",
				HasPrevious: "pagination.has_previous",
				NextCursor:  "pagination.next_cursor",
				PrevCursor:  "pagination.prev_cursor",
			},
			Retry: RetryConfig{
				MaxRetries:     3,
				InitialBackoff: 100 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
			},
		},
		PrefetchWorkers: PrefetchWorkersConfig{
			Workers:      4,
			PollInterval: 250 * time.Millisecond,
			BatchSize:    8,
		},
		Admin: AdminConfig{
			Address: ":9090",
		},
	}
}
