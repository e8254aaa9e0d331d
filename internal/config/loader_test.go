package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wudi/pagecache/internal/pagecache"
)

func TestLoaderParse(t *testing.T) {
	yaml := `
logging:
  level: debug
cache:
  eviction:
    max_cache_size: 20
    max_age: 2m
    stale_tolerance: 15s
  prefetch:
    pages_ahead: 3
    bandwidth_aware: true
source:
  base_url: http://api.local
  items_path: data.results
  pagination:
    next_cursor: meta.next
scopes:
  - name: users
    path: /users
    page_size: 25
    sort_field: created_at
    sort_order: desc
`

	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Logging.Level)
	}
	ev := cfg.Cache.Eviction
	if ev.MaxCacheSize != 20 || ev.MaxAge != 2*time.Minute || ev.StaleTolerance != 15*time.Second {
		t.Errorf("unexpected eviction policy: %+v", ev)
	}

	pf := cfg.Cache.Prefetch
	if !pf.Enabled {
		t.Error("prefetch should stay enabled by default")
	}
	if pf.PagesAhead != 3 || pf.PagesBehind != pagecache.DefaultPagesBehind || !pf.BandwidthAware {
		t.Errorf("unexpected prefetch strategy: %+v", pf)
	}

	if cfg.Source.ItemsPath != "data.results" {
		t.Errorf("expected items path override, got %q", cfg.Source.ItemsPath)
	}
	if cfg.Source.Pagination.NextCursor != "meta.next" {
		t.Errorf("expected next cursor override, got %q", cfg.Source.Pagination.NextCursor)
	}
	if cfg.Source.Params.Page != "page" {
		t.Errorf("expected default page param, got %q", cfg.Source.Params.Page)
	}

	if len(cfg.Scopes) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(cfg.Scopes))
	}
	first := cfg.Scopes[0].FirstPage()
	want := pagecache.Params{Page: 1, PageSize: 25, SortField: "created_at", SortOrder: pagecache.SortDesc}
	if first != want {
		t.Errorf("FirstPage() = %+v, want %+v", first, want)
	}
}

func TestLoaderDefaults(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte("admin:\n  address: \":8081\"\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Cache.Eviction != pagecache.DefaultEvictionPolicy() {
		t.Errorf("expected default eviction policy, got %+v", cfg.Cache.Eviction)
	}
	if cfg.Admin.Address != ":8081" {
		t.Errorf("expected admin address override, got %q", cfg.Admin.Address)
	}
	if cfg.PrefetchWorkers.Workers != 4 {
		t.Errorf("expected 4 default workers, got %d", cfg.PrefetchWorkers.Workers)
	}
}

func TestLoaderEnvExpansion(t *testing.T) {
	t.Setenv("PAGECACHE_API", "http://users.internal:8080")

	yaml := `
source:
  base_url: ${PAGECACHE_API}
  user_agent: ${PAGECACHE_UNSET_VAR}
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Source.BaseURL != "http://users.internal:8080" {
		t.Errorf("expected expanded base url, got %q", cfg.Source.BaseURL)
	}
	if cfg.Source.UserAgent != "${PAGECACHE_UNSET_VAR}" {
		t.Errorf("unset variables should be kept verbatim, got %q", cfg.Source.UserAgent)
	}
}

func TestLoaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad level", "logging:\n  level: loud\n", "unknown log level"},
		{"zero size", "cache:\n  eviction:\n    max_cache_size: -1\n", "max_cache_size"},
		{"stale beyond max age", "cache:\n  eviction:\n    max_age: 10s\n    stale_tolerance: 20s\n", "exceeds max_age"},
		{"negative pages", "cache:\n  prefetch:\n    pages_behind: -2\n", "page counts"},
		{"bad base url", "source:\n  base_url: not-a-url\n", "invalid base_url"},
		{"scopes need base url", "scopes:\n  - name: a\n", "base_url is required"},
		{"duplicate scope", "source:\n  base_url: http://x\nscopes:\n  - name: a\n  - name: a\n", "duplicate scope"},
		{"unnamed scope", "source:\n  base_url: http://x\nscopes:\n  - path: /a\n", "name is required"},
		{"bad sort order", "source:\n  base_url: http://x\nscopes:\n  - name: a\n    sort_order: up\n", "invalid sort_order"},
		{"backoff order", "source:\n  retry:\n    initial_backoff: 10s\n    max_backoff: 1s\n", "initial_backoff"},
		{"negative rate", "source:\n  rate_limit:\n    rps: -1\n", "rate_limit"},
		{"empty items path", "source:\n  items_path: \"\"\n", "items_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoaderLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagecache.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %q", cfg.Logging.Level)
	}

	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoaderInvalidYAML(t *testing.T) {
	if _, err := NewLoader().Parse([]byte("cache: [unterminated")); err == nil {
		t.Error("expected parse error")
	}
}
