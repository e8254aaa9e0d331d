package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/pagecache/internal/config"
	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/metrics"
	"github.com/wudi/pagecache/internal/pagecache"
	"github.com/wudi/pagecache/internal/prefetch"
	"github.com/wudi/pagecache/internal/scope"
	"github.com/wudi/pagecache/internal/source"
)

// Page is the cached item type: raw JSON items as returned by the source.
type Page = json.RawMessage

// ReloadResult records the outcome of one configuration reload.
type ReloadResult struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Changes   []string  `json:"changes,omitempty"`
}

// state holds everything built from one configuration. A reload builds a new
// state and swaps it in whole.
type state struct {
	cfg      *config.Config
	registry *scope.Registry[Page]
	drainers scope.Manager[*prefetch.Drainer[Page]]
	scopes   scope.Manager[config.ScopeConfig]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Server runs one cache and prefetch drainer per configured scope and serves
// the admin API.
type Server struct {
	mu         sync.RWMutex
	state      *state
	baseCtx    context.Context
	configPath string
	httpClient *http.Client
	collector  *metrics.Collector
	admin      *http.Server
	watcher    *config.Watcher
	startTime  time.Time

	reloadMu      sync.Mutex
	historyMu     sync.Mutex
	reloadHistory []ReloadResult
}

// NewServer builds a server for cfg. configPath is watched for changes once
// the server runs; it may be empty. A nil httpClient gets a default one.
func NewServer(cfg *config.Config, configPath string, httpClient *http.Client) (*Server, error) {
	s := &Server{
		configPath: configPath,
		httpClient: httpClient,
		startTime:  time.Now(),
		baseCtx:    context.Background(),
	}

	st, err := s.buildState(cfg)
	if err != nil {
		return nil, err
	}
	s.state = st
	s.collector = metrics.NewCollector(s.cacheStats, s.drainerStats)

	if cfg.Admin.Address != "" {
		s.admin = &http.Server{
			Addr:         cfg.Admin.Address,
			Handler:      s.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}
	return s, nil
}

func (s *Server) buildState(cfg *config.Config) (*state, error) {
	st := &state{
		cfg:      cfg,
		registry: scope.NewRegistry[Page](cfg.Cache.Eviction, cfg.Cache.Prefetch),
	}
	if len(cfg.Scopes) == 0 {
		return st, nil
	}

	client, err := source.New(cfg.Source, s.httpClient)
	if err != nil {
		return nil, err
	}
	drainerCfg := prefetch.ConfigFrom(cfg)
	for _, sc := range cfg.Scopes {
		cache := st.registry.Open(sc.Name)
		st.drainers.Add(sc.Name, prefetch.New[Page](cache, sc.Name, client.Path(sc.Path), drainerCfg))
		st.scopes.Add(sc.Name, sc)
	}
	return st, nil
}

// start warms the first page of every scope and runs its drainer until stop.
func (s *Server) start(st *state) {
	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()

	ctx, cancel := context.WithCancel(base)
	st.ctx, st.cancel = ctx, cancel

	st.drainers.Range(func(name string, d *prefetch.Drainer[Page]) bool {
		sc, _ := st.scopes.Get(name)
		st.wg.Add(1)
		go func() {
			defer st.wg.Done()
			if _, err := d.Load(ctx, sc.FirstPage()); err != nil {
				logging.Warn("Scope warmup failed",
					zap.String("scope", name),
					zap.Error(err),
				)
			}
			d.Run(ctx)
		}()
		return true
	})
}

// stop cancels the drainers of st, waits for them and clears its caches.
func (s *Server) stop(st *state) {
	if st.cancel != nil {
		st.cancel()
	}
	st.wg.Wait()
	st.registry.CloseAll()
}

func (s *Server) current() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start runs the scopes and the admin listener. ctx bounds every fetch.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	st := s.state
	s.mu.Unlock()

	s.start(st)
	logging.Info("Scopes started", zap.Strings("scopes", st.scopes.Names()))

	if s.configPath != "" {
		w, err := config.NewWatcher(s.configPath)
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		w.OnChange(func(cfg *config.Config) {
			s.logReload(s.Reload(cfg))
		})
		if err := w.Start(); err != nil {
			w.Stop()
			return fmt.Errorf("config watcher: %w", err)
		}
		s.watcher = w
	}

	if s.admin == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Starting admin server", zap.String("address", s.admin.Addr))
		if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// Run starts the server and blocks until SIGINT or SIGTERM. SIGHUP reloads
// the configuration file.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		switch sig {
		case syscall.SIGHUP:
			s.logReload(s.ReloadFromFile())
		default:
			logging.Info("Shutting down gracefully...")
			return s.Shutdown(30 * time.Second)
		}
	}
	return nil
}

// Shutdown stops the admin listener, the watcher and every scope.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErr error
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			logging.Error("Admin server shutdown error", zap.Error(err))
			shutdownErr = err
		}
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			logging.Error("Config watcher stop error", zap.Error(err))
		}
	}

	s.stop(s.current())
	logging.Info("Server shutdown complete")
	return shutdownErr
}

// Reload replaces every scope with ones built from newCfg. Cached pages are
// dropped and the first page of each scope is warmed again. On error the
// running scopes are left untouched.
func (s *Server) Reload(newCfg *config.Config) ReloadResult {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	result := ReloadResult{Timestamp: time.Now()}

	newState, err := s.buildState(newCfg)
	if err != nil {
		result.Error = err.Error()
		s.recordReload(result)
		return result
	}

	s.start(newState)

	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	s.stop(oldState)

	result.Changes = diffScopes(oldState.cfg, newCfg)
	result.Success = true
	s.recordReload(result)
	return result
}

// ReloadFromFile reloads the configuration file the server was started with.
func (s *Server) ReloadFromFile() ReloadResult {
	if s.configPath == "" {
		result := ReloadResult{Timestamp: time.Now(), Error: "no config file to reload"}
		s.recordReload(result)
		return result
	}
	cfg, err := config.NewLoader().Load(s.configPath)
	if err != nil {
		result := ReloadResult{Timestamp: time.Now(), Error: err.Error()}
		s.recordReload(result)
		return result
	}
	return s.Reload(cfg)
}

func (s *Server) logReload(result ReloadResult) {
	if result.Success {
		logging.Info("Config reloaded successfully", zap.Strings("changes", result.Changes))
		return
	}
	logging.Error("Config reload failed", zap.String("error", result.Error))
}

func (s *Server) recordReload(result ReloadResult) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.reloadHistory = append(s.reloadHistory, result)
	if len(s.reloadHistory) > 50 {
		s.reloadHistory = s.reloadHistory[len(s.reloadHistory)-50:]
	}
}

// ReloadHistory returns the most recent reload results, oldest first.
func (s *Server) ReloadHistory() []ReloadResult {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	history := make([]ReloadResult, len(s.reloadHistory))
	copy(history, s.reloadHistory)
	return history
}

// diffScopes returns human-readable scope changes between two configs.
func diffScopes(oldCfg, newCfg *config.Config) []string {
	var changes []string

	oldScopes := make(map[string]bool, len(oldCfg.Scopes))
	for _, sc := range oldCfg.Scopes {
		oldScopes[sc.Name] = true
	}
	newScopes := make(map[string]bool, len(newCfg.Scopes))
	for _, sc := range newCfg.Scopes {
		newScopes[sc.Name] = true
	}

	for name := range newScopes {
		if oldScopes[name] {
			changes = append(changes, "scope reloaded: "+name)
		} else {
			changes = append(changes, "scope added: "+name)
		}
	}
	for name := range oldScopes {
		if !newScopes[name] {
			changes = append(changes, "scope removed: "+name)
		}
	}

	sort.Strings(changes)
	return changes
}

func (s *Server) cacheStats() map[string]pagecache.Stats {
	return s.current().registry.Stats()
}

func (s *Server) drainerStats() map[string]prefetch.Stats {
	st := s.current()
	return scope.CollectStats(&st.drainers, func(d *prefetch.Drainer[Page]) prefetch.Stats {
		return d.Stats()
	})
}

// Registry returns the cache registry of the running configuration.
func (s *Server) Registry() *scope.Registry[Page] {
	return s.current().registry
}
