package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/wudi/pagecache/internal/config"
	pcerrors "github.com/wudi/pagecache/internal/errors"
	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/pagecache"
	"github.com/wudi/pagecache/internal/prefetch"
)

// Handler returns the admin API.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()

	r.HandlerFunc(http.MethodGet, "/health", s.handleHealth)
	r.Handler(http.MethodGet, "/metrics", s.collector.Handler())
	r.HandlerFunc(http.MethodGet, "/stats", s.handleStats)
	r.HandlerFunc(http.MethodGet, "/config", s.handleConfig)

	r.GET("/scopes", s.handleScopes)
	r.GET("/scopes/:scope/entries", s.handleEntries)
	r.POST("/scopes/:scope/invalidate", s.handleInvalidate)
	r.POST("/scopes/:scope/clear", s.handleClear)

	r.HandlerFunc(http.MethodPost, "/reload", s.handleReload)
	r.HandlerFunc(http.MethodGet, "/reload/status", s.handleReloadStatus)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).String(),
		"scopes":    s.current().scopes.Len(),
	})
}

// handleConfig serves the running configuration with credentials redacted.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.current().cfg
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source":           cfg.Source.Redacted(),
		"cache":            cfg.Cache,
		"prefetch_workers": cfg.PrefetchWorkers,
		"scopes":           cfg.Scopes,
	})
}

type scopeStats struct {
	Cache    pagecache.Stats `json:"cache"`
	Prefetch prefetch.Stats  `json:"prefetch"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	caches := s.cacheStats()
	drainers := s.drainerStats()

	out := make(map[string]scopeStats, len(caches))
	for name, cs := range caches {
		out[name] = scopeStats{Cache: cs, Prefetch: drainers[name]}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScopes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st := s.current()
	scopes := make([]config.ScopeConfig, 0, st.scopes.Len())
	for _, name := range st.scopes.Names() {
		sc, _ := st.scopes.Get(name)
		scopes = append(scopes, sc)
	}
	writeJSON(w, http.StatusOK, scopes)
}

// revalidate refetches a stale page in the background while the stale copy
// is served. It is a no-op before the scopes are started.
func (s *Server) revalidate(st *state, name string, params pagecache.Params) {
	cache, _ := st.registry.Get(name)
	drainer, ok := st.drainers.Get(name)
	if !ok || st.ctx == nil || cache.IsLoading(params, name) {
		return
	}
	go func() {
		if _, err := drainer.Load(st.ctx, params); err != nil {
			logging.Debug("Revalidation failed",
				zap.String("scope", name),
				zap.Error(err),
			)
		}
	}()
}

// handleEntries serves one page of a scope from the cache, fetching it in the
// foreground on a miss. Stale pages are served while a refetch runs in the
// background. X-Cache reports HIT, STALE or MISS.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("scope")
	st := s.current()
	sc, ok := st.scopes.Get(name)
	if !ok {
		pcerrors.ErrNotFound.WithDetails("unknown scope: " + name).WriteJSON(w)
		return
	}
	cache, _ := st.registry.Get(name)
	drainer, _ := st.drainers.Get(name)

	params, err := entryParams(r, sc)
	if err != nil {
		writeError(w, err)
		return
	}

	entry, ok := cache.Get(params, name)
	status := "HIT"
	switch {
	case !ok || (entry.Loading && len(entry.Data) == 0):
		// A placeholder has nothing to serve, stale or not. Load joins any
		// fetch already in flight for the key.
		status = "MISS"
		res, err := drainer.Load(r.Context(), params)
		if err != nil {
			logging.Warn("Foreground load failed",
				zap.String("scope", name),
				zap.String("key", pagecache.DeriveKey(params, name)),
				zap.Error(err),
			)
			writeError(w, err)
			return
		}
		entry = pagecache.Entry[Page]{
			Data:       res.Items,
			Pagination: res.Pagination,
			Timestamp:  time.Now(),
			QueryKey:   pagecache.DeriveKey(params, name),
		}
	case entry.Stale:
		status = "STALE"
		s.revalidate(st, name, params)
	}

	w.Header().Set("X-Cache", status)
	writeJSON(w, http.StatusOK, entry)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, prefetch.ErrRetryBudgetExhausted) {
		pcerrors.ErrServiceUnavailable.WithDetails(err.Error()).WriteJSON(w)
		return
	}
	if pe, ok := pcerrors.AsPageError(err); ok {
		pe.WriteJSON(w)
		return
	}
	pcerrors.ErrBadGateway.WithDetails(err.Error()).WriteJSON(w)
}

// entryParams reads page, page_size, cursor, sort and order from the query,
// defaulting to the scope's first page.
func entryParams(r *http.Request, sc config.ScopeConfig) (pagecache.Params, error) {
	p := sc.FirstPage()
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, pcerrors.ErrBadRequest.WithDetails("invalid page: "+v)
		}
		p.Page = n
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, pcerrors.ErrBadRequest.WithDetails("invalid page_size: "+v)
		}
		p.PageSize = n
	}
	if v := q.Get("sort"); v != "" {
		p.SortField = v
	}
	if v := q.Get("order"); v != "" {
		order := pagecache.SortOrder(v)
		if !order.Valid() {
			return p, pcerrors.ErrBadRequest.WithDetails("invalid order: "+v)
		}
		p.SortOrder = order
	}
	if v := q.Get("cursor"); v != "" {
		p.Cursor = v
		p.Page = 0
	}
	return p, nil
}

// invalidatePattern builds the pattern named by exactly one of the prefix,
// substring, regexp or glob query parameters.
func invalidatePattern(r *http.Request) (pagecache.Pattern, error) {
	q := r.URL.Query()

	var (
		pattern pagecache.Pattern
		found   int
	)
	if v := q.Get("prefix"); v != "" {
		pattern = pagecache.Prefix(v)
		found++
	}
	if v := q.Get("substring"); v != "" {
		pattern = pagecache.Substring(v)
		found++
	}
	if v := q.Get("glob"); v != "" {
		pattern = pagecache.Glob(v)
		found++
	}
	if v := q.Get("regexp"); v != "" {
		p, err := pagecache.CompilePattern(v)
		if err != nil {
			return pattern, pcerrors.ErrBadRequest.WithDetails("invalid regexp: "+err.Error())
		}
		pattern = p
		found++
	}

	if found != 1 {
		return pattern, pcerrors.ErrBadRequest.WithDetails("exactly one of prefix, substring, regexp or glob is required")
	}
	return pattern, nil
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("scope")
	cache, ok := s.current().registry.Get(name)
	if !ok {
		pcerrors.ErrNotFound.WithDetails("unknown scope: " + name).WriteJSON(w)
		return
	}

	pattern, err := invalidatePattern(r)
	if err != nil {
		writeError(w, err)
		return
	}

	matched := cache.Invalidate(pattern)
	logging.Info("Scope invalidated",
		zap.String("scope", name),
		zap.Stringer("pattern", pattern),
		zap.Int("matched", matched),
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":       name,
		"pattern":     pattern.String(),
		"invalidated": matched,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("scope")
	cache, ok := s.current().registry.Get(name)
	if !ok {
		pcerrors.ErrNotFound.WithDetails("unknown scope: " + name).WriteJSON(w)
		return
	}

	removed := cache.Len()
	cache.Clear()
	logging.Info("Scope cleared", zap.String("scope", name), zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":   name,
		"cleared": removed,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	result := s.ReloadFromFile()
	s.logReload(result)

	if !result.Success {
		pcerrors.ErrInternalServer.WithDetails(result.Error).WriteJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReloadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ReloadHistory())
}
