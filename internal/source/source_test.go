package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/wudi/pagecache/internal/config"
	pcerrors "github.com/wudi/pagecache/internal/errors"
	"github.com/wudi/pagecache/internal/pagecache"
)

func testSourceConfig(baseURL string) config.SourceConfig {
	cfg := config.DefaultConfig().Source
	cfg.BaseURL = baseURL
	cfg.Headers = map[string]string{"Authorization": "Bearer t"}
	return cfg
}

func TestURL(t *testing.T) {
	c, err := New(testSourceConfig("http://api.local/v1/"), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		params pagecache.Params
		want   url.Values
	}{
		{
			name:   "page addressed",
			params: pagecache.Params{Page: 2, PageSize: 10, SortField: "name", SortOrder: pagecache.SortAsc},
			want:   url.Values{"page": {"2"}, "page_size": {"10"}, "sort": {"name"}, "order": {"asc"}},
		},
		{
			name:   "cursor wins over page",
			params: pagecache.Params{Page: 3, PageSize: 5, Cursor: "abc"},
			want:   url.Values{"cursor": {"abc"}, "page_size": {"5"}},
		},
		{
			name:   "order without field is dropped",
			params: pagecache.Params{Page: 1, SortOrder: pagecache.SortDesc},
			want:   url.Values{"page": {"1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(c.URL("/users", tt.params))
			if err != nil {
				t.Fatal(err)
			}
			if u.Path != "/v1/users" {
				t.Errorf("path = %q, want /v1/users", u.Path)
			}
			if got := u.Query(); got.Encode() != tt.want.Encode() {
				t.Errorf("query = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}
		if r.Header.Get("Authorization") != "Bearer t" {
			t.Error("configured headers not sent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [{"id": 1}, {"id": 2}],
			"pagination": {"page": 1, "page_size": 2, "total_count": 10, "total_pages": 5,
				"has_next": true, "has_previous": false, "next_cursor": "cursor-2", "prev_cursor": null}
		}`))
	}))
	defer srv.Close()

	c, err := New(testSourceConfig(srv.URL), srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Path("/items").Fetch(context.Background(), pagecache.Params{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Items) != 2 || string(res.Items[0]) != `{"id": 1}` {
		t.Errorf("unexpected items: %s", res.Items)
	}
	want := pagecache.Metadata{
		Page: 1, PageSize: 2, TotalCount: 10, TotalPages: 5,
		HasNext: true, NextCursor: "cursor-2",
	}
	if res.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", res.Pagination, want)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, _ := New(testSourceConfig(srv.URL), srv.Client())
			_, err := c.Fetch(context.Background(), "/x", pagecache.Params{Page: 1})

			pe, ok := pcerrors.AsPageError(err)
			if !ok {
				t.Fatalf("expected PageError, got %v", err)
			}
			if pe.Code != tt.status || pe.Retryable() != tt.retryable {
				t.Errorf("got code=%d retryable=%v", pe.Code, pe.Retryable())
			}
		})
	}
}

func TestFetchMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	c, _ := New(testSourceConfig(srv.URL), srv.Client())
	_, err := c.Fetch(context.Background(), "/x", pagecache.Params{Page: 1})

	pe, ok := pcerrors.AsPageError(err)
	if !ok || pe.Code != http.StatusBadGateway || pe.Retryable() != true {
		t.Errorf("expected 502 PageError, got %v", err)
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, _ := New(testSourceConfig(base), nil)
	_, err := c.Fetch(context.Background(), "/x", pagecache.Params{Page: 1})
	if !pcerrors.IsRetryable(err) {
		t.Errorf("transport failures should be retryable, got %v", err)
	}
}

func TestDecodeEnvelopeDerivesMissingFields(t *testing.T) {
	cfg := config.DefaultConfig().Source
	cfg.ItemsPath = "data"
	cfg.Pagination = config.PaginationPaths{TotalCount: "meta.total"}

	body := []byte(`{"data": ["a", "b", "c"], "meta": {"total": 7}}`)
	res, err := decodeEnvelope(body, cfg, pagecache.Params{Page: 2, PageSize: 3})
	if err != nil {
		t.Fatal(err)
	}

	want := pagecache.Metadata{
		Page: 2, PageSize: 3, TotalCount: 7, TotalPages: 3,
		HasNext: true, HasPrevious: true,
	}
	if res.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", res.Pagination, want)
	}
	var first string
	if err := json.Unmarshal(res.Items[0], &first); err != nil || first != "a" {
		t.Errorf("unexpected first item %s", res.Items[0])
	}
}

func TestDecodeEnvelopeRejectsInvalidJSON(t *testing.T) {
	if _, err := decodeEnvelope([]byte(`{"items": [`), config.DefaultConfig().Source, pagecache.Params{}); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
