package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wudi/pagecache/internal/config"
	pcerrors "github.com/wudi/pagecache/internal/errors"
	"github.com/wudi/pagecache/internal/logging"
	"github.com/wudi/pagecache/internal/pagecache"
)

// maxBodySize caps how much of a page response is read.
const maxBodySize = 32 << 20

// Client fetches pages from a paginated JSON API.
type Client struct {
	baseURL    *url.URL
	cfg        config.SourceConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for cfg. A nil httpClient gets one with cfg.Timeout.
func New(cfg config.SourceConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("source: invalid base_url: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logging.Named("source"),
	}, nil
}

// Path binds the client to one resource path, e.g. "/users".
func (c *Client) Path(path string) *Source {
	return &Source{client: c, path: path}
}

// Source fetches pages of one resource.
type Source struct {
	client *Client
	path   string
}

// Fetch implements the prefetch fetcher contract.
func (s *Source) Fetch(ctx context.Context, p pagecache.Params) (pagecache.Result[json.RawMessage], error) {
	return s.client.Fetch(ctx, s.path, p)
}

// URL returns the request URL for params against path.
func (c *Client) URL(path string, p pagecache.Params) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")

	q := u.Query()
	names := c.cfg.Params
	if p.Cursor != "" {
		setParam(q, names.Cursor, p.Cursor)
	} else if p.Page > 0 {
		setParam(q, names.Page, strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		setParam(q, names.PageSize, strconv.Itoa(p.PageSize))
	}
	if p.SortField != "" {
		setParam(q, names.SortField, p.SortField)
		if p.SortOrder != "" {
			setParam(q, names.SortOrder, string(p.SortOrder))
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func setParam(q url.Values, name, value string) {
	if name != "" {
		q.Set(name, value)
	}
}

// Fetch requests one page of path and decodes its envelope.
func (c *Client) Fetch(ctx context.Context, path string, p pagecache.Params) (pagecache.Result[json.RawMessage], error) {
	target := c.URL(path, p)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pagecache.Result[json.RawMessage]{}, pcerrors.Wrap(err, http.StatusBadRequest, "invalid page request").WithURL(target)
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pagecache.Result[json.RawMessage]{}, pcerrors.Wrap(err, 0, "page fetch failed").WithURL(target)
	}
	defer resp.Body.Close()

	c.logger.Debug("page fetched",
		zap.String("url", target),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return pagecache.Result[json.RawMessage]{}, pcerrors.FromStatus(resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return pagecache.Result[json.RawMessage]{}, pcerrors.Wrap(err, 0, "reading page body failed").WithURL(target)
	}

	result, err := decodeEnvelope(body, c.cfg, p)
	if err != nil {
		return pagecache.Result[json.RawMessage]{}, pcerrors.Wrap(err, http.StatusBadGateway, "malformed page envelope").WithURL(target)
	}
	return result, nil
}
