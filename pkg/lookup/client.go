// Package lookup is a small client for the keyed request/response services
// the details panel uses, such as pilot usernames and aircraft photos.
//
// Responses are opaque JSON objects. Requests are rate limited and results,
// including misses, are cached for a while so re-opening a panel does not
// hit the service again.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultCacheSize is the default number of cached results
	DefaultCacheSize = 256

	// DefaultCacheTTL is how long a cached result stays valid
	DefaultCacheTTL = 10 * time.Minute

	// maxResponseSize bounds the size of a response body
	maxResponseSize = 1 << 20
)

// Lookup kinds served by the collaborator services.
const (
	KindUser  = "users"
	KindImage = "images"
)

var (
	// ErrNotFound is returned when the service has no entry for the key.
	ErrNotFound = errors.New("lookup: not found")

	// ErrDisabled is returned when no base URL is configured.
	ErrDisabled = errors.New("lookup: service not configured")
)

// Result is an opaque response object.
type Result map[string]any

// String returns a trimmed string field.
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return strings.TrimSpace(s)
}

// Config configures the client.
type Config struct {
	// BaseURL of the lookup service; empty disables lookups
	BaseURL string

	// APIKey is sent in the x-apikey header when set
	APIKey string

	// RequestsPerSecond limits the request rate (default: 2)
	RequestsPerSecond float64

	// Burst is the number of requests allowed at once (default: 4)
	Burst int

	// Timeout for each HTTP request (default: 10 seconds)
	Timeout time.Duration

	// CacheSize is the number of results kept (default: 256)
	CacheSize int

	// CacheTTL is how long results are kept (default: 10 minutes)
	CacheTTL time.Duration
}

type cacheEntry struct {
	result Result
	found  bool
}

// Client performs rate-limited, cached lookups. Safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       *expirable.LRU[string, cacheEntry]
}

// NewClient creates a lookup client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cache:       expirable.NewLRU[string, cacheEntry](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Enabled reports whether a service is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Lookup fetches {base}/{kind}/{id}. A missing entry returns ErrNotFound.
func (c *Client) Lookup(ctx context.Context, kind, id string) (Result, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	key := kind + "/" + id
	if e, ok := c.cache.Get(key); ok {
		if !e.found {
			return nil, ErrNotFound
		}
		return e.result, nil
	}

	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(kind), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		c.cache.Add(key, cacheEntry{})
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result == nil {
		result = Result{}
	}

	c.cache.Add(key, cacheEntry{result: result, found: true})
	return result, nil
}

// Purge empties the cache.
func (c *Client) Purge() {
	c.cache.Purge()
}
