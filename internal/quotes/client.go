package quotes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Client defaults.
const (
	DefaultBaseURL      = "https://finnhub.io/api/v1" // public Finnhub REST endpoint
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Client provides access to the quote REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	concurrency int
	nameTTL     time.Duration
	names       *ristretto.Cache

	fallback *Fallback
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new quote client. An empty apiKey puts the client in
// offline mode where everything is served from the fallback dataset.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: DefaultRetryBackoff,
		concurrency:  5,
		nameTTL:      24 * time.Hour,
		fallback:     NewFallback(),
	}

	for _, opt := range opts {
		opt(c)
	}

	names, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	c.names = names

	return c, nil
}

// Offline reports whether the client serves only the fallback dataset.
func (c *Client) Offline() bool {
	return c.apiKey == ""
}

// Fallback returns the offline dataset used by the client.
func (c *Client) Fallback() *Fallback {
	return c.fallback
}

// Close releases the name cache.
func (c *Client) Close() {
	c.names.Close()
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithConcurrency bounds the number of in-flight requests in FetchQuotes.
func WithConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithNameTTL sets how long company names stay cached.
func WithNameTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.nameTTL = ttl
	}
}
