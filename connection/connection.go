// Package connection is the single-attempt request primitive of the client.
//
// A Connection sends one HTTP request per Dispatch, checks the response status
// against its accepted set and hands back the decoded body. It never retries;
// retried operations wrap Dispatch with the retry package.
package connection

import (
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultURL is the public bamboo instance.
const DefaultURL = "http://bamboo.io"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "bamboo-go"

// DefaultAcceptedStatus returns the status codes accepted when none are configured.
func DefaultAcceptedStatus() []int {
	return []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}
}

// Connection holds the base URL and transport settings shared by dataset handles.
// It is safe for concurrent use.
type Connection struct {
	mu  sync.RWMutex
	url string

	accepted  map[int]struct{}
	client    *http.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
	userAgent string
}

// Option configures a Connection.
type Option func(*Connection)

// WithAcceptedStatus replaces the set of status codes treated as success.
func WithAcceptedStatus(codes ...int) Option {
	return func(c *Connection) {
		if len(codes) == 0 {
			return
		}
		c.accepted = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.accepted[code] = struct{}{}
		}
	}
}

// WithHTTPClient sets the HTTP client used for round trips.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithRateLimit paces requests to rps per second with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Connection) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Connection) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New returns a Connection to baseURL, or to DefaultURL when baseURL is empty.
func New(baseURL string, opts ...Option) *Connection {
	c := &Connection{
		url:       normalizeURL(baseURL),
		client:    http.DefaultClient,
		logger:    zerolog.Nop(),
		userAgent: DefaultUserAgent,
	}
	WithAcceptedStatus(DefaultAcceptedStatus()...)(c)
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.With().Str("component", "connection").Logger()
	return c
}

// URL returns the base URL.
func (c *Connection) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// SetURL points the connection at a different base URL.
func (c *Connection) SetURL(u string) {
	c.mu.Lock()
	c.url = normalizeURL(u)
	c.mu.Unlock()
}

// Accepts reports whether status is in the accepted set.
func (c *Connection) Accepts(status int) bool {
	_, ok := c.accepted[status]
	return ok
}

// Logger returns the connection's logger.
func (c *Connection) Logger() *zerolog.Logger {
	return &c.logger
}

func normalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return DefaultURL
	}
	return strings.TrimRight(u, "/")
}
