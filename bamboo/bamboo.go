// Package bamboo wires configuration, transport, retries and observability
// into a Client for a bamboo service.
package bamboo

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aponysus/bamboo/config"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/dataset"
	"github.com/aponysus/bamboo/observe"
	"github.com/aponysus/bamboo/policy"
	"github.com/aponysus/bamboo/retry"
)

// Client creates and attaches dataset handles that share one connection and
// one executor.
type Client struct {
	cfg    config.Config
	conn   *connection.Connection
	exec   *retry.Executor
	logger zerolog.Logger
}

type options struct {
	httpClient *http.Client
	logger     *zerolog.Logger
	registerer prometheus.Registerer
	observers  []observe.Observer
	execOpts   []retry.ExecutorOption
}

// Option configures New.
type Option func(*options)

// WithHTTPClient replaces the HTTP client built from the configured timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithRegisterer registers retry metrics on r, regardless of metrics.enabled.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithObserver adds an observer of retried operations.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithExecutorOptions appends options to the executor, after those derived
// from the configuration.
func WithExecutorOptions(opts ...retry.ExecutorOption) Option {
	return func(o *options) { o.execOpts = append(o.execOpts, opts...) }
}

// New validates cfg and builds a Client.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	logger := zerolog.Nop()
	if o.logger != nil {
		logger = *o.logger
	} else {
		l, err := config.NewLogger(cfg.Log, nil)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	conn := connection.New(cfg.URL,
		connection.WithHTTPClient(httpClient),
		connection.WithAcceptedStatus(cfg.AcceptedStatus...),
		connection.WithUserAgent(cfg.UserAgent),
		connection.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		connection.WithLogger(logger),
	)

	observers := append([]observe.Observer{observe.NewLogObserver(logger)}, o.observers...)
	reg := o.registerer
	if reg == nil && cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}
	if reg != nil {
		m, err := observe.NewMetricsObserver(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		observers = append(observers, m)
	}

	execOpts, err := executorOptions(cfg)
	if err != nil {
		return nil, err
	}
	execOpts = append(execOpts, retry.WithObserver(observe.Combine(observers...)))
	execOpts = append(execOpts, o.execOpts...)

	exec, err := retry.NewExecutor(execOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{cfg: cfg, conn: conn, exec: exec, logger: logger}, nil
}

// NewFromFile loads the configuration at path (see config.Load) and builds a Client.
func NewFromFile(path string, opts ...Option) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func executorOptions(cfg config.Config) ([]retry.ExecutorOption, error) {
	opts := []retry.ExecutorOption{retry.WithDefaultPolicy(policy.From(cfg.Retry))}

	seen := map[string]bool{}
	keys := append(dataset.RetriedKeys(), cfg.PolicyKeys()...)
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		p, err := cfg.Policy(key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, retry.WithPolicy(key, policy.From(p)))
	}
	return opts, nil
}

// Config returns the configuration the client was built from.
func (c *Client) Config() config.Config { return c.cfg }

// Connection returns the shared connection.
func (c *Client) Connection() *connection.Connection { return c.conn }

// Executor returns the shared executor.
func (c *Client) Executor() *retry.Executor { return c.exec }

// Logger returns the client logger.
func (c *Client) Logger() zerolog.Logger { return c.logger }

// Create uploads src as a new dataset.
func (c *Client) Create(ctx context.Context, src dataset.Source) (*dataset.Dataset, error) {
	return dataset.Create(ctx, c.conn, src, dataset.WithExecutor(c.exec))
}

// Attach returns a handle on the existing dataset id.
func (c *Client) Attach(id string) (*dataset.Dataset, error) {
	return dataset.Attach(c.conn, id, dataset.WithExecutor(c.exec))
}

// Merge creates the row-wise merge of datasets.
func (c *Client) Merge(ctx context.Context, datasets ...*dataset.Dataset) (*dataset.Dataset, error) {
	return dataset.Merge(ctx, c.conn, datasets, dataset.WithExecutor(c.exec))
}

// Join creates the join of left and right on column on.
func (c *Client) Join(ctx context.Context, left, right *dataset.Dataset, on string) (*dataset.Dataset, error) {
	return dataset.Join(ctx, c.conn, left, right, on, dataset.WithExecutor(c.exec))
}

// Version returns the service version document.
func (c *Client) Version(ctx context.Context) (connection.Body, error) {
	return c.conn.Version(ctx)
}

// Do runs op under the client's policy for key.
func (c *Client) Do(ctx context.Context, key string, op retry.Operation) error {
	return c.exec.Do(ctx, policy.ParseKey(key), op)
}

// DoValue runs op under the client's policy for key.
func DoValue[T any](ctx context.Context, c *Client, key string, op retry.OperationValue[T]) (T, error) {
	return retry.DoValue(ctx, c.exec, policy.ParseKey(key), op).Unwrap()
}
