// Package config loads client settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/policy"
)

// Environment variables read by ApplyEnv.
const (
	EnvURL        = "BAMBOO_URL"
	EnvLogLevel   = "BAMBOO_LOG_LEVEL"
	EnvRetryTries = "BAMBOO_RETRY_TRIES"
	EnvRetryMode  = "BAMBOO_RETRY_MODE"
)

// DefaultTimeout bounds a single round trip.
const DefaultTimeout = 30 * time.Second

type Config struct {
	URL            string        `yaml:"url"`
	AcceptedStatus []int         `yaml:"accepted_status,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user_agent,omitempty"`

	// Retry is the policy of every retried operation without an override.
	Retry policy.RetryPolicy `yaml:"retry"`
	// Policies overrides Retry per key, e.g. "dataset.delete".
	Policies map[string]PolicyOverride `yaml:"policies,omitempty"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
	Metrics   Metrics   `yaml:"metrics"`
}

// PolicyOverride replaces the set fields of the base retry policy.
type PolicyOverride struct {
	Tries    *int           `yaml:"tries,omitempty"`
	Delay    *time.Duration `yaml:"delay,omitempty"`
	Backoff  *float64       `yaml:"backoff,omitempty"`
	MaxDelay *time.Duration `yaml:"max_delay,omitempty"`
	Mode     policy.Mode    `yaml:"mode,omitempty"`
}

// Options returns the policy options that apply o.
func (o PolicyOverride) Options() []policy.Option {
	var opts []policy.Option
	if o.Tries != nil {
		opts = append(opts, policy.Tries(*o.Tries))
	}
	if o.Delay != nil {
		opts = append(opts, policy.Delay(*o.Delay))
	}
	if o.Backoff != nil {
		opts = append(opts, policy.Backoff(*o.Backoff))
	}
	if o.MaxDelay != nil {
		opts = append(opts, policy.MaxDelay(*o.MaxDelay))
	}
	switch o.Mode {
	case policy.ModeBlanket:
		opts = append(opts, policy.Blanket())
	case policy.ModeTransient:
		opts = append(opts, policy.Transient())
	}
	return opts
}

// RateLimit paces outgoing requests. RPS 0 disables pacing.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Log selects the level and output format of the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics enables the prometheus observer.
type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		URL:            connection.DefaultURL,
		AcceptedStatus: connection.DefaultAcceptedStatus(),
		Timeout:        DefaultTimeout,
		UserAgent:      connection.DefaultUserAgent,
		Retry:          policy.Default(),
		Log:            Log{Level: "info", Format: FormatConsole},
	}
}

// Load reads the YAML file at path over Default, applies the environment and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the environment variables named by the Env
// constants, read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvURL); ok && v != "" {
		cfg.URL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvRetryTries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apierr.Config(EnvRetryTries, "not an integer: %q", v)
		}
		cfg.Retry.Tries = n
	}
	if v, ok := lookup(EnvRetryMode); ok && v != "" {
		m, err := policy.ParseMode(v)
		if err != nil {
			return err
		}
		cfg.Retry.Mode = m
	}
	return nil
}

// Validate checks every field and returns the first problem found.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierr.Config("url", "must be an absolute http(s) URL, got %q", c.URL)
	}
	if c.Timeout < 0 {
		return apierr.Config("timeout", "must not be negative")
	}
	for _, code := range c.AcceptedStatus {
		if code < 100 || code > 599 {
			return apierr.Config("accepted_status", "%d is not an HTTP status code", code)
		}
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	for _, key := range c.PolicyKeys() {
		if _, err := c.Policy(key); err != nil {
			return err
		}
	}
	if c.RateLimit.RPS < 0 {
		return apierr.Config("rate_limit.rps", "must not be negative")
	}
	if c.RateLimit.Burst < 0 {
		return apierr.Config("rate_limit.burst", "must not be negative")
	}
	return c.Log.validate()
}

// PolicyKeys returns the overridden keys in sorted order.
func (c Config) PolicyKeys() []string {
	keys := make([]string, 0, len(c.Policies))
	for k := range c.Policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Policy returns the policy for key: Retry with the key's override applied.
func (c Config) Policy(key string) (policy.RetryPolicy, error) {
	opts := []policy.Option{policy.From(c.Retry)}
	if o, ok := c.Policies[key]; ok {
		opts = append(opts, o.Options()...)
	}
	p, err := policy.New(opts...)
	if err != nil {
		return policy.RetryPolicy{}, fmt.Errorf("policies.%s: %w", key, err)
	}
	return p, nil
}
