package policy

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Mode selects which failed attempts are retried.
type Mode string

const (
	// ModeBlanket retries every outcome that is not a caller error.
	ModeBlanket Mode = "blanket"
	// ModeTransient retries only not-ready outcomes, transport failures and
	// 408/429/5xx responses.
	ModeTransient Mode = "transient"
)

// Default values for a RetryPolicy.
const (
	DefaultTries   = 3
	DefaultDelay   = 3 * time.Second
	DefaultBackoff = 1.5
)

// RetryPolicy describes how an operation with a boolean outcome is re-invoked.
//
// An operation runs once and then up to Tries more times. The sleep before the
// n-th retry is Delay * Backoff^(n-1), capped at MaxDelay when MaxDelay > 0.
type RetryPolicy struct {
	Tries    int           `json:"tries" yaml:"tries"`
	Delay    time.Duration `json:"delay" yaml:"delay"`
	Backoff  float64       `json:"backoff" yaml:"backoff"`
	MaxDelay time.Duration `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	Mode     Mode          `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Default returns the policy used when none is configured for a key.
func Default() RetryPolicy {
	return RetryPolicy{
		Tries:   DefaultTries,
		Delay:   DefaultDelay,
		Backoff: DefaultBackoff,
		Mode:    ModeBlanket,
	}
}

// New builds a policy from Default and opts and validates it.
func New(opts ...Option) (RetryPolicy, error) {
	p := Default()
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	if err := p.Validate(); err != nil {
		return RetryPolicy{}, err
	}
	return p, nil
}

// MustNew is like New but panics on an invalid policy.
func MustNew(opts ...Option) RetryPolicy {
	p, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks the construction-time invariants of p.
func (p RetryPolicy) Validate() error {
	if p.Tries < 0 {
		return &ConfigError{Field: "retry.tries", Value: fmt.Sprint(p.Tries), Reason: "must be 0 or greater"}
	}
	if p.Delay <= 0 {
		return &ConfigError{Field: "retry.delay", Value: p.Delay.String(), Reason: "must be greater than 0"}
	}
	if math.IsNaN(p.Backoff) || p.Backoff <= 1 {
		return &ConfigError{Field: "retry.backoff", Value: fmt.Sprint(p.Backoff), Reason: "must be greater than 1"}
	}
	if p.MaxDelay < 0 {
		return &ConfigError{Field: "retry.max_delay", Value: p.MaxDelay.String(), Reason: "must not be negative"}
	}
	switch p.Mode {
	case "", ModeBlanket, ModeTransient:
	default:
		return &ConfigError{Field: "retry.mode", Value: string(p.Mode), Reason: "unknown mode"}
	}
	return nil
}

// NextDelay returns the delay following current.
func (p RetryPolicy) NextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.Backoff)
	if next < 0 {
		next = 0
	}
	if p.MaxDelay > 0 && next > p.MaxDelay {
		return p.MaxDelay
	}
	return next
}

// ParseMode parses a textual mode. The empty string selects ModeBlanket.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBlanket:
		return ModeBlanket, nil
	case ModeTransient:
		return ModeTransient, nil
	default:
		return "", &ConfigError{Field: "retry.mode", Value: s, Reason: "unknown mode"}
	}
}
