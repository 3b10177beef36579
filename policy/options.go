package policy

import "time"

// Option mutates a RetryPolicy before validation.
type Option func(*RetryPolicy)

// Tries sets the number of retries after the first attempt.
func Tries(n int) Option {
	return func(p *RetryPolicy) { p.Tries = n }
}

// Delay sets the sleep before the first retry.
func Delay(d time.Duration) Option {
	return func(p *RetryPolicy) { p.Delay = d }
}

// Backoff sets the delay multiplier.
func Backoff(m float64) Option {
	return func(p *RetryPolicy) { p.Backoff = m }
}

// MaxDelay caps the delay between attempts.
func MaxDelay(d time.Duration) Option {
	return func(p *RetryPolicy) { p.MaxDelay = d }
}

// Transient restricts retries to transient outcomes.
func Transient() Option {
	return func(p *RetryPolicy) { p.Mode = ModeTransient }
}

// Blanket retries every outcome that is not a caller error.
func Blanket() Option {
	return func(p *RetryPolicy) { p.Mode = ModeBlanket }
}

// From replaces the whole policy, e.g. one loaded from configuration.
func From(src RetryPolicy) Option {
	return func(p *RetryPolicy) { *p = src }
}
