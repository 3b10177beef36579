package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aponysus/bamboo/classify"
	"github.com/aponysus/bamboo/observe"
	"github.com/aponysus/bamboo/policy"
)

// ErrExhausted is matched by errors returned when every allowed attempt
// finished without success.
var ErrExhausted = errors.New("bamboo: retries exhausted")

// ExhaustedError reports the attempt count and the last observed cause.
type ExhaustedError struct {
	Key      policy.Key
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("bamboo: retries exhausted for %s after %d attempts", e.Key, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type Operation func(ctx context.Context) error
type OperationValue[T any] func(ctx context.Context) (T, error)

// Result is the outcome of a retried call.
//
// OK is true only when an attempt classified as success; Value then holds
// that attempt's value. Otherwise Err explains why the call ended: the
// caller error that stopped it, the context error, or an *ExhaustedError.
type Result[T any] struct {
	Value    T
	OK       bool
	Attempts int
	Err      error
}

// Unwrap returns the value and error of r in the usual Go shape.
func (r Result[T]) Unwrap() (T, error) {
	if r.OK {
		return r.Value, nil
	}
	if r.Err == nil {
		return r.Value, ErrExhausted
	}
	return r.Value, r.Err
}

// Executor runs operations under per-key retry policies.
type Executor struct {
	policies      map[policy.Key]policy.RetryPolicy
	defaultPolicy policy.RetryPolicy
	observer      observe.Observer
	classifiers   *classify.Registry
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
}

type executorConfig struct {
	policies      map[policy.Key][]policy.Option
	defaultPolicy []policy.Option
	observer      observe.Observer
	classifiers   *classify.Registry
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithPolicy sets the policy for a string key (e.g. "dataset.delete").
func WithPolicy(key string, opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		if c.policies == nil {
			c.policies = make(map[policy.Key][]policy.Option)
		}
		c.policies[policy.ParseKey(key)] = opts
	}
}

// WithDefaultPolicy sets the policy used for keys without their own policy.
func WithDefaultPolicy(opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		c.defaultPolicy = opts
	}
}

// WithObserver sets the observer.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(c *executorConfig) {
		c.observer = o
	}
}

// WithClassifiers sets the classifier registry.
func WithClassifiers(r *classify.Registry) ExecutorOption {
	return func(c *executorConfig) {
		c.classifiers = r
	}
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) ExecutorOption {
	return func(c *executorConfig) {
		c.clock = f
	}
}

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(f func(context.Context, time.Duration) error) ExecutorOption {
	return func(c *executorConfig) {
		c.sleep = f
	}
}

// NewExecutor validates every configured policy and returns an Executor.
// An invalid policy is reported here, never at call time.
func NewExecutor(opts ...ExecutorOption) (*Executor, error) {
	cfg := &executorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	def, err := policy.New(cfg.defaultPolicy...)
	if err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}

	e := &Executor{
		policies:      make(map[policy.Key]policy.RetryPolicy, len(cfg.policies)),
		defaultPolicy: def,
		observer:      cfg.observer,
		classifiers:   cfg.classifiers,
		clock:         cfg.clock,
		sleep:         cfg.sleep,
	}
	for key, popts := range cfg.policies {
		p, err := policy.New(popts...)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", key, err)
		}
		e.policies[key] = p
	}

	if e.observer == nil {
		e.observer = observe.NoopObserver{}
	}
	if e.classifiers == nil {
		e.classifiers = classify.NewRegistry()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	return e, nil
}

// Policy returns the policy applied to key.
func (e *Executor) Policy(key policy.Key) policy.RetryPolicy {
	if p, ok := e.policies[key]; ok {
		return p
	}
	return e.defaultPolicy
}

// Do runs op under the policy for key and returns nil on success.
func (e *Executor) Do(ctx context.Context, key policy.Key, op Operation) error {
	res := DoValue(ctx, e, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	_, err := res.Unwrap()
	return err
}

// DoValue invokes op once and, while the attempt classifies as not ready and
// the policy has tries left, sleeps, grows the delay by the backoff factor and
// invokes op again.
//
// A failed classification (caller misuse, cancellation, or a non-transient
// error under the transient mode) ends the call at once.
func DoValue[T any](ctx context.Context, exec *Executor, key policy.Key, op OperationValue[T]) Result[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if exec == nil {
		exec = DefaultExecutor()
	}

	pol := exec.Policy(key)
	classifier, ok := exec.classifiers.Lookup(pol.Mode)
	if !ok {
		classifier = classify.Blanket{}
	}

	tl := observe.Timeline{
		Key:      key,
		Start:    exec.clock(),
		Attempts: make([]observe.AttemptRecord, 0, pol.Tries+1),
	}
	exec.observer.OnStart(ctx, key, pol)

	finish := func(res Result[T]) Result[T] {
		res.Attempts = len(tl.Attempts)
		tl.End = exec.clock()
		tl.FinalErr = res.Err
		if res.OK {
			exec.observer.OnSuccess(ctx, key, tl)
		} else {
			exec.observer.OnFailure(ctx, key, tl)
		}
		if capture, ok := observe.CaptureFromContext(ctx); ok {
			capture.Store(tl)
		}
		return res
	}

	tries := pol.Tries
	delay := capDelay(pol.Delay, pol.MaxDelay)

	var (
		last    T
		lastErr error
		backoff time.Duration
	)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return finish(Result[T]{Value: last, Err: err})
		}

		attemptCtx := observe.WithAttemptInfo(ctx, observe.AttemptInfo{Key: key.String(), Attempt: attempt})
		start := exec.clock()
		val, err := op(attemptCtx)

		out := classifier.Classify(val, err)
		if out.Kind == classify.OutcomeUnknown {
			out.Kind = classify.OutcomeFailed
			if out.Reason == "" {
				out.Reason = "unknown_outcome"
			}
		}

		rec := observe.AttemptRecord{
			Attempt:   attempt,
			StartTime: start,
			EndTime:   exec.clock(),
			Outcome:   out,
			Err:       err,
			Backoff:   backoff,
		}
		tl.Attempts = append(tl.Attempts, rec)
		exec.observer.OnAttempt(ctx, key, rec)

		last, lastErr = val, err

		switch out.Kind {
		case classify.OutcomeSuccess:
			return finish(Result[T]{Value: val, OK: true})
		case classify.OutcomeFailed:
			if err == nil {
				err = errors.New("bamboo: " + out.Reason)
			}
			return finish(Result[T]{Value: val, Err: err})
		}

		if tries <= 0 {
			return finish(Result[T]{
				Value: last,
				Err:   &ExhaustedError{Key: key, Attempts: len(tl.Attempts), Last: lastErr},
			})
		}
		tries--

		sleepFor := delay
		if out.BackoffOverride > 0 {
			sleepFor = capDelay(out.BackoffOverride, pol.MaxDelay)
		}
		if err := exec.sleep(ctx, sleepFor); err != nil {
			return finish(Result[T]{Value: last, Err: err})
		}
		backoff = sleepFor
		delay = pol.NextDelay(delay)
	}
}

// Run executes op under pol without a named key or observer.
// An invalid pol is returned as the result error before op runs.
func Run[T any](ctx context.Context, pol policy.RetryPolicy, op OperationValue[T]) Result[T] {
	exec, err := NewExecutor(WithDefaultPolicy(policy.From(pol)))
	if err != nil {
		return Result[T]{Err: err}
	}
	return DoValue(ctx, exec, policy.Key{}, op)
}

func capDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
