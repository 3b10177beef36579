package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aponysus/bamboo/policy"
)

// MetricsObserver records retry activity as prometheus metrics.
type MetricsObserver struct {
	calls    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsObserver creates the bamboo_* collectors and registers them on reg.
// Collectors already registered on reg by an earlier observer are shared.
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bamboo",
			Name:      "calls_total",
			Help:      "Retried client calls by key and result.",
		}, []string{"key", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bamboo",
			Name:      "attempts_total",
			Help:      "Attempts of retried client calls by key and outcome.",
		}, []string{"key", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bamboo",
			Name:      "call_duration_seconds",
			Help:      "Wall time of retried client calls, including backoff sleeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"key"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	if m.calls, err = register(reg, m.calls); err != nil {
		return nil, err
	}
	if m.attempts, err = register(reg, m.attempts); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *MetricsObserver) OnStart(context.Context, policy.Key, policy.RetryPolicy) {}

func (m *MetricsObserver) OnAttempt(_ context.Context, key policy.Key, rec AttemptRecord) {
	m.attempts.WithLabelValues(key.String(), rec.Outcome.Kind.String()).Inc()
}

func (m *MetricsObserver) OnSuccess(_ context.Context, key policy.Key, tl Timeline) {
	m.calls.WithLabelValues(key.String(), "success").Inc()
	m.duration.WithLabelValues(key.String()).Observe(tl.End.Sub(tl.Start).Seconds())
}

func (m *MetricsObserver) OnFailure(_ context.Context, key policy.Key, tl Timeline) {
	m.calls.WithLabelValues(key.String(), "failure").Inc()
	m.duration.WithLabelValues(key.String()).Observe(tl.End.Sub(tl.Start).Seconds())
}
