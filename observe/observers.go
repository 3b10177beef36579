package observe

import (
	"context"

	"github.com/aponysus/bamboo/policy"
)

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, policy.Key, policy.RetryPolicy) {}
func (NoopObserver) OnAttempt(context.Context, policy.Key, AttemptRecord)   {}
func (NoopObserver) OnSuccess(context.Context, policy.Key, Timeline)        {}
func (NoopObserver) OnFailure(context.Context, policy.Key, Timeline)        {}

// MultiObserver fans out events to multiple observers.
type MultiObserver []Observer

// Combine returns a single Observer for obs, skipping nils.
func Combine(obs ...Observer) Observer {
	var m MultiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return NoopObserver{}
	case 1:
		return m[0]
	default:
		return m
	}
}

func (m MultiObserver) OnStart(ctx context.Context, key policy.Key, pol policy.RetryPolicy) {
	for _, o := range m {
		o.OnStart(ctx, key, pol)
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, key policy.Key, rec AttemptRecord) {
	for _, o := range m {
		o.OnAttempt(ctx, key, rec)
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, key policy.Key, tl Timeline) {
	for _, o := range m {
		o.OnSuccess(ctx, key, tl)
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, key policy.Key, tl Timeline) {
	for _, o := range m {
		o.OnFailure(ctx, key, tl)
	}
}
