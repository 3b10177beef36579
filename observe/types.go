package observe

import (
	"context"
	"time"

	"github.com/aponysus/bamboo/classify"
	"github.com/aponysus/bamboo/policy"
)

// AttemptRecord describes a single attempt of a retried call.
type AttemptRecord struct {
	Attempt   int
	StartTime time.Time
	EndTime   time.Time

	Outcome classify.Outcome
	Err     error

	// Backoff is the sleep that preceded this attempt.
	Backoff time.Duration
}

// Timeline is the structured record of a single call and all of its attempts.
type Timeline struct {
	Key   policy.Key
	Start time.Time
	End   time.Time

	Attempts []AttemptRecord
	FinalErr error
}

// Observer receives lifecycle callbacks for a single retried call.
type Observer interface {
	OnStart(ctx context.Context, key policy.Key, pol policy.RetryPolicy)
	OnAttempt(ctx context.Context, key policy.Key, rec AttemptRecord)
	OnSuccess(ctx context.Context, key policy.Key, tl Timeline)
	OnFailure(ctx context.Context, key policy.Key, tl Timeline)
}
