package observe

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aponysus/bamboo/classify"
	"github.com/aponysus/bamboo/policy"
)

// LogObserver writes retry lifecycle events to a zerolog logger.
//
// Attempts that will be retried are logged at debug level, exhausted or failed
// calls at warn level.
type LogObserver struct {
	Logger zerolog.Logger
}

// NewLogObserver returns a LogObserver tagged with component=retry.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{Logger: logger.With().Str("component", "retry").Logger()}
}

func (o *LogObserver) OnStart(_ context.Context, key policy.Key, pol policy.RetryPolicy) {
	o.Logger.Debug().
		Str("key", key.String()).
		Int("tries", pol.Tries).
		Dur("delay", pol.Delay).
		Float64("backoff", pol.Backoff).
		Str("mode", string(pol.Mode)).
		Msg("call started")
}

func (o *LogObserver) OnAttempt(_ context.Context, key policy.Key, rec AttemptRecord) {
	ev := o.Logger.Debug()
	if rec.Outcome.Kind == classify.OutcomeFailed {
		ev = o.Logger.Warn()
	}
	ev.Str("key", key.String()).
		Int("attempt", rec.Attempt).
		Str("outcome", rec.Outcome.Kind.String()).
		Str("reason", rec.Outcome.Reason).
		Dur("backoff", rec.Backoff).
		Dur("elapsed", rec.EndTime.Sub(rec.StartTime)).
		AnErr("error", rec.Err).
		Msg("attempt finished")
}

func (o *LogObserver) OnSuccess(_ context.Context, key policy.Key, tl Timeline) {
	o.Logger.Debug().
		Str("key", key.String()).
		Int("attempts", len(tl.Attempts)).
		Dur("elapsed", tl.End.Sub(tl.Start)).
		Msg("call succeeded")
}

func (o *LogObserver) OnFailure(_ context.Context, key policy.Key, tl Timeline) {
	o.Logger.Warn().
		Str("key", key.String()).
		Int("attempts", len(tl.Attempts)).
		Dur("elapsed", tl.End.Sub(tl.Start)).
		AnErr("error", tl.FinalErr).
		Msg("call failed")
}
