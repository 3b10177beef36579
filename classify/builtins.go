package classify

import (
	"context"
	"errors"

	"github.com/aponysus/bamboo/apierr"
)

// Built-in classifier registry names. They match the policy modes.
const (
	ClassifierBlanket   = "blanket"
	ClassifierTransient = "transient"
)

// RegisterBuiltins registers core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierBlanket, Blanket{})
	reg.Register(ClassifierTransient, Transient{})
}

// Blanket retries every failure except caller misuse and cancellation.
//
// The service gives no way to tell "still processing" from "rejected", so a
// false-ish response and a failed request are both worth another attempt.
type Blanket struct{}

func (Blanket) Classify(_ any, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeFailed, Reason: "context_canceled"}
	}
	if errors.Is(err, ErrNotReady) {
		return Outcome{Kind: OutcomeNotReady, Reason: "not_ready"}
	}
	if apierr.IsMisuse(err) {
		return Outcome{Kind: OutcomeFailed, Reason: "caller_error"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeNotReady, Reason: "context_deadline_exceeded"}
	}
	return Outcome{Kind: OutcomeNotReady, Reason: "retryable_error"}
}
