package classify

import (
	"errors"
	"time"
)

// OutcomeKind is the tri-state result of one attempt.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	// OutcomeSuccess ends the call with the attempt's value.
	OutcomeSuccess
	// OutcomeNotReady asks for another attempt after the backoff delay.
	OutcomeNotReady
	// OutcomeFailed ends the call immediately with the attempt's error.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes the classification of an attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string

	// BackoffOverride, when set, replaces the policy delay before the next attempt.
	BackoffOverride time.Duration
}

// Classifier maps the result of one attempt to an Outcome.
type Classifier interface {
	Classify(value any, err error) Outcome
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(value any, err error) Outcome

func (f ClassifierFunc) Classify(value any, err error) Outcome { return f(value, err) }

// ErrNotReady marks an attempt whose remote side has not settled yet.
var ErrNotReady = errors.New("bamboo: not ready")

// NotReadyError is returned by operations whose response did not carry the
// expected completion signal.
type NotReadyError struct {
	Reason string
}

func (e *NotReadyError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrNotReady.Error()
	}
	return ErrNotReady.Error() + ": " + e.Reason
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// NotReady returns an error that classifies as OutcomeNotReady.
func NotReady(reason string) error {
	return &NotReadyError{Reason: reason}
}
