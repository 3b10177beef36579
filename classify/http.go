package classify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aponysus/bamboo/apierr"
)

// HTTPError lets the transient classifier read HTTP semantics from an error.
//
// Implementations use status code 0 for transport errors.
type HTTPError interface {
	HTTPStatusCode() int
	HTTPMethod() string
	RetryAfter() (time.Duration, bool)
}

// Transient retries only outcomes that can plausibly change on their own:
// not-ready responses, transport failures and 408/429/5xx statuses on
// idempotent methods. Everything else fails the call on the first attempt.
type Transient struct {
	// Retryable4xx is an optional set of additional retryable 4xx status codes.
	Retryable4xx map[int]struct{}
}

func (c Transient) Classify(_ any, err error) Outcome {
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
	if errors.Is(err, apierr.ErrParsing) {
		return Outcome{Kind: OutcomeFailed, Reason: "parsing_error"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeNotReady, Reason: "context_deadline_exceeded"}
	}

	var he HTTPError
	if !errors.As(err, &he) {
		return Outcome{Kind: OutcomeFailed, Reason: "non_retryable_error"}
	}

	status := he.HTTPStatusCode()
	idempotent := isIdempotentMethod(strings.ToUpper(strings.TrimSpace(he.HTTPMethod())))

	switch {
	case status == 0, status >= 500 && status <= 599:
		if !idempotent {
			return Outcome{Kind: OutcomeFailed, Reason: "http_non_idempotent"}
		}
		if status == 0 {
			return Outcome{Kind: OutcomeNotReady, Reason: "http_transport_error"}
		}
		return Outcome{Kind: OutcomeNotReady, Reason: "http_5xx"}
	case status == 408 || status == 429 || c.retryable4xx(status):
		if !idempotent {
			return Outcome{Kind: OutcomeFailed, Reason: "http_non_idempotent"}
		}
		out := Outcome{Kind: OutcomeNotReady, Reason: "http_" + strconv.Itoa(status)}
		if d, ok := he.RetryAfter(); ok && d > 0 {
			out.BackoffOverride = d
		}
		return out
	default:
		return Outcome{Kind: OutcomeFailed, Reason: "http_non_retryable_status"}
	}
}

func (c Transient) retryable4xx(status int) bool {
	if c.Retryable4xx == nil {
		return false
	}
	_, ok := c.Retryable4xx[status]
	return ok
}

func isIdempotentMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "PUT", "DELETE", "OPTIONS", "TRACE":
		return true
	default:
		return false
	}
}
