package classify

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aponysus/bamboo/apierr"
)

type testHTTPError struct {
	status     int
	method     string
	retryAfter time.Duration
	hasRetry   bool
}

func (e testHTTPError) Error() string { return "http error" }

func (e testHTTPError) HTTPStatusCode() int { return e.status }

func (e testHTTPError) HTTPMethod() string { return e.method }

func (e testHTTPError) RetryAfter() (time.Duration, bool) { return e.retryAfter, e.hasRetry }

func TestTransient_StatusTable(t *testing.T) {
	c := Transient{}

	cases := []struct {
		name   string
		err    error
		want   OutcomeKind
		reason string
	}{
		{name: "success", err: nil, want: OutcomeSuccess, reason: "success"},
		{name: "not ready", err: NotReady("pending"), want: OutcomeNotReady, reason: "not_ready"},
		{name: "get 503", err: testHTTPError{status: 503, method: "GET"}, want: OutcomeNotReady, reason: "http_5xx"},
		{name: "post 503", err: testHTTPError{status: 503, method: "POST"}, want: OutcomeFailed, reason: "http_non_idempotent"},
		{name: "delete transport", err: testHTTPError{status: 0, method: "DELETE"}, want: OutcomeNotReady, reason: "http_transport_error"},
		{name: "get 400", err: testHTTPError{status: 400, method: "GET"}, want: OutcomeFailed, reason: "http_non_retryable_status"},
		{name: "get 404", err: testHTTPError{status: 404, method: "GET"}, want: OutcomeFailed, reason: "http_non_retryable_status"},
		{name: "put 408", err: testHTTPError{status: 408, method: "PUT"}, want: OutcomeNotReady, reason: "http_408"},
		{name: "parsing", err: apierr.Parsing("dispatch", nil), want: OutcomeFailed, reason: "parsing_error"},
		{name: "misuse", err: apierr.Validation("x", "select", "bad"), want: OutcomeFailed, reason: "caller_error"},
		{name: "plain", err: errors.New("x"), want: OutcomeFailed, reason: "non_retryable_error"},
	}

	for _, tc := range cases {
		out := c.Classify(nil, tc.err)
		if out.Kind != tc.want || out.Reason != tc.reason {
			t.Fatalf("%s: got %v/%q, want %v/%q", tc.name, out.Kind, out.Reason, tc.want, tc.reason)
		}
	}
}

func TestTransient_RetryAfterOverride(t *testing.T) {
	c := Transient{}
	out := c.Classify(nil, testHTTPError{status: 429, method: "GET", retryAfter: 2 * time.Second, hasRetry: true})
	if out.Kind != OutcomeNotReady {
		t.Fatalf("kind=%v want not ready", out.Kind)
	}
	if out.BackoffOverride != 2*time.Second {
		t.Fatalf("override=%v want 2s", out.BackoffOverride)
	}
}

func TestTransient_ReadsTaxonomyErrors(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "1")
	err := apierr.Retrieval("dispatch", "GET", 429, h, nil)

	out := Transient{}.Classify(nil, err)
	if out.Kind != OutcomeNotReady || out.BackoffOverride != time.Second {
		t.Fatalf("got %+v", out)
	}
}

func TestTransient_CustomRetryable4xx(t *testing.T) {
	c := Transient{Retryable4xx: map[int]struct{}{409: {}}}
	if out := c.Classify(nil, testHTTPError{status: 409, method: "GET"}); out.Kind != OutcomeNotReady {
		t.Fatalf("kind=%v want not ready", out.Kind)
	}
}
