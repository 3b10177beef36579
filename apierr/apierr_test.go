package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestError_NilString(t *testing.T) {
	var err *Error
	if got := err.Error(); got != "<nil>" {
		t.Fatalf("nil error string=%q, want %q", got, "<nil>")
	}
}

func TestError_IsMatchesSentinelThroughWrapping(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{err: Validation("summary", "select", "must be a list"), want: ErrValidation},
		{err: Creation("create", "no source"), want: ErrCreation},
		{err: InvalidState("delete"), want: ErrInvalidState},
		{err: Retrieval("dispatch", "GET", 404, nil, []byte("nope")), want: ErrRetrieval},
		{err: Parsing("dispatch", errors.New("bad json")), want: ErrParsing},
		{err: Transport("dispatch", "GET", errors.New("refused")), want: ErrTransport},
		{err: Config("retry.backoff", "must exceed 1"), want: ErrConfig},
	}

	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.want) {
			t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.want)
		}
		if errors.Is(wrapped, ErrFormulaFormat) {
			t.Fatalf("%v unexpectedly matched ErrFormulaFormat", wrapped)
		}
	}
}

func TestError_RetrievalMessageCarriesStatusAndBody(t *testing.T) {
	err := Retrieval("dispatch", "GET", 400, nil, []byte(`{"error":"bad"}`))
	msg := err.Error()
	if !strings.Contains(msg, "400") || !strings.Contains(msg, `{"error":"bad"}`) {
		t.Fatalf("message %q missing status or body", msg)
	}
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Transport("dispatch", "POST", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
}

func TestIsMisuse(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: Validation("x", "limit", "bad"), want: true},
		{err: InvalidState("x"), want: true},
		{err: &Error{Kind: KindClassificationMismatch}, want: true},
		{err: Retrieval("x", "GET", 500, nil, nil), want: false},
		{err: Parsing("x", nil), want: false},
		{err: errors.New("plain"), want: false},
		{err: nil, want: false},
	}

	for _, tc := range cases {
		if got := IsMisuse(tc.err); got != tc.want {
			t.Fatalf("IsMisuse(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestError_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	err := Retrieval("dispatch", "GET", 429, h, nil)

	d, ok := err.RetryAfter()
	if !ok || d != 2*time.Second {
		t.Fatalf("RetryAfter = %v,%v, want 2s,true", d, ok)
	}

	if _, ok := Retrieval("dispatch", "GET", 429, nil, nil).RetryAfter(); ok {
		t.Fatalf("expected no Retry-After without header")
	}
}

func TestKind_String(t *testing.T) {
	if got := KindClassificationMismatch.String(); got != "classification_mismatch" {
		t.Fatalf("got %q", got)
	}
	if got := Kind(99).String(); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}
