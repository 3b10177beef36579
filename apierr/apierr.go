// Package apierr defines the failure kinds shared by every layer of the client.
//
// Every error produced by this module can be matched against one of the
// sentinels below with errors.Is, regardless of how many times it was wrapped.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind identifies a failure class.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreation
	KindInvalidState
	KindRetrieval
	KindParsing
	KindValidation
	KindFormulaFormat
	KindClassificationMismatch
	KindTransport
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindCreation:
		return "creation"
	case KindInvalidState:
		return "invalid_state"
	case KindRetrieval:
		return "retrieval"
	case KindParsing:
		return "parsing"
	case KindValidation:
		return "validation"
	case KindFormulaFormat:
		return "formula_format"
	case KindClassificationMismatch:
		return "classification_mismatch"
	case KindTransport:
		return "transport"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

var (
	// ErrCreation indicates a dataset could not be constructed.
	ErrCreation = errors.New("bamboo: dataset creation failed")
	// ErrInvalidState indicates an operation on a dataset with no live id.
	ErrInvalidState = errors.New("bamboo: dataset does not exist")
	// ErrRetrieval indicates the service answered with a status outside the accepted set.
	ErrRetrieval = errors.New("bamboo: error retrieving data")
	// ErrParsing indicates the response body is not structured data.
	ErrParsing = errors.New("bamboo: error parsing data")
	// ErrValidation indicates a caller-supplied argument failed a client-side check.
	ErrValidation = errors.New("bamboo: invalid argument")
	// ErrFormulaFormat indicates a formula string is not of the form "name = expression".
	ErrFormulaFormat = errors.New("bamboo: malformed formula")
	// ErrClassificationMismatch indicates a formula was sent to the wrong entry point.
	ErrClassificationMismatch = errors.New("bamboo: formula classification mismatch")
	// ErrTransport indicates the HTTP round trip itself failed.
	ErrTransport = errors.New("bamboo: transport failure")
	// ErrConfig indicates an invalid client or retry configuration.
	ErrConfig = errors.New("bamboo: invalid configuration")
)

func sentinel(k Kind) error {
	switch k {
	case KindCreation:
		return ErrCreation
	case KindInvalidState:
		return ErrInvalidState
	case KindRetrieval:
		return ErrRetrieval
	case KindParsing:
		return ErrParsing
	case KindValidation:
		return ErrValidation
	case KindFormulaFormat:
		return ErrFormulaFormat
	case KindClassificationMismatch:
		return ErrClassificationMismatch
	case KindTransport:
		return ErrTransport
	case KindConfig:
		return ErrConfig
	default:
		return nil
	}
}

// maxBodyInError bounds how much of a response body is echoed by Error().
const maxBodyInError = 512

// Error is the concrete error type of the taxonomy.
//
// Retrieval errors carry Status, Method, Header and Body. Validation errors
// name the offending Field. Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Op      string
	Field   string
	Message string

	Status int
	Method string
	Header http.Header
	Body   []byte

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("bamboo: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())

	switch {
	case e.Kind == KindRetrieval:
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(e.Status))
		if len(e.Body) > 0 {
			body := e.Body
			if len(body) > maxBodyInError {
				body = body[:maxBodyInError]
			}
			b.WriteString(": ")
			b.Write(body)
		}
	case e.Field != "":
		b.WriteString(": ")
		b.WriteString(e.Field)
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	s := sentinel(e.Kind)
	return s != nil && target == s
}

// HTTPStatusCode returns the response status, or 0 for non-HTTP failures.
func (e *Error) HTTPStatusCode() int { return e.Status }

// HTTPMethod returns the request method, if known.
func (e *Error) HTTPMethod() string { return e.Method }

// RetryAfter parses the Retry-After header of a retrieval error.
func (e *Error) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	s := e.Header.Get("Retry-After")
	if s == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsMisuse reports whether err is a caller error that must never be retried.
func IsMisuse(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInvalidState, KindCreation, KindFormulaFormat,
		KindClassificationMismatch, KindConfig:
		return true
	default:
		return false
	}
}

// Validation returns a validation error for field.
func Validation(op, field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Creation returns a creation error.
func Creation(op, format string, args ...any) *Error {
	return &Error{Kind: KindCreation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// InvalidState returns the error raised by operations on a dead dataset handle.
func InvalidState(op string) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Message: "dataset does not exist"}
}

// Retrieval returns an error for a response whose status is not accepted.
func Retrieval(op, method string, status int, header http.Header, body []byte) *Error {
	return &Error{Kind: KindRetrieval, Op: op, Method: method, Status: status, Header: header, Body: body}
}

// Parsing returns an error for a body that is not structured data.
func Parsing(op string, cause error) *Error {
	return &Error{Kind: KindParsing, Op: op, Err: cause}
}

// Transport wraps a failed round trip.
func Transport(op, method string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Method: method, Err: cause}
}

// Config returns a configuration error for field.
func Config(field, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Field: field, Message: fmt.Sprintf(format, args...)}
}
