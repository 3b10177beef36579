package connection

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aponysus/bamboo/apierr"
)

// Request methods accepted by Dispatch.
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodDelete = http.MethodDelete
)

// RequestIDHeader carries the per-dispatch request id.
const RequestIDHeader = "X-Request-ID"

// File is one multipart upload part.
type File struct {
	Field    string
	Filename string
	Content  []byte
}

// Request describes one call to the service. Path is relative to the base URL.
//
// When Files is non-empty the body is multipart/form-data and Form values are
// sent as extra parts. Otherwise a non-empty Form is sent url-encoded.
type Request struct {
	Method string
	Path   string
	Params url.Values
	Form   url.Values
	Files  []File
}

func validMethod(m string) bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return true
	default:
		return false
	}
}

// Dispatch performs exactly one round trip for req.
//
// An unsupported method is a validation error and nothing is sent. A status
// outside the accepted set is a retrieval error carrying the status and raw
// body. A body that is not a JSON object or array is a parsing error.
func (c *Connection) Dispatch(ctx context.Context, req Request) (Body, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	const op = "dispatch"

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if !validMethod(method) {
		return Body{}, apierr.Validation(op, "method", "unsupported HTTP method %q", req.Method)
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return Body{}, err
	}

	target := c.URL() + req.Path
	if len(req.Params) > 0 {
		target += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Body{}, apierr.Validation(op, "path", "%v", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	requestID := uuid.NewString()
	httpReq.Header.Set(RequestIDHeader, requestID)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Body{}, apierr.Transport(op, method, err)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("method", method).
			Str("path", req.Path).
			Str("request_id", requestID).
			Dur("duration", time.Since(start)).
			Msg("dispatch failed")
		return Body{}, apierr.Transport(op, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Body{}, apierr.Transport(op, method, err)
	}

	c.logEvent(resp.StatusCode).
		Str("method", method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("duration", time.Since(start)).
		Msg("dispatch")

	if !c.Accepts(resp.StatusCode) {
		return Body{}, apierr.Retrieval(op, method, resp.StatusCode, resp.Header, raw)
	}
	return parseBody(op, raw)
}

// Version returns the service's version document.
func (c *Connection) Version(ctx context.Context) (Body, error) {
	return c.Dispatch(ctx, Request{Method: MethodGet, Path: "/version"})
}

func (c *Connection) logEvent(status int) *zerolog.Event {
	if c.Accepts(status) {
		return c.logger.Debug()
	}
	return c.logger.Info()
}

func encodeBody(req Request) (io.Reader, string, error) {
	if len(req.Files) > 0 {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		keys := make([]string, 0, len(req.Form))
		for k := range req.Form {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range req.Form[k] {
				if err := w.WriteField(k, v); err != nil {
					return nil, "", apierr.Validation("dispatch", k, "%v", err)
				}
			}
		}

		for _, f := range req.Files {
			if f.Field == "" {
				return nil, "", apierr.Validation("dispatch", "files", "file part has no field name")
			}
			part, err := w.CreateFormFile(f.Field, f.Filename)
			if err != nil {
				return nil, "", apierr.Validation("dispatch", f.Field, "%v", err)
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", apierr.Validation("dispatch", f.Field, "%v", err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", apierr.Validation("dispatch", "files", "%v", err)
		}
		return &buf, w.FormDataContentType(), nil
	}

	if len(req.Form) > 0 {
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	}
	return nil, "", nil
}
