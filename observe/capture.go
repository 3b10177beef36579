package observe

import (
	"context"
	"sync/atomic"
)

// TimelineCapture holds the timeline of the next retried call made with the
// context returned by RecordTimeline.
type TimelineCapture struct {
	tl atomic.Pointer[Timeline]
}

// Timeline returns the captured timeline, or nil until the call completes.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

// Store publishes tl. Only the first stored timeline is kept.
func (c *TimelineCapture) Store(tl Timeline) {
	if c == nil {
		return
	}
	c.tl.CompareAndSwap(nil, &tl)
}

type captureKey struct{}

// RecordTimeline returns a derived context that requests timeline capture.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &TimelineCapture{}
	return context.WithValue(ctx, captureKey{}, capture), capture
}

// CaptureFromContext returns the capture requested on ctx, if any.
func CaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(captureKey{}).(*TimelineCapture)
	return c, ok && c != nil
}

type attemptKey struct{}

// AttemptInfo is per-attempt metadata attached to the context passed to an operation.
type AttemptInfo struct {
	Key     string
	Attempt int
}

// WithAttemptInfo returns a context derived from ctx that carries info.
func WithAttemptInfo(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptKey{}, info)
}

// AttemptFromContext returns the AttemptInfo from ctx, if present.
func AttemptFromContext(ctx context.Context) (AttemptInfo, bool) {
	if ctx == nil {
		return AttemptInfo{}, false
	}
	info, ok := ctx.Value(attemptKey{}).(AttemptInfo)
	return info, ok
}
