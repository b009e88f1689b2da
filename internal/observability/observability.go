// Package observability provides the metrics recorders, tracers and log
// handlers shared by the dataset service and its client.
package observability

import (
	"context"
	"time"
)

// MetricsRecorder records the outcome of one operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Span is an in-flight traced operation.
type Span interface {
	End(err error)
}

// Tracer starts spans for operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, Span)
}

type noopRecorder struct{}

func (noopRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// NoopRecorder discards observations.
func NoopRecorder() MetricsRecorder { return noopRecorder{} }

// NoopTracer returns spans that do nothing.
func NoopTracer() Tracer { return noopTracer{} }

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, op string, success bool, d time.Duration) {
	for _, r := range m {
		r.Observe(ctx, op, success, d)
	}
}

// Multi fans observations out to every non-nil recorder.
func Multi(recorders ...MetricsRecorder) MetricsRecorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return noopRecorder{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Track starts a span for operation and returns a func that ends it and
// records the outcome. Pass the operation's error, or nil on success.
func Track(ctx context.Context, m MetricsRecorder, t Tracer, operation string) (context.Context, func(error)) {
	if m == nil {
		m = noopRecorder{}
	}
	if t == nil {
		t = noopTracer{}
	}
	start := time.Now()
	ctx, span := t.Start(ctx, operation)
	return ctx, func(err error) {
		span.End(err)
		m.Observe(ctx, operation, err == nil, time.Since(start))
	}
}
