package httpclient

import (
	"context"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

// RequestIDKey is the context key for a caller-chosen request id.
const RequestIDKey ContextKey = "request_id"

// WithRequestID makes every request sent with ctx carry id instead of a
// generated one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID extracts the request id from context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Metrics tracks request counts and latency.
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime time.Duration
}

type metrics struct {
	total   atomic.Int64
	failed  atomic.Int64
	totalNs atomic.Int64
}

// observe records one round trip. failed covers transport errors and
// non-2xx responses.
func (m *metrics) observe(d time.Duration, failed bool) {
	m.total.Add(1)
	m.totalNs.Add(int64(d))
	if failed {
		m.failed.Add(1)
	}
}

func (m *metrics) snapshot() Metrics {
	total := m.total.Load()
	out := Metrics{TotalRequests: total, FailedRequests: m.failed.Load()}
	if total > 0 {
		out.AverageResponseTime = time.Duration(m.totalNs.Load() / total)
	}
	return out
}

// Metrics returns current metrics
func (c *Client) Metrics() Metrics {
	return c.metrics.snapshot()
}
