package interfaces

import (
	"context"

	"github.com/replyforge/replyforge/internal/enum"
)

// MetricsSink is a fire-and-forget metrics client. Submission failures are
// logged by the implementation and never surface to the caller.
type MetricsSink interface {
	Gauge(ctx context.Context, name string, value float64, tags []string)
	Count(ctx context.Context, name string, value int64, tags []string)
	Increment(ctx context.Context, name string, tags []string)
	Histogram(ctx context.Context, name string, value float64, tags []string)
	ServiceCheck(ctx context.Context, name string, status enum.CheckStatus, tags []string, message string)
}

// MetricsFactory builds a tenant's metrics sink from its stored credentials.
type MetricsFactory func(apiKey, site string) MetricsSink
