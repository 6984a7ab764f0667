package tracing

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// metricInterval is how often Init's periodic reader exports.
const metricInterval = 30 * time.Second

// instruments are bound to the most recently installed MeterProvider.
type instruments struct {
	reviewDuration metric.Float64Histogram
	forwards       metric.Int64Counter
}

var active atomic.Pointer[instruments]

// InitMetricsWithReader installs a MeterProvider that reports through
// reader and binds the gateway instruments to it. A later call replaces
// the earlier provider. Callers own the returned provider's Shutdown.
func InitMetricsWithReader(serviceName, serviceVersion string, reader sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(serviceName, serviceVersion)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	meter := mp.Meter(tracerName)

	reviewDuration, err := meter.Float64Histogram("approval_gate.review.duration",
		metric.WithDescription("Time a held request spent in review, by final state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	forwards, err := meter.Int64Counter("approval_gate.upstream.forwards",
		metric.WithDescription("Upstream forward attempts, by method and status code (0 on failure)"),
	)
	if err != nil {
		return nil, err
	}

	active.Store(&instruments{reviewDuration: reviewDuration, forwards: forwards})
	otel.SetMeterProvider(mp)
	return mp, nil
}

// RecordReview records how long a task stayed in review and the state it
// ended in. A no-op until a MeterProvider is installed.
func RecordReview(ctx context.Context, state string, d time.Duration) {
	in := active.Load()
	if in == nil {
		return
	}
	in.reviewDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("approval.state", state)))
}

// RecordForward counts one upstream call. status is 0 when the call failed.
func RecordForward(ctx context.Context, method string, status int) {
	in := active.Load()
	if in == nil {
		return
	}
	in.forwards.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.Int("http.response.status_code", status),
	))
}
