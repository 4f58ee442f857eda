package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/appLSI/decentralized-rental-app-sub000"

// MetricOpts describes an instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter is a monotonic int64 counter
type Counter struct {
	inner metric.Int64Counter
}

// Histogram records float64 distributions such as latencies
type Histogram struct {
	inner metric.Float64Histogram
}

// UpDownCounter is an int64 gauge-like counter
type UpDownCounter struct {
	inner metric.Int64UpDownCounter
}

func meter() metric.Meter {
	return otel.GetMeterProvider().Meter(meterName)
}

// NewCounter registers a counter on the global meter provider
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{inner: c}, nil
}

// NewHistogram registers a histogram on the global meter provider
func NewHistogram(opts MetricOpts) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{inner: h}, nil
}

// NewUpDownCounter registers an up/down counter on the global meter provider
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	u, err := meter().Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &UpDownCounter{inner: u}, nil
}

// Add increments the counter. A nil counter is a no-op.
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Record adds a sample. A nil histogram is a no-op.
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Add moves the counter by n. A nil counter is a no-op.
func (u *UpDownCounter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if u == nil {
		return
	}
	u.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}
