package metrics

import (
	"context"
	"sync"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsRejected  *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	BookingsExpired   *telemetry.Counter

	// Event counters
	EventsPublishFailed *telemetry.Counter
	EventsConsumed      *telemetry.Counter

	// Histograms
	ExpirySweepDuration *telemetry.Histogram
	TimeToConfirm       *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all booking metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&BookingsCreated, telemetry.MetricOpts{Name: "booking_created_total", Description: "Total number of bookings created", Unit: "1"}},
		{&BookingsRejected, telemetry.MetricOpts{Name: "booking_rejected_total", Description: "Booking requests rejected by reason", Unit: "1"}},
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "booking_confirmed_total", Description: "Total number of bookings confirmed", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "booking_cancelled_total", Description: "Total number of bookings cancelled", Unit: "1"}},
		{&BookingsExpired, telemetry.MetricOpts{Name: "booking_expired_total", Description: "Total number of bookings expired by the sweep", Unit: "1"}},
		{&EventsPublishFailed, telemetry.MetricOpts{Name: "booking_event_publish_failures_total", Description: "Events that could not be published", Unit: "1"}},
		{&EventsConsumed, telemetry.MetricOpts{Name: "booking_events_consumed_total", Description: "Payment events handled by outcome", Unit: "1"}},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	ExpirySweepDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_expiry_sweep_duration_seconds",
		Description: "Duration of one expiry sweep",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	TimeToConfirm, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "booking_time_to_confirm_seconds",
		Description: "Time from booking creation to confirmation",
		Unit:        "s",
	})
	return err
}

// RecordBookingCreated records a created booking
func RecordBookingCreated(ctx context.Context, propertyID int64) {
	BookingsCreated.Add(ctx, 1, attribute.Int64("property_id", propertyID))
}

// RecordBookingRejected records a rejected booking request by error kind
func RecordBookingRejected(ctx context.Context, kind string) {
	BookingsRejected.Add(ctx, 1, attribute.String("kind", kind))
}

// RecordBookingConfirmed records a confirmation and the time it took
func RecordBookingConfirmed(ctx context.Context, seconds float64) {
	BookingsConfirmed.Add(ctx, 1)
	TimeToConfirm.Record(ctx, seconds)
}

// RecordBookingCancelled records a cancellation
func RecordBookingCancelled(ctx context.Context, reason string) {
	BookingsCancelled.Add(ctx, 1, attribute.String("reason", reason))
}

// RecordExpirySweep records one sweep
func RecordExpirySweep(ctx context.Context, expired int, seconds float64) {
	BookingsExpired.Add(ctx, int64(expired))
	ExpirySweepDuration.Record(ctx, seconds)
}

// RecordPublishFailure records an event that was dropped after commit
func RecordPublishFailure(ctx context.Context, topic string) {
	EventsPublishFailed.Add(ctx, 1, attribute.String("topic", topic))
}

// RecordEventConsumed records a consumed payment event
func RecordEventConsumed(ctx context.Context, topic, outcome string) {
	EventsConsumed.Add(ctx, 1, attribute.String("topic", topic), attribute.String("outcome", outcome))
}
