package metrics

import (
	"context"
	"sync"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Validation counters
	ValidationsRequested *telemetry.Counter
	PaymentsConfirmed    *telemetry.Counter
	PaymentsFailed       *telemetry.Counter
	ValidationsRetryable *telemetry.Counter
	DuplicateSubmissions *telemetry.Counter

	// Event counters
	EventsPublishFailed *telemetry.Counter
	EventsConsumed      *telemetry.Counter

	// Histograms
	ValidationDuration *telemetry.Histogram
	ChainCallDuration  *telemetry.Histogram
	ConfirmedAmount    *telemetry.Histogram

	// Gauges
	ValidationsInFlight *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all payment metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	// Validation counters
	ValidationsRequested, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_validations_total",
		Description: "Total number of payment validation requests",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_confirmed_total",
		Description: "Total number of payments confirmed on chain",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	PaymentsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_failed_total",
		Description: "Total number of payments that failed validation by code",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ValidationsRetryable, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_validation_retryable_total",
		Description: "Validations rolled back with a retryable error",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	DuplicateSubmissions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_duplicate_submissions_total",
		Description: "Submissions answered from an existing record",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Event counters
	EventsPublishFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_event_publish_failures_total",
		Description: "Events that could not be published",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	EventsConsumed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "payment_events_consumed_total",
		Description: "Booking events handled by outcome",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Histograms
	ValidationDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "payment_validation_duration_seconds",
		Description: "Time to validate a payment end to end",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	ChainCallDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "payment_chain_call_duration_seconds",
		Description: "Duration of blockchain node calls",
		Unit:        "s",
	})
	if err != nil {
		return err
	}

	ConfirmedAmount, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "payment_confirmed_amount",
		Description: "Amounts of confirmed payments",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Gauges
	ValidationsInFlight, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "payment_validations_in_flight",
		Description: "Validations currently running",
		Unit:        "1",
	})
	return err
}

// RecordValidationStarted records a validation request entering the service
func RecordValidationStarted(ctx context.Context) {
	ValidationsRequested.Add(ctx, 1)
	ValidationsInFlight.Add(ctx, 1)
}

// RecordValidationFinished records the outcome of a validation
func RecordValidationFinished(ctx context.Context, outcome string, seconds float64) {
	ValidationsInFlight.Add(ctx, -1)
	ValidationDuration.Record(ctx, seconds, attribute.String("outcome", outcome))
}

// RecordPaymentConfirmed records a confirmed payment
func RecordPaymentConfirmed(ctx context.Context, currency string, amount float64) {
	PaymentsConfirmed.Add(ctx, 1, attribute.String("currency", currency))
	ConfirmedAmount.Record(ctx, amount, attribute.String("currency", currency))
}

// RecordPaymentFailed records a permanent validation failure
func RecordPaymentFailed(ctx context.Context, code string) {
	PaymentsFailed.Add(ctx, 1, attribute.String("code", code))
}

// RecordRetryable records a validation rolled back for retry
func RecordRetryable(ctx context.Context, code string) {
	ValidationsRetryable.Add(ctx, 1, attribute.String("code", code))
}

// RecordDuplicate records a resubmitted transaction hash
func RecordDuplicate(ctx context.Context) {
	DuplicateSubmissions.Add(ctx, 1)
}

// RecordChainCall records one call to the blockchain node
func RecordChainCall(ctx context.Context, method string, seconds float64, ok bool) {
	ChainCallDuration.Record(ctx, seconds,
		attribute.String("method", method),
		attribute.Bool("ok", ok),
	)
}

// RecordPublishFailure records an event that was dropped after commit
func RecordPublishFailure(ctx context.Context, topic string) {
	EventsPublishFailed.Add(ctx, 1, attribute.String("topic", topic))
}

// RecordEventConsumed records a consumed booking event
func RecordEventConsumed(ctx context.Context, topic, outcome string) {
	EventsConsumed.Add(ctx, 1, attribute.String("topic", topic), attribute.String("outcome", outcome))
}
