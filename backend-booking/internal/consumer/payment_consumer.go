package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/metrics"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"go.uber.org/zap"
)

// Outcomes recorded per consumed event
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// BookingTransitions is the part of the booking service driven by payments
type BookingTransitions interface {
	ConfirmBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error)
}

// PaymentConsumer applies payment outcomes to bookings
type PaymentConsumer struct {
	bookings BookingTransitions
	log      *logger.Logger
}

// NewPaymentConsumer creates a new payment consumer
func NewPaymentConsumer(bookings BookingTransitions, log *logger.Logger) *PaymentConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentConsumer{bookings: bookings, log: log.With(zap.String("component", "payment_consumer"))}
}

// Register wires the consumer's handlers into r
func (c *PaymentConsumer) Register(r *eventbus.Router) {
	r.Handle(domain.TopicPaymentConfirmed, c.HandlePaymentConfirmed)
	r.Handle(domain.TopicPaymentFailed, c.HandlePaymentFailed)
}

// HandlePaymentConfirmed confirms the booking. Redeliveries for a booking
// that is already CONFIRMED are acknowledged without side effects.
func (c *PaymentConsumer) HandlePaymentConfirmed(ctx context.Context, msg *eventbus.Message) error {
	var evt domain.PaymentConfirmedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.BookingID <= 0 {
		return c.reject(ctx, msg, fmt.Errorf("malformed %s payload: %v", msg.Topic, err))
	}

	log := c.log.With(zap.Int64("booking_id", evt.BookingID), zap.String("transaction_id", evt.TransactionID))

	_, err := c.bookings.ConfirmBooking(ctx, evt.BookingID)
	if err == nil {
		log.InfoContext(ctx, "Booking confirmed from payment")
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeApplied)
		return nil
	}

	var te *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		return c.reject(ctx, msg, err)
	case errors.As(err, &te) && te.From == domain.BookingStatusConfirmed:
		log.InfoContext(ctx, "Duplicate payment confirmation ignored")
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeDuplicate)
		return nil
	case errors.As(err, &te):
		// Funds arrived for a booking that no longer holds its dates.
		log.ErrorContext(ctx, "Payment confirmed for a closed booking, manual refund required",
			zap.String("status", string(te.From)))
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeIgnored)
		return nil
	default:
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeFailed)
		return err
	}
}

// HandlePaymentFailed cancels a booking that is still awaiting payment.
// Bookings in any other status are left as they are.
func (c *PaymentConsumer) HandlePaymentFailed(ctx context.Context, msg *eventbus.Message) error {
	var evt domain.PaymentFailedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.BookingID <= 0 {
		return c.reject(ctx, msg, fmt.Errorf("malformed %s payload: %v", msg.Topic, err))
	}

	log := c.log.With(zap.Int64("booking_id", evt.BookingID), zap.String("failure_reason", evt.Reason))

	_, err := c.bookings.CancelBooking(ctx, evt.BookingID, service.CancelOptions{
		Reason:        domain.PaymentFailedReason,
		RequireStatus: domain.BookingStatusAwaitingPayment,
	})
	if err == nil {
		log.InfoContext(ctx, "Booking cancelled after failed payment")
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeApplied)
		return nil
	}

	var te *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		return c.reject(ctx, msg, err)
	case errors.As(err, &te):
		log.InfoContext(ctx, "Payment failure ignored", zap.String("status", string(te.From)))
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeIgnored)
		return nil
	default:
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeFailed)
		return err
	}
}

// reject marks err permanent so the source dead-letters the message
func (c *PaymentConsumer) reject(ctx context.Context, msg *eventbus.Message, err error) error {
	c.log.WarnContext(ctx, "Rejecting payment event",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.Error(err),
	)
	metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeRejected)
	return retry.Permanent(err)
}
