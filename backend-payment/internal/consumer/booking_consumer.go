package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/metrics"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"go.uber.org/zap"
)

// Topics of booking events that close a booking
const (
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingExpired   = "booking.expired"
)

// Outcomes recorded per consumed event
const (
	OutcomeObserved = "observed"
	OutcomeFlagged  = "flagged"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// PaymentLister is the part of the payment service the consumer reads
type PaymentLister interface {
	GetPaymentsForBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error)
}

// bookingRef is the part of every booking event the consumer needs
type bookingRef struct {
	BookingID int64  `json:"bookingId"`
	Reason    string `json:"reason"`
}

// BookingConsumer follows the booking lifecycle. It never changes payments:
// it records which bookings are awaiting funds and flags escrows that were
// funded for a booking that has since closed.
type BookingConsumer struct {
	payments PaymentLister
	log      *logger.Logger
}

// NewBookingConsumer creates a new booking consumer
func NewBookingConsumer(payments PaymentLister, log *logger.Logger) *BookingConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &BookingConsumer{payments: payments, log: log.With(zap.String("component", "booking_consumer"))}
}

// Register wires the consumer's handlers into r
func (c *BookingConsumer) Register(r *eventbus.Router) {
	r.Handle(domain.TopicBookingCreated, c.HandleBookingCreated)
	r.Handle(TopicBookingCancelled, c.HandleBookingClosed)
	r.Handle(TopicBookingExpired, c.HandleBookingClosed)
}

// HandleBookingCreated logs the amount the escrow is expected to receive
func (c *BookingConsumer) HandleBookingCreated(ctx context.Context, msg *eventbus.Message) error {
	var evt domain.BookingCreatedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.BookingID <= 0 {
		return c.reject(ctx, msg, fmt.Errorf("malformed %s payload: %v", msg.Topic, err))
	}

	c.log.InfoContext(ctx, "Booking awaiting payment",
		zap.Int64("booking_id", evt.BookingID),
		zap.Int64("property_id", evt.PropertyID),
		zap.String("expected_amount", evt.TotalPrice),
		zap.String("currency", evt.Currency),
		zap.String("wallet_address", evt.WalletAddress),
	)
	metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeObserved)
	return nil
}

// HandleBookingClosed checks a cancelled or expired booking for confirmed
// payments. Funds held for a closed booking need a manual refund.
func (c *BookingConsumer) HandleBookingClosed(ctx context.Context, msg *eventbus.Message) error {
	var evt bookingRef
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.BookingID <= 0 {
		return c.reject(ctx, msg, fmt.Errorf("malformed %s payload: %v", msg.Topic, err))
	}

	payments, err := c.payments.GetPaymentsForBooking(ctx, evt.BookingID)
	if err != nil {
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeFailed)
		return err
	}

	var flagged int
	for _, p := range payments {
		if p.Status != domain.PaymentStatusConfirmed {
			continue
		}
		flagged++
		c.log.ErrorContext(ctx, "Escrow funded for a closed booking, manual refund required",
			zap.String("topic", msg.Topic),
			zap.Int64("booking_id", evt.BookingID),
			zap.Int64("payment_id", p.ID),
			zap.String("tx_hash", p.TransactionHash),
			zap.String("amount", p.Amount.String()),
			zap.String("reason", evt.Reason),
		)
	}

	if flagged > 0 {
		metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeFlagged)
		return nil
	}
	metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeObserved)
	return nil
}

// reject marks err permanent so the source dead-letters the message
func (c *BookingConsumer) reject(ctx context.Context, msg *eventbus.Message, err error) error {
	c.log.WarnContext(ctx, "Rejecting booking event",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.Error(err),
	)
	metrics.RecordEventConsumed(ctx, msg.Topic, OutcomeRejected)
	return retry.Permanent(err)
}
