package domain

import "time"

// Topics produced and consumed by the booking service
const (
	TopicBookingCreated   = "booking.created"
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingExpired   = "booking.expired"
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
)

// ExpiredReason is attached to every booking.expired event
const ExpiredReason = "Payment timeout exceeded"

// PaymentFailedReason is the default cancellation reason for payment.failed
const PaymentFailedReason = "payment failed"

// BookingSnapshot is the payload of booking.created, booking.confirmed and
// booking.cancelled
type BookingSnapshot struct {
	BookingID     int64         `json:"bookingId"`
	PropertyID    int64         `json:"propertyId"`
	TenantID      int64         `json:"tenantId"`
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	Status        BookingStatus `json:"status"`
	WalletAddress string        `json:"walletAddress"`
	PricePerNight string        `json:"pricePerNight"`
	TotalPrice    string        `json:"totalPrice"`
	Currency      string        `json:"currency"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	Timestamp     string        `json:"timestamp"`
}

// NewBookingSnapshot captures b at the given instant
func NewBookingSnapshot(b *Booking, reason string, at time.Time) *BookingSnapshot {
	return &BookingSnapshot{
		BookingID:     b.ID,
		PropertyID:    b.PropertyID,
		TenantID:      b.TenantID,
		StartDate:     b.StartDate.Format(DateLayout),
		EndDate:       b.EndDate.Format(DateLayout),
		Status:        b.Status,
		WalletAddress: b.WalletAddress,
		PricePerNight: b.PricePerNight.String(),
		TotalPrice:    b.TotalPrice.String(),
		Currency:      b.Currency,
		Reason:        reason,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.UTC().Format(time.RFC3339),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

// BookingExpiredEvent is the payload of booking.expired
type BookingExpiredEvent struct {
	BookingID  int64  `json:"bookingId"`
	PropertyID int64  `json:"propertyId"`
	Reason     string `json:"reason"`
	Timestamp  string `json:"timestamp"`
}

// PaymentConfirmedEvent is consumed from payment.confirmed
type PaymentConfirmedEvent struct {
	BookingID     int64  `json:"bookingId"`
	TransactionID string `json:"transactionId"`
}

// PaymentFailedEvent is consumed from payment.failed
type PaymentFailedEvent struct {
	BookingID int64  `json:"bookingId"`
	Reason    string `json:"reason"`
}
