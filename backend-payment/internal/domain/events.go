package domain

import "time"

// Topics produced and consumed by the payment service
const (
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
	TopicBookingCreated   = "booking.created"
)

// PaymentConfirmedEvent is the payload of payment.confirmed
type PaymentConfirmedEvent struct {
	BookingID       int64  `json:"bookingId"`
	TransactionID   string `json:"transactionId"`
	PaymentID       int64  `json:"paymentId"`
	ContractAddress string `json:"contractAddress"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	PayerAddress    string `json:"payerAddress"`
	BlockNumber     uint64 `json:"blockNumber"`
	Timestamp       string `json:"timestamp"`
}

// NewPaymentConfirmedEvent captures a confirmed payment
func NewPaymentConfirmedEvent(p *Payment, at time.Time) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BookingID:       p.BookingID,
		TransactionID:   p.TransactionHash,
		PaymentID:       p.ID,
		ContractAddress: p.ContractAddress,
		Amount:          p.Amount.String(),
		Currency:        p.Currency,
		PayerAddress:    p.PayerAddress,
		BlockNumber:     p.BlockNumber,
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

// PaymentFailedEvent is the payload of payment.failed
type PaymentFailedEvent struct {
	BookingID     int64          `json:"bookingId"`
	Reason        string         `json:"reason"`
	TransactionID string         `json:"transactionId"`
	PaymentID     int64          `json:"paymentId"`
	Code          ValidationCode `json:"code"`
	Timestamp     string         `json:"timestamp"`
}

// NewPaymentFailedEvent captures a failed payment
func NewPaymentFailedEvent(p *Payment, at time.Time) *PaymentFailedEvent {
	e := &PaymentFailedEvent{
		BookingID:     p.BookingID,
		TransactionID: p.TransactionHash,
		PaymentID:     p.ID,
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
	if p.ErrorMessage != nil {
		e.Reason = *p.ErrorMessage
	}
	if p.ErrorCode != nil {
		e.Code = ValidationCode(*p.ErrorCode)
	}
	return e
}

// BookingCreatedEvent is the subset of booking.created the payment service reads
type BookingCreatedEvent struct {
	BookingID     int64  `json:"bookingId"`
	PropertyID    int64  `json:"propertyId"`
	TenantID      int64  `json:"tenantId"`
	Status        string `json:"status"`
	WalletAddress string `json:"walletAddress"`
	TotalPrice    string `json:"totalPrice"`
	Currency      string `json:"currency"`
	Timestamp     string `json:"timestamp"`
}
