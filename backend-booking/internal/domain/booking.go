package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of booking dates
const DateLayout = "2006-01-02"

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "PENDING"
	BookingStatusAwaitingPayment BookingStatus = "AWAITING_PAYMENT"
	BookingStatusConfirmed       BookingStatus = "CONFIRMED"
	BookingStatusCancelled       BookingStatus = "CANCELLED"
	BookingStatusExpired         BookingStatus = "EXPIRED"
)

// transitions lists every legal edge. PENDING has none.
var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusAwaitingPayment: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed:       {BookingStatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusExpired
}

// HoldsDates reports whether a booking in s blocks its date range
func (s BookingStatus) HoldsDates() bool {
	return s == BookingStatusAwaitingPayment || s == BookingStatusConfirmed
}

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusAwaitingPayment, BookingStatusConfirmed,
		BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// Booking is a tenant's claim on a property for [StartDate, EndDate).
// PricePerNight, TotalPrice, Currency and WalletAddress are captured at
// creation and never change afterwards.
type Booking struct {
	ID            int64           `json:"id"`
	PropertyID    int64           `json:"propertyId"`
	TenantID      int64           `json:"tenantId"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	Status        BookingStatus   `json:"status"`
	WalletAddress string          `json:"walletAddress"`
	PricePerNight decimal.Decimal `json:"pricePerNight"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Nights returns the number of nights in the stay
func (b *Booking) Nights() int {
	return NightsBetween(b.StartDate, b.EndDate)
}

// Overlaps reports whether b and [start, end) share at least one night
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartDate.Before(end) && b.EndDate.After(start)
}

// TransitionTo moves the booking to next or returns a TransitionError
func (b *Booking) TransitionTo(next BookingStatus, action string, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return &TransitionError{Action: action, From: b.Status, To: next}
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}

// NightsBetween counts calendar nights between two UTC dates
func NightsBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

// TruncateDate returns t's calendar date at UTC midnight
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
