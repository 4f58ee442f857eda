package repository

import (
	"context"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
)

// BookingRepository persists bookings. Implementations never update the
// pricing snapshot columns after Create.
type BookingRepository interface {
	// Create stores a new booking and assigns its ID. The overlap check is
	// repeated atomically with the insert, returning ErrPropertyUnavailable
	// when another active booking claims any of the nights.
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]*domain.Booking, error)
	// HasOverlap reports whether an AWAITING_PAYMENT or CONFIRMED booking on
	// the property intersects [start, end)
	HasOverlap(ctx context.Context, propertyID int64, start, end time.Time) (bool, error)
	// Transition locks the booking, lets fn mutate it and stores the new
	// status. When fn fails nothing is written and fn's error is returned
	// together with the booking as read.
	Transition(ctx context.Context, id int64, fn func(b *domain.Booking) error) (*domain.Booking, error)
	// ExpireStale moves every AWAITING_PAYMENT booking created before cutoff
	// to EXPIRED and returns the affected rows
	ExpireStale(ctx context.Context, cutoff, now time.Time) ([]*domain.Booking, error)
}
