package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
)

// MemoryBookingRepository is an in-memory BookingRepository used in tests
// and in non-production runs without a database
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[int64]*domain.Booking
	nextID   int64
}

// NewMemoryBookingRepository creates an empty repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[int64]*domain.Booking)}
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overlapLocked(booking.PropertyID, booking.StartDate, booking.EndDate) {
		return domain.ErrPropertyUnavailable
	}

	r.nextID++
	booking.ID = r.nextID
	stored := *booking
	r.bookings[booking.ID] = &stored
	return nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	out := *b
	return &out, nil
}

func (r *MemoryBookingRepository) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Booking
	for _, b := range r.bookings {
		if b.TenantID == tenantID {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryBookingRepository) HasOverlap(ctx context.Context, propertyID int64, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlapLocked(propertyID, start, end), nil
}

func (r *MemoryBookingRepository) overlapLocked(propertyID int64, start, end time.Time) bool {
	for _, b := range r.bookings {
		if b.PropertyID == propertyID && b.Status.HoldsDates() && b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepository) Transition(ctx context.Context, id int64, fn func(b *domain.Booking) error) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}

	working := *stored
	if err := fn(&working); err != nil {
		current := *stored
		return &current, err
	}

	stored.Status = working.Status
	stored.UpdatedAt = working.UpdatedAt
	out := *stored
	return &out, nil
}

func (r *MemoryBookingRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*domain.Booking
	for _, b := range r.bookings {
		if b.Status == domain.BookingStatusAwaitingPayment && b.CreatedAt.Before(cutoff) {
			b.Status = domain.BookingStatusExpired
			b.UpdatedAt = now
			c := *b
			expired = append(expired, &c)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}
