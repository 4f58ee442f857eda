package service

import (
	"context"
	"fmt"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
)

// EventPublisher defines the interface for publishing booking events
type EventPublisher interface {
	// PublishBookingCreated publishes a booking created event
	PublishBookingCreated(ctx context.Context, booking *domain.Booking) error

	// PublishBookingConfirmed publishes a booking confirmed event
	PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error

	// PublishBookingCancelled publishes a booking cancelled event
	PublishBookingCancelled(ctx context.Context, booking *domain.Booking, reason string) error

	// PublishBookingExpired publishes a booking expired event
	PublishBookingExpired(ctx context.Context, booking *domain.Booking) error
}

// BusEventPublisher implements EventPublisher on an event bus
type BusEventPublisher struct {
	publisher   eventbus.Publisher
	serviceName string
	now         func() time.Time
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	ServiceName string
	Now         func() time.Time
}

// NewBusEventPublisher creates a publisher on top of a bus driver
func NewBusEventPublisher(publisher eventbus.Publisher, cfg *EventPublisherConfig) *BusEventPublisher {
	serviceName := "booking-service"
	now := time.Now
	if cfg != nil {
		if cfg.ServiceName != "" {
			serviceName = cfg.ServiceName
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}
	return &BusEventPublisher{publisher: publisher, serviceName: serviceName, now: now}
}

// PublishBookingCreated publishes a booking created event
func (p *BusEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return p.publish(ctx, domain.TopicBookingCreated, booking.ID, domain.NewBookingSnapshot(booking, "", p.now()))
}

// PublishBookingConfirmed publishes a booking confirmed event
func (p *BusEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return p.publish(ctx, domain.TopicBookingConfirmed, booking.ID, domain.NewBookingSnapshot(booking, "", p.now()))
}

// PublishBookingCancelled publishes a booking cancelled event
func (p *BusEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking, reason string) error {
	return p.publish(ctx, domain.TopicBookingCancelled, booking.ID, domain.NewBookingSnapshot(booking, reason, p.now()))
}

// PublishBookingExpired publishes a booking expired event
func (p *BusEventPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	return p.publish(ctx, domain.TopicBookingExpired, booking.ID, &domain.BookingExpiredEvent{
		BookingID:  booking.ID,
		PropertyID: booking.PropertyID,
		Reason:     domain.ExpiredReason,
		Timestamp:  p.now().UTC().Format(time.RFC3339),
	})
}

func (p *BusEventPublisher) publish(ctx context.Context, topic string, bookingID int64, payload any) error {
	msg, err := eventbus.NewJSONMessage(ctx, topic, bookingID, p.serviceName, payload)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", topic, err)
	}
	if err := p.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}
	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

func (p *NoOpEventPublisher) PublishBookingCreated(ctx context.Context, booking *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingConfirmed(ctx context.Context, booking *domain.Booking) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking, reason string) error {
	return nil
}

func (p *NoOpEventPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	return nil
}
