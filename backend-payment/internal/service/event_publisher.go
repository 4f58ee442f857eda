package service

import (
	"context"
	"fmt"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
)

// EventPublisher defines the interface for publishing payment events
type EventPublisher interface {
	// PublishPaymentConfirmed publishes a payment confirmed event
	PublishPaymentConfirmed(ctx context.Context, payment *domain.Payment) error

	// PublishPaymentFailed publishes a payment failed event
	PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error
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
	p := &BusEventPublisher{publisher: publisher, serviceName: "payment-service", now: time.Now}
	if cfg != nil && cfg.ServiceName != "" {
		p.serviceName = cfg.ServiceName
	}
	if cfg != nil && cfg.Now != nil {
		p.now = cfg.Now
	}
	return p
}

// PublishPaymentConfirmed publishes payment.confirmed keyed by booking id
func (p *BusEventPublisher) PublishPaymentConfirmed(ctx context.Context, payment *domain.Payment) error {
	return p.publish(ctx, domain.TopicPaymentConfirmed, payment.BookingID, domain.NewPaymentConfirmedEvent(payment, p.now()))
}

// PublishPaymentFailed publishes payment.failed keyed by booking id
func (p *BusEventPublisher) PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error {
	return p.publish(ctx, domain.TopicPaymentFailed, payment.BookingID, domain.NewPaymentFailedEvent(payment, p.now()))
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

func (NoOpEventPublisher) PublishPaymentConfirmed(ctx context.Context, payment *domain.Payment) error {
	return nil
}

func (NoOpEventPublisher) PublishPaymentFailed(ctx context.Context, payment *domain.Payment) error {
	return nil
}
