// Package eventbus is the broker-neutral layer the services publish and
// subscribe through. Kafka and RabbitMQ drivers live next to it.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/google/uuid"
)

// Header keys set on every message
const (
	HeaderEventType   = "event_type"
	HeaderEventID     = "event_id"
	HeaderSource      = "source"
	HeaderContentType = "content_type"
	HeaderOccurredAt  = "occurred_at"
)

// Message is a broker-neutral event
type Message struct {
	ID      string
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Publisher sends messages to the bus
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// HandlerFunc processes one message. Returning an error wrapped with
// retry.Permanent dead-letters the message; any other error is retried.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Source pumps messages from a broker into a handler until ctx is done
type Source interface {
	Run(ctx context.Context, handle HandlerFunc) error
	Close() error
}

// NewJSONMessage builds a message with the standard headers and the trace
// context of ctx. Key is typically the aggregate id.
func NewJSONMessage(ctx context.Context, topic string, key int64, source string, payload any) (*Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	id := uuid.NewString()
	headers := map[string]string{
		HeaderEventType:   topic,
		HeaderEventID:     id,
		HeaderSource:      source,
		HeaderContentType: "application/json",
		HeaderOccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
	telemetry.InjectHeaders(ctx, headers)

	return &Message{
		ID:      id,
		Topic:   topic,
		Key:     strconv.FormatInt(key, 10),
		Value:   value,
		Headers: headers,
	}, nil
}

// NoOpPublisher drops every message. Used when BUS_DRIVER=none.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a no-op publisher
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Publish(ctx context.Context, msg *Message) error { return nil }
func (p *NoOpPublisher) Close() error                                      { return nil }
