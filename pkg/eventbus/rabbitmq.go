package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/rabbitmq"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitPublisher publishes messages to a topic exchange, using the topic
// as routing key
type RabbitPublisher struct {
	pub *rabbitmq.Publisher
}

// NewRabbitPublisher wraps pub
func NewRabbitPublisher(pub *rabbitmq.Publisher) *RabbitPublisher {
	return &RabbitPublisher{pub: pub}
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg *Message) error {
	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["key"] = msg.Key
	return p.pub.Publish(ctx, msg.Topic, msg.ID, msg.Value, headers)
}

func (p *RabbitPublisher) Close() error {
	return p.pub.Close()
}

// RabbitSource consumes a queue. Successful messages are acked, messages
// that keep failing are rejected without requeue so the broker moves them
// to the dead-letter exchange.
type RabbitSource struct {
	consumer *rabbitmq.Consumer
	retrier  *retry.Retrier
	log      *logger.Logger
}

// NewRabbitSource creates a source over consumer
func NewRabbitSource(consumer *rabbitmq.Consumer, retryCfg *retry.Config, log *logger.Logger) *RabbitSource {
	if log == nil {
		log = logger.Nop()
	}
	return &RabbitSource{consumer: consumer, retrier: retry.New(retryCfg), log: log}
}

func (s *RabbitSource) Run(ctx context.Context, handle HandlerFunc) error {
	deliveries, err := s.consumer.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.log.Info("RabbitMQ source started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("RabbitMQ source stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			s.process(ctx, d, handle)
		}
	}
}

func (s *RabbitSource) process(ctx context.Context, d amqp.Delivery, handle HandlerFunc) {
	msg := fromDelivery(d)

	result := s.retrier.Do(ctx, func(ctx context.Context) error {
		return handle(ctx, msg)
	})

	switch {
	case result.Err == nil:
		_ = d.Ack(false)
	case errors.Is(result.Err, retry.ErrContextCanceled):
		_ = d.Nack(false, true)
	default:
		s.log.Warn("Message rejected to dead-letter exchange",
			zap.String("routing_key", d.RoutingKey),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err))
		_ = d.Nack(false, false)
	}
}

func fromDelivery(d amqp.Delivery) *Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return &Message{
		ID:      d.MessageId,
		Topic:   d.RoutingKey,
		Key:     headers["key"],
		Value:   d.Body,
		Headers: headers,
	}
}

func (s *RabbitSource) Close() error {
	return s.consumer.Close()
}
