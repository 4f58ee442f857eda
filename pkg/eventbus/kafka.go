package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/kafka"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"go.uber.org/zap"
)

// KafkaPublisher publishes messages with a franz-go producer
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher wraps producer
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg *Message) error {
	return p.producer.Produce(ctx, &kafka.Message{
		Topic:     msg.Topic,
		Key:       []byte(msg.Key),
		Value:     msg.Value,
		Headers:   msg.Headers,
		Timestamp: time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	p.producer.Close()
	return nil
}

// recordConsumer is the part of *kafka.Consumer a KafkaSource drives
type recordConsumer interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records ...*kafka.Record) error
	Close()
}

// DefaultRedeliverDelay spaces attempts at a record that could be neither
// handled nor dead-lettered
const DefaultRedeliverDelay = 5 * time.Second

// KafkaSource consumes a Kafka consumer group. Failed messages are retried
// in-process and then dead-lettered to "<topic>.dlq". The offset is only
// committed once a message is processed or safely dead-lettered, and no
// later record is handled before that, so a commit never skips a message.
type KafkaSource struct {
	consumer       recordConsumer
	dlq            *retry.DLQHandler
	log            *logger.Logger
	redeliverDelay time.Duration
}

// NewKafkaSource creates a source over consumer
func NewKafkaSource(consumer *kafka.Consumer, dlq *retry.DLQHandler, log *logger.Logger) *KafkaSource {
	return newKafkaSource(consumer, dlq, log, DefaultRedeliverDelay)
}

func newKafkaSource(consumer recordConsumer, dlq *retry.DLQHandler, log *logger.Logger, redeliverDelay time.Duration) *KafkaSource {
	if log == nil {
		log = logger.Nop()
	}
	if dlq == nil {
		dlq = retry.NewDLQHandler(retry.NewNoOpDLQPublisher(), nil)
	}
	return &KafkaSource{consumer: consumer, dlq: dlq, log: log, redeliverDelay: redeliverDelay}
}

func (s *KafkaSource) Run(ctx context.Context, handle HandlerFunc) error {
	s.log.Info("Kafka source started")
	for {
		records, err := s.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrClientClosed) {
				s.log.Info("Kafka source stopped")
				return nil
			}
			s.log.Error("Failed to poll records", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, rec := range records {
			if !s.settle(ctx, rec, handle) {
				s.log.Info("Kafka source stopped with message uncommitted",
					zap.String("topic", rec.Topic),
					zap.Int32("partition", rec.Partition),
					zap.Int64("offset", rec.Offset))
				return nil
			}
			if err := s.consumer.CommitRecords(ctx, rec); err != nil {
				s.log.Error("Failed to commit offset",
					zap.String("topic", rec.Topic),
					zap.Int64("offset", rec.Offset),
					zap.Error(err))
			}
		}
	}
}

// settle processes rec until it is handled or dead-lettered. It returns
// false when ctx ends first; the record then stays uncommitted and is
// delivered again after a restart or rebalance.
func (s *KafkaSource) settle(ctx context.Context, rec *kafka.Record, handle HandlerFunc) bool {
	for attempt := 1; ; attempt++ {
		if s.process(ctx, rec, handle) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.log.Warn("Redelivering message",
			zap.String("topic", rec.Topic),
			zap.Int64("offset", rec.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", s.redeliverDelay))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.redeliverDelay):
		}
	}
}

// process returns true when the record may be committed
func (s *KafkaSource) process(ctx context.Context, rec *kafka.Record, handle HandlerFunc) bool {
	msg := &Message{
		ID:      rec.Headers[HeaderEventID],
		Topic:   rec.Topic,
		Key:     string(rec.Key),
		Value:   rec.Value,
		Headers: rec.Headers,
	}

	payload := json.RawMessage(rec.Value)
	if !json.Valid(rec.Value) {
		payload, _ = json.Marshal(string(rec.Value))
	}

	err := s.dlq.ProcessWithDLQ(ctx, &retry.MessageContext{
		ID:      msg.ID,
		Topic:   msg.Topic,
		Key:     msg.Key,
		Payload: payload,
		Headers: msg.Headers,
	}, func(ctx context.Context) error {
		return handle(ctx, msg)
	})
	if err == nil {
		return true
	}

	var dead *retry.DeadLetteredError
	if errors.As(err, &dead) {
		s.log.Warn("Message dead-lettered",
			zap.String("topic", rec.Topic),
			zap.String("key", msg.Key),
			zap.Error(dead.Err))
		return true
	}

	if ctx.Err() != nil {
		return false
	}
	s.log.Error("Message neither handled nor dead-lettered",
		zap.String("topic", rec.Topic),
		zap.Int64("offset", rec.Offset),
		zap.Error(err))
	return false
}

func (s *KafkaSource) Close() error {
	s.consumer.Close()
	return nil
}
