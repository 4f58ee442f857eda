package eventbus

import (
	"context"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/kafka"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/rabbitmq"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
)

// Supported drivers
const (
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
	DriverNone     = "none"
)

// Options selects and configures a bus driver
type Options struct {
	Driver string
	// Service names the publisher in message headers and DLQ records
	Service string

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string

	RabbitURL      string
	RabbitExchange string
	RabbitQueue    string
	RabbitPrefetch int

	Retry *retry.Config
}

// NewPublisher connects a publisher for the configured driver
func NewPublisher(ctx context.Context, opts *Options) (Publisher, error) {
	switch opts.Driver {
	case DriverKafka:
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  opts.KafkaBrokers,
			ClientID: opts.KafkaClientID,
		})
		if err != nil {
			return nil, err
		}
		return NewKafkaPublisher(producer), nil
	case DriverRabbitMQ:
		pub, err := rabbitmq.NewPublisher(&rabbitmq.Config{
			URL:      opts.RabbitURL,
			Exchange: opts.RabbitExchange,
		})
		if err != nil {
			return nil, err
		}
		return NewRabbitPublisher(pub), nil
	case DriverNone, "":
		return NewNoOpPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", opts.Driver)
	}
}

// NewSource connects a consuming source subscribed to topics. For Kafka the
// source dead-letters through its own producer. Every service consumes
// under its own group and queue, both suffixed or named by opts.Service.
func NewSource(ctx context.Context, opts *Options, topics []string, log *logger.Logger) (Source, error) {
	switch opts.Driver {
	case DriverKafka:
		consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
			Brokers:  opts.KafkaBrokers,
			GroupID:  serviceScoped(opts.KafkaGroupID, opts.Service),
			Topics:   topics,
			ClientID: opts.KafkaClientID,
		})
		if err != nil {
			return nil, err
		}
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  opts.KafkaBrokers,
			ClientID: opts.KafkaClientID + "-dlq",
		})
		if err != nil {
			consumer.Close()
			return nil, err
		}
		dlq := retry.NewDLQHandler(
			retry.NewKafkaDLQPublisher(producer, &retry.DLQConfig{TopicSuffix: ".dlq", Source: opts.Service}),
			&retry.DLQHandlerConfig{RetryConfig: opts.Retry, Source: opts.Service},
		)
		return &closingSource{Source: NewKafkaSource(consumer, dlq, log), onClose: producer.Close}, nil
	case DriverRabbitMQ:
		consumer, err := rabbitmq.NewConsumer(&rabbitmq.Config{
			URL:      opts.RabbitURL,
			Exchange: opts.RabbitExchange,
			Prefetch: opts.RabbitPrefetch,
		}, serviceScoped(opts.RabbitQueue, opts.Service), topics)
		if err != nil {
			return nil, err
		}
		return NewRabbitSource(consumer, opts.Retry, log), nil
	case DriverNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", opts.Driver)
	}
}

// serviceScoped returns name.service, or service alone when name is empty
func serviceScoped(name, service string) string {
	switch {
	case name == "":
		return service
	case service == "":
		return name
	default:
		return name + "." + service
	}
}

type closingSource struct {
	Source
	onClose func()
}

func (s *closingSource) Close() error {
	err := s.Source.Close()
	s.onClose()
	return err
}
