package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds connection and topology settings
type Config struct {
	URL      string
	Exchange string
	// DeadLetterExchange receives messages rejected without requeue.
	// Defaults to "<Exchange>.dlx".
	DeadLetterExchange string
	Prefetch           int
}

func (c *Config) dlx() string {
	if c.DeadLetterExchange != "" {
		return c.DeadLetterExchange
	}
	return c.Exchange + ".dlx"
}

func dial(cfg *Config) (*amqp.Connection, *amqp.Channel, error) {
	if cfg == nil || cfg.URL == "" || cfg.Exchange == "" {
		return nil, nil, fmt.Errorf("rabbitmq: url and exchange are required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	for _, ex := range []string{cfg.Exchange, cfg.dlx()} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return conn, ch, nil
}

// Publisher publishes persistent JSON messages to a topic exchange
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher connects and declares the exchange topology
func NewPublisher(cfg *Config) (*Publisher, error) {
	conn, ch, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

// Publish sends body under routingKey with headers attached
func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, body []byte, headers map[string]string) error {
	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Headers:      table,
		Body:         body,
	})
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Consumer reads from a durable queue bound to routing keys. Rejected
// messages are routed to "<queue>.dead" through the dead-letter exchange.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares the queue, its dead-letter queue and the bindings
func NewConsumer(cfg *Config, queue string, keys []string) (*Consumer, error) {
	conn, ch, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	deadQueue := queue + ".dead"
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare dead-letter queue: %w", err))
	}
	if err := ch.QueueBind(deadQueue, "#", cfg.dlx(), false, nil); err != nil {
		return fail(fmt.Errorf("bind dead-letter queue: %w", err))
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.dlx(),
	})
	if err != nil {
		return fail(fmt.Errorf("declare queue: %w", err))
	}
	for _, rk := range keys {
		if err := ch.QueueBind(q.Name, rk, cfg.Exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind %s: %w", rk, err))
		}
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("set qos: %w", err))
		}
	}

	return &Consumer{conn: conn, ch: ch, queue: q.Name}, nil
}

// Deliveries starts consuming with manual acknowledgement
func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Close closes the channel and connection
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
