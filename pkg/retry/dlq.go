package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DLQMessage is the envelope written to a dead-letter topic
type DLQMessage struct {
	ID             string            `json:"id"`
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	LastAttemptAt  time.Time         `json:"last_attempt_at"`
	MovedToDLQAt   time.Time         `json:"moved_to_dlq_at"`
	Source         string            `json:"source"`
}

// DLQPublisher publishes failed messages to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
	GetDLQTopic(originalTopic string) string
}

// DLQConfig contains configuration for DLQ publishing
type DLQConfig struct {
	TopicSuffix string
	Source      string
}

// DefaultDLQConfig returns default DLQ configuration
func DefaultDLQConfig() *DLQConfig {
	return &DLQConfig{
		TopicSuffix: ".dlq",
		Source:      "unknown",
	}
}

// JSONProducer is satisfied by kafka.Producer
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
}

// KafkaDLQPublisher publishes failed messages to "<topic>.dlq" topics
type KafkaDLQPublisher struct {
	producer JSONProducer
	config   *DLQConfig
}

// NewKafkaDLQPublisher creates a new Kafka DLQ publisher
func NewKafkaDLQPublisher(producer JSONProducer, config *DLQConfig) *KafkaDLQPublisher {
	if config == nil {
		config = DefaultDLQConfig()
	}
	return &KafkaDLQPublisher{producer: producer, config: config}
}

// PublishToDLQ publishes msg to the dead-letter topic of its original topic
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}

	msg.MovedToDLQAt = time.Now()
	msg.Source = p.config.Source

	headers := map[string]string{
		"content_type":    "application/json",
		"original_topic":  msg.OriginalTopic,
		"error":           msg.Error,
		"attempts":        fmt.Sprintf("%d", msg.Attempts),
		"moved_to_dlq_at": msg.MovedToDLQAt.Format(time.RFC3339),
		"source":          msg.Source,
	}
	for k, v := range msg.Headers {
		if _, exists := headers[k]; !exists {
			headers["original_"+k] = v
		}
	}

	return p.producer.ProduceJSON(ctx, p.GetDLQTopic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

// GetDLQTopic returns the DLQ topic name for a given original topic
func (p *KafkaDLQPublisher) GetDLQTopic(originalTopic string) string {
	return originalTopic + p.config.TopicSuffix
}

// DLQHandler retries an operation and dead-letters it when it keeps failing
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	config    *DLQHandlerConfig
}

// DLQHandlerConfig contains configuration for DLQ handler
type DLQHandlerConfig struct {
	RetryConfig *Config
	Source      string
	// OnDLQ is called when a message is moved to DLQ
	OnDLQ func(msg *DLQMessage)
}

// DefaultDLQHandlerConfig returns default DLQ handler configuration
func DefaultDLQHandlerConfig() *DLQHandlerConfig {
	return &DLQHandlerConfig{
		RetryConfig: DefaultConfig(),
		Source:      "unknown",
	}
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(publisher DLQPublisher, config *DLQHandlerConfig) *DLQHandler {
	if config == nil {
		config = DefaultDLQHandlerConfig()
	}
	return &DLQHandler{
		retrier:   New(config.RetryConfig),
		publisher: publisher,
		config:    config,
	}
}

// MessageContext identifies the message being processed
type MessageContext struct {
	ID             string
	Topic          string
	Key            string
	Payload        json.RawMessage
	Headers        map[string]string
	FirstAttemptAt time.Time
}

// ProcessWithDLQ runs op with retries. When op finally fails the message is
// published to the DLQ and a *DeadLetteredError is returned. Any other
// non-nil error means the message is still unhandled.
func (h *DLQHandler) ProcessWithDLQ(ctx context.Context, msgCtx *MessageContext, op Operation) error {
	if msgCtx.FirstAttemptAt.IsZero() {
		msgCtx.FirstAttemptAt = time.Now()
	}

	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}
	if result.Err == ErrContextCanceled {
		return result.Err
	}

	errMsg := result.Err.Error()
	if result.LastError != nil {
		errMsg = result.LastError.Error()
	}

	dlqMsg := &DLQMessage{
		ID:             msgCtx.ID,
		OriginalTopic:  msgCtx.Topic,
		OriginalKey:    msgCtx.Key,
		Payload:        msgCtx.Payload,
		Headers:        msgCtx.Headers,
		Error:          errMsg,
		Attempts:       result.Attempts,
		FirstAttemptAt: msgCtx.FirstAttemptAt,
		LastAttemptAt:  time.Now(),
		Source:         h.config.Source,
	}

	if h.config.OnDLQ != nil {
		h.config.OnDLQ(dlqMsg)
	}

	if err := h.publisher.PublishToDLQ(ctx, dlqMsg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w (original error: %s)", err, errMsg)
	}

	return &DeadLetteredError{Err: result.Err}
}

// DeadLetteredError reports that processing failed but the message was
// safely moved to the DLQ, so the source may acknowledge it.
type DeadLetteredError struct {
	Err error
}

func (e *DeadLetteredError) Error() string { return "dead-lettered: " + e.Err.Error() }
func (e *DeadLetteredError) Unwrap() error { return e.Err }

// NoOpDLQPublisher drops dead letters. Used when no bus is configured.
type NoOpDLQPublisher struct{}

// NewNoOpDLQPublisher creates a new no-op DLQ publisher
func NewNoOpDLQPublisher() *NoOpDLQPublisher {
	return &NoOpDLQPublisher{}
}

func (p *NoOpDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	return nil
}

func (p *NoOpDLQPublisher) GetDLQTopic(originalTopic string) string {
	return originalTopic + ".dlq"
}
