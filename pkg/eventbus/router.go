package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Router maps topics to handlers. Components register their handlers at
// startup and a Source feeds Dispatch.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *logger.Logger
}

// NewRouter creates an empty router
func NewRouter(log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{handlers: make(map[string]HandlerFunc), log: log}
}

// Handle registers h for topic, replacing any previous handler
func (r *Router) Handle(topic string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = h
}

// Topics returns the registered topics in sorted order
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch runs the handler registered for msg.Topic. Messages for
// unknown topics are logged and dropped.
func (r *Router) Dispatch(ctx context.Context, msg *Message) error {
	r.mu.RLock()
	h, ok := r.handlers[msg.Topic]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("No handler registered, dropping message", zap.String("topic", msg.Topic))
		return nil
	}

	ctx = telemetry.ExtractHeaders(ctx, msg.Headers)
	ctx, span := telemetry.StartSpan(ctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", msg.Headers[HeaderEventID]),
			attribute.String("messaging.key", msg.Key),
		),
	)
	defer span.End()

	if err := h(ctx, msg); err != nil {
		telemetry.SetSpanError(ctx, err)
		permanent := retry.IsPermanent(err)
		span.SetAttributes(attribute.Bool("messaging.permanent_failure", permanent))
		r.log.Warn("Handler failed",
			zap.String("topic", msg.Topic),
			zap.String("key", msg.Key),
			zap.Bool("permanent", permanent),
			zap.Error(err))
		return err
	}
	return nil
}
