package infrastructure

import (
	"context"
	"log/slog"
	"sort"

	"foodDeliveryWs/internal/modules/realtime/application/port"
	"foodDeliveryWs/internal/platform/metrics"
)

// HandlerRegistry maps business event names to their broker handlers.
type HandlerRegistry struct {
	handlers map[string]port.TopicHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	r.handlers[h.Topic()] = h
}

// Topics lists the registered event names.
func (r *HandlerRegistry) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch runs the handler registered for msg.Topic. Unknown topics are ignored.
func (r *HandlerRegistry) Dispatch(ctx context.Context, msg *port.BrokerMessage) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		slog.Debug("broker message without handler", slog.String("topic", msg.Topic))
		metrics.KafkaMessages.WithLabelValues(msg.Topic, "ignored").Inc()
		return nil
	}
	if err := handler.Handle(ctx, msg); err != nil {
		metrics.KafkaMessages.WithLabelValues(msg.Topic, "error").Inc()
		return err
	}
	metrics.KafkaMessages.WithLabelValues(msg.Topic, "ok").Inc()
	return nil
}
