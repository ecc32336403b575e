package broker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"foodDeliveryWs/internal/config"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
)

// Binding ties a business event to the kafka topic carrying it.
type Binding struct {
	Event string
	Topic string
}

// Bindings resolves a kafka topic for every event the registry handles. Events without a
// configured topic are read from a topic of the same name.
func Bindings(events []string, topics map[string]string) []Binding {
	out := make([]Binding, 0, len(events))
	for _, event := range events {
		topic := topics[event]
		if topic == "" {
			topic = event
		}
		out = append(out, Binding{Event: event, Topic: topic})
	}
	return out
}

// StartKafkaConsumers starts one consumer per registered event on g. It starts nothing when no
// brokers are configured.
func StartKafkaConsumers(ctx context.Context, g *errgroup.Group, registry *infrastructure.HandlerRegistry, cfg config.KafkaConfig) int {
	if len(cfg.Brokers) == 0 {
		slog.Info("kafka disabled: no brokers configured")
		return 0
	}
	bindings := Bindings(registry.Topics(), cfg.Topics)
	for _, b := range bindings {
		consumer := NewKafkaConsumer(cfg.Brokers, cfg.GroupID, b.Topic, b.Event)
		slog.Info("kafka consumer started", slog.String("topic", b.Topic), slog.String("event", b.Event), slog.String("group", cfg.GroupID))
		g.Go(func() error {
			return consumer.Consume(ctx, registry.Dispatch)
		})
	}
	return len(bindings)
}
