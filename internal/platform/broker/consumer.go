package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"foodDeliveryWs/internal/modules/realtime/application/port"
)

const readRetryDelay = time.Second

// reader is the part of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads one kafka topic and hands every record to a handler as the given business
// event. A record is committed once the handler succeeded or rejected it as malformed; any other
// failure is retried on the same record, which stays uncommitted until then.
type KafkaConsumer struct {
	reader     reader
	event      string
	retryDelay time.Duration
}

func NewKafkaConsumer(brokers []string, groupID, topic, event string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
		event:      event,
		retryDelay: readRetryDelay,
	}
}

// Consume blocks until ctx is done.
func (c *KafkaConsumer) Consume(ctx context.Context, handler func(context.Context, *port.BrokerMessage) error) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			slog.Warn("kafka reader close error", slog.String("event", c.event), slog.Any("error", err))
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Warn("kafka read error", slog.String("event", c.event), slog.Any("error", err))
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		msg := decodeMessage(c.event, m)
		slog.Info("kafka message consumed",
			slog.String("topic", m.Topic),
			slog.String("event", msg.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
		)
		if !c.process(ctx, handler, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			slog.Warn("kafka commit error", slog.String("event", msg.Topic), slog.Int64("offset", m.Offset), slog.Any("error", err))
		}
	}
}

// process runs handler until it succeeds or rejects the record as malformed. It returns false
// when ctx ended first.
func (c *KafkaConsumer) process(ctx context.Context, handler func(context.Context, *port.BrokerMessage) error, msg *port.BrokerMessage) bool {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		if errors.Is(err, port.ErrMalformedEvent) {
			slog.Warn("kafka record skipped", slog.String("event", msg.Topic), slog.Int64("offset", msg.Offset), slog.Any("error", err))
			return true
		}
		slog.Error("kafka handler failed, retrying",
			slog.String("event", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if !c.wait(ctx) {
			return false
		}
	}
}

func (c *KafkaConsumer) wait(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// envelope is the optional wrapper producers may put around an event body.
type envelope struct {
	Event string          `json:"event"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// decodeMessage builds the broker message for event. A body of the form {"event": "...",
// "data": {...}} is unwrapped and its event name wins over the binding.
func decodeMessage(event string, m kafka.Message) *port.BrokerMessage {
	msg := &port.BrokerMessage{
		Topic:     event,
		Key:       string(m.Key),
		Value:     json.RawMessage(m.Value),
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}

	trimmed := bytes.TrimSpace(m.Value)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return msg
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil || len(env.Data) == 0 {
		return msg
	}
	name := firstNonEmpty(env.Event, env.Topic)
	if name == "" {
		return msg
	}
	msg.Topic = name
	msg.Value = env.Data
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
