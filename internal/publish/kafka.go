package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaSink forwards bus events to a Kafka topic. It subscribes like any
// other consumer, so a broker outage sheds events instead of stalling the
// pipeline.
type KafkaSink struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaSink creates a producer for the event stream topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 200 * time.Millisecond,
	}
	return &KafkaSink{writer: w, logger: logger}
}

// Run consumes the bus until ctx is cancelled or the bus closes.
func (k *KafkaSink) Run(ctx context.Context, bus *Bus) {
	events, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := k.send(ctx, ev); err != nil && ctx.Err() == nil {
				k.logger.Error("kafka publish failed",
					slog.String("kind", ev.Kind),
					slog.String("error", err.Error()))
			}
		}
	}
}

func (k *KafkaSink) send(ctx context.Context, ev Event) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// serializeToMessage marshals an event into a Kafka message keyed so all
// updates for one incident land in one partition.
func serializeToMessage(ev Event) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event: %w", err)
	}
	key := ev.IncidentID
	if key == "" {
		key = ev.Kind
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "at", Value: []byte(ev.At.Format(time.RFC3339))},
		},
	}, nil
}
