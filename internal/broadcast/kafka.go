package broadcast

import (
	"context"
	"encoding/json"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event_type"

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaSink writes each channel to its own topic, keyed by restaurant so a
// restaurant's events stay ordered within a partition.
type KafkaSink struct {
	writer      MessageWriter
	topicPrefix string
}

// NewKafkaWriter builds a writer without a fixed topic so messages pick theirs.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

// NewKafkaSink wraps a writer. Topics are topicPrefix + channel.
func NewKafkaSink(writer MessageWriter, topicPrefix string) *KafkaSink {
	return &KafkaSink{writer: writer, topicPrefix: topicPrefix}
}

func (sink *KafkaSink) Deliver(ctx context.Context, channel string, event booking.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return booking.WrapError("broadcast", "kafka", "encode", err)
	}
	message := kafka.Message{
		Topic:   sink.topicPrefix + channel,
		Key:     []byte(event.RestaurantID.String()),
		Value:   payload,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(event.Type)}},
		Time:    event.OccurredAt,
	}
	if err := sink.writer.WriteMessages(ctx, message); err != nil {
		return booking.WrapError("broadcast", "kafka", "write", err)
	}
	return nil
}

func (sink *KafkaSink) Close() error {
	return sink.writer.Close()
}
