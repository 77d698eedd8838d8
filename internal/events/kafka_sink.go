package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultOrderTopic receives order lifecycle events
const DefaultOrderTopic = "order-events"

var ErrSinkFull = errors.New("kafka sink queue is full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes order events to Kafka from a background loop so that
// publishing never blocks on the broker
type KafkaSink struct {
	writer messageWriter
	queue  chan Event
	logger *zap.Logger
}

// NewKafkaWriter creates a kafka writer with minimal required configuration
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultOrderTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaSink creates a sink over writer with a bounded queue
func NewKafkaSink(writer messageWriter, queueSize int, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		queue:  make(chan Event, queueSize),
		logger: logger,
	}
}

// Forward enqueues order events. Other topics are ignored.
func (s *KafkaSink) Forward(_ context.Context, event Event) error {
	if event.Topic != TopicOrders {
		return nil
	}
	select {
	case s.queue <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

// Run writes queued events until ctx is cancelled, then closes the writer
func (s *KafkaSink) Run(ctx context.Context) error {
	defer func() {
		if err := s.writer.Close(); err != nil {
			s.logger.Warn("Failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-s.queue:
			if err := s.write(ctx, event); err != nil {
				s.logger.Error("Failed to write order event",
					zap.String("order_id", event.Key),
					zap.String("action", event.Action),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *KafkaSink) write(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	// Messages of one order share a key and therefore a partition
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  event.At,
	})
}
