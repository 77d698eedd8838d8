package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel shared by every instance
const DefaultChannel = "omega:changes"

// RedisRelay mirrors bus events across instances through Redis pub/sub so
// that every instance's subscribers converge on the same changes
type RedisRelay struct {
	client  *redis.Client
	channel string
	bus     *Bus
	logger  *zap.Logger
	ready   chan struct{}
}

// NewRedisRelay creates a relay for bus on channel
func NewRedisRelay(client *redis.Client, channel string, bus *Bus, logger *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		bus:     bus,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Forward publishes a local event to the shared channel
func (r *RedisRelay) Forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Ready is closed once the relay is subscribed
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run listens on the shared channel and delivers events published by other
// instances to the local bus until ctx is cancelled
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	close(r.ready)

	r.logger.Info("Event relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Ignoring malformed event", zap.Error(err))
				continue
			}
			if event.Origin == r.bus.InstanceID() {
				continue
			}
			r.bus.Deliver(event)
		}
	}
}
