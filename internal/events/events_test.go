package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestProperty_BusDeliversToEverySubscriber(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("each subscriber receives each published event once", prop.ForAll(
		func(subscribers int, key string) bool {
			bus := NewBus("test", zap.NewNop())

			channels := make([]<-chan Event, subscribers)
			for i := range channels {
				ch, cancel := bus.Subscribe(4)
				defer cancel()
				channels[i] = ch
			}

			bus.Publish(context.Background(), NewEvent(TopicProducts, ActionUpdated, key, nil))

			for _, ch := range channels {
				select {
				case e := <-ch:
					if e.Key != key || e.Origin != "test" || e.At.IsZero() {
						return false
					}
				default:
					return false
				}
				select {
				case <-ch:
					return false
				default:
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus("test", zap.NewNop())
	ch, cancel := bus.Subscribe(1)

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic
	bus.Publish(context.Background(), NewEvent(TopicOrders, ActionCreated, "pi_1", nil))
}

func TestBusDropsEventsForFullSubscriber(t *testing.T) {
	bus := NewBus("test", zap.NewNop())
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(context.Background(), NewEvent(TopicCart, ActionUpdated, "a", nil))
	bus.Publish(context.Background(), NewEvent(TopicCart, ActionUpdated, "b", nil))

	assert.Equal(t, "a", receive(t, ch).Key)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []Event
}

func (f *recordingForwarder) Forward(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func TestBusForwardsPublishedButNotDeliveredEvents(t *testing.T) {
	bus := NewBus("a", zap.NewNop())
	fwd := &recordingForwarder{}
	bus.AddForwarder(fwd)

	bus.Publish(context.Background(), NewEvent(TopicOrders, ActionCreated, "pi_1", nil))
	bus.Deliver(Event{Topic: TopicOrders, Key: "pi_2", Origin: "b"})

	require.Len(t, fwd.events, 1)
	assert.Equal(t, "pi_1", fwd.events[0].Key)
}

func TestRedisRelayConvergesInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	newInstance := func(id string) (*Bus, *RedisRelay, *redis.Client) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		bus := NewBus(id, zap.NewNop())
		relay := NewRedisRelay(client, "", bus, zap.NewNop())
		bus.AddForwarder(relay)
		return bus, relay, client
	}

	busA, relayA, clientA := newInstance("instance-a")
	defer clientA.Close()
	busB, relayB, clientB := newInstance("instance-b")
	defer clientB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relayA.Run(ctx)
	go relayB.Run(ctx)
	<-relayA.Ready()
	<-relayB.Ready()

	subA, cancelA := busA.Subscribe(8)
	defer cancelA()
	subB, cancelB := busB.Subscribe(8)
	defer cancelB()

	busA.Publish(ctx, NewEvent(TopicProducts, ActionUpdated, "prod_hazer_co2", map[string]int{"stockQuantity": 22}))

	local := receive(t, subA)
	remote := receive(t, subB)

	assert.Equal(t, "prod_hazer_co2", local.Key)
	assert.Equal(t, "prod_hazer_co2", remote.Key)
	assert.Equal(t, "instance-a", remote.Origin)
	assert.JSONEq(t, `{"stockQuantity":22}`, string(remote.Payload))

	// The publisher must not receive its own event a second time
	select {
	case e := <-subA:
		t.Fatalf("instance-a received its own event twice: %v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeKafkaWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	written  chan struct{}
	closed   bool
}

func (w *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	w.messages = append(w.messages, msgs...)
	w.mu.Unlock()
	w.written <- struct{}{}
	return nil
}

func (w *fakeKafkaWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestKafkaSinkWritesOnlyOrderEvents(t *testing.T) {
	writer := &fakeKafkaWriter{written: make(chan struct{}, 4)}
	sink := NewKafkaSink(writer, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	require.NoError(t, sink.Forward(ctx, NewEvent(TopicProducts, ActionUpdated, "prod_1", nil)))
	require.NoError(t, sink.Forward(ctx, NewEvent(TopicOrders, ActionCreated, "pi_1", nil)))

	select {
	case <-writer.written:
	case <-time.After(2 * time.Second):
		t.Fatal("order event was not written")
	}

	cancel()
	<-done

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "pi_1", string(writer.messages[0].Key))
	assert.True(t, writer.closed)
}

func TestKafkaSinkRejectsWhenQueueIsFull(t *testing.T) {
	sink := NewKafkaSink(&fakeKafkaWriter{written: make(chan struct{}, 1)}, 1, zap.NewNop())

	require.NoError(t, sink.Forward(context.Background(), NewEvent(TopicOrders, ActionCreated, "pi_1", nil)))
	assert.ErrorIs(t, sink.Forward(context.Background(), NewEvent(TopicOrders, ActionCreated, "pi_2", nil)), ErrSinkFull)
}
