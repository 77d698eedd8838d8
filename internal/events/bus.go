// Package events broadcasts change notifications after every store mutation.
// Subscribers treat an event as a hint to reload the named collection.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topic names the collection that changed
type Topic string

const (
	TopicProducts   Topic = "products"
	TopicCategories Topic = "categories"
	TopicOrders     Topic = "orders"
	TopicCart       Topic = "cart"
)

// Actions carried by events
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionDeleted       = "deleted"
	ActionStockAdjusted = "stock_adjusted"
	ActionReplaced      = "replaced"
	ActionStatusChanged = "status_changed"
	ActionCleared       = "cleared"
)

// Event is a change notification
type Event struct {
	Topic   Topic           `json:"topic"`
	Action  string          `json:"action"`
	Key     string          `json:"key,omitempty"`
	Origin  string          `json:"origin,omitempty"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event, encoding payload as JSON when it is not nil
func NewEvent(topic Topic, action, key string, payload any) Event {
	e := Event{Topic: topic, Action: action, Key: key, At: time.Now().UTC()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Publisher is implemented by anything that accepts change events
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Forwarder ships locally published events to another transport
type Forwarder interface {
	Forward(ctx context.Context, event Event) error
}

// Bus fans events out to in-process subscribers and to forwarders
type Bus struct {
	mu         sync.RWMutex
	instanceID string
	nextID     int
	subs       map[int]chan Event
	forwarders []Forwarder
	logger     *zap.Logger
}

// NewBus creates a bus whose events are stamped with instanceID
func NewBus(instanceID string, logger *zap.Logger) *Bus {
	return &Bus{
		instanceID: instanceID,
		subs:       make(map[int]chan Event),
		logger:     logger,
	}
}

// InstanceID identifies this process on shared transports
func (b *Bus) InstanceID() string {
	return b.instanceID
}

// AddForwarder registers a forwarder for locally published events
func (b *Bus) AddForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarders = append(b.forwarders, f)
}

// Subscribe returns a channel receiving every delivered event and a cancel
// function that unsubscribes and closes the channel
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers a locally originated event and forwards it
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.Origin == "" {
		event.Origin = b.instanceID
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.Deliver(event)

	b.mu.RLock()
	forwarders := append([]Forwarder(nil), b.forwarders...)
	b.mu.RUnlock()

	for _, f := range forwarders {
		if err := f.Forward(ctx, event); err != nil {
			b.logger.Warn("Failed to forward event",
				zap.String("topic", string(event.Topic)),
				zap.String("key", event.Key),
				zap.Error(err),
			)
		}
	}
}

// Deliver hands an event to in-process subscribers only. A subscriber whose
// buffer is full misses the event.
func (b *Bus) Deliver(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("topic", string(event.Topic)),
			)
		}
	}
}
