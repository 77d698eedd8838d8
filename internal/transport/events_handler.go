package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"omega-store/internal/events"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	eventBuffer       = 32
	heartbeatInterval = 25 * time.Second
)

// EventSource hands out subscriptions to change events
type EventSource interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// EventsHandler streams change notifications as server-sent events
type EventsHandler struct {
	source    EventSource
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(source EventSource, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{source: source, logger: logger, heartbeat: heartbeatInterval}
}

func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/events", h.Stream)
}

// eventFilter decides which events a stream receives. Cart events only go to
// the stream of that cart. Order payloads carry customer data and are dropped.
type eventFilter struct {
	cartID string
	topics map[events.Topic]bool
}

func newEventFilter(r *http.Request) eventFilter {
	f := eventFilter{cartID: r.URL.Query().Get("cart")}
	if raw := r.URL.Query().Get("topics"); raw != "" {
		f.topics = make(map[events.Topic]bool)
		for _, t := range strings.Split(raw, ",") {
			f.topics[events.Topic(strings.TrimSpace(t))] = true
		}
	}
	return f
}

func (f eventFilter) apply(e events.Event) (events.Event, bool) {
	if f.topics != nil && !f.topics[e.Topic] {
		return e, false
	}
	switch e.Topic {
	case events.TopicCart:
		if f.cartID == "" || e.Key != f.cartID {
			return e, false
		}
	case events.TopicOrders:
		e.Payload = nil
	}
	return e, true
}

// Stream keeps the connection open and writes one SSE message per event
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Could not clear write deadline for event stream", zap.Error(err))
	}

	filter := newEventFilter(r)
	ch, cancel := h.source.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("Event stream not supported by response writer", zap.Error(err))
		return
	}

	fmt.Fprint(w, "retry: 3000\n\n")
	_ = rc.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case event, ok := <-ch:
			if !ok {
				return
			}
			event, keep := filter.apply(event)
			if !keep {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("Failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Topic, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
