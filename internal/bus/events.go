package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event represents a system event for internal pub/sub.
type Event struct {
	Type      string    // e.g. "update.received", "delivery.finished"
	Source    string    // originating component
	Payload   any       // event-specific data, see the event type constants
	Timestamp time.Time // when the event was created
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus is a topic-based publish/subscribe system for internal events
// with wildcard subscriptions. Events are not retained after Emit.
type EventBus struct {
	handlers map[string][]namedHandler
	mu       sync.RWMutex
	logger   *slog.Logger
	nextID   int
}

// namedHandler pairs a handler with an ID used in logs.
type namedHandler struct {
	ID      string
	Handler EventHandler
}

// NewEventBus creates a new EventBus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		handlers: make(map[string][]namedHandler),
		logger:   logger,
	}
}

// On registers a handler for the given event type.
// Use "*" to listen to all events.
func (eb *EventBus) On(eventType string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eventType + "-" + strconv.Itoa(eb.nextID)
	eb.handlers[eventType] = append(eb.handlers[eventType], namedHandler{ID: id, Handler: handler})
}

// Emit publishes an event to all registered handlers.
// Handlers are called synchronously in order; a panicking handler is
// logged and does not stop the others.
func (eb *EventBus) Emit(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	handlers := make([]namedHandler, 0, len(eb.handlers[event.Type])+len(eb.handlers["*"]))
	handlers = append(handlers, eb.handlers[event.Type]...)
	handlers = append(handlers, eb.handlers["*"]...)
	eb.mu.RUnlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "event", event.Type, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(event)
		}(h)
	}
}

// --- Well-known event types ---
const (
	// Payload: domain.InboundMessage.
	EventUpdateReceived = "update.received"
	// Payload: domain.DownloadRecord with Outcome unset.
	EventDeliveryStarted = "delivery.started"
	// Payload: domain.ExtractionReport.
	EventExtractionFinished = "extraction.finished"
	// Payload: domain.DownloadRecord.
	EventDeliveryFinished = "delivery.finished"
)
