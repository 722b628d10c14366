package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/King-Chau/mozi/internal/cron"
)

// EventHandler receives a scheduler event. Handlers should be non-blocking.
type EventHandler func(cron.Event)

// EventBus fans scheduler events out to subscribers: CLI watchers, the
// gateway status surface, anything that wants job lifecycle notifications.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]EventHandler
}

func New() *EventBus {
	return &EventBus{subscribers: make(map[string]EventHandler)}
}

// Subscribe registers a handler and returns its id for Unsubscribe.
func (b *EventBus) Subscribe(handler EventHandler) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
	return id
}

// Unsubscribe removes a subscriber.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Publish delivers an event to every subscriber. A panicking handler is
// logged and skipped; it never takes down the scheduler.
func (b *EventBus) Publish(evt cron.Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		callSafely(h, evt)
	}
}

func callSafely(h EventHandler, evt cron.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panicked", "kind", evt.Kind, "panic", rec)
		}
	}()
	h(evt)
}
