package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventEntryJoined    = "entry_joined"
	EventEntryCalled    = "entry_called"
	EventEntryServed    = "entry_served"
	EventEntryCancelled = "entry_cancelled"
	EventEntryNoShow    = "entry_no_show"
	EventEntryReminded  = "entry_reminded"
)

// EntryEventPayload is the minimal entry snapshot for event consumers.
type EntryEventPayload struct {
	EntryID              string `json:"entry_id"`
	ServiceID            int64  `json:"service_id"`
	UserID               int64  `json:"user_id"`
	QueueNumber          int64  `json:"queue_number"`
	Status               string `json:"status"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for queue events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
