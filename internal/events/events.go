package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTransferQueued    = "transfer_queued"
	EventTransferCompleted = "transfer_completed"
	EventTransferDropped   = "transfer_dropped"
	EventTransferNotified  = "transfer_notified"
	EventDrainFinished     = "drain_finished"
	EventCircuitOpened     = "circuit_opened"
)

// TransferEventPayload is the minimal task snapshot for event consumers.
type TransferEventPayload struct {
	TransferID string        `json:"transfer_id"`
	ItemID     int64         `json:"item_id"`
	BoardID    int64         `json:"board_id"`
	AssetID    int64         `json:"asset_id"`
	FileName   string        `json:"file_name"`
	Scenario   string        `json:"scenario"`
	Outcome    string        `json:"outcome,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Attempts   int           `json:"attempts,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// DrainEventPayload summarizes one finished drain loop.
type DrainEventPayload struct {
	ItemKey   string        `json:"item_key"`
	Scenario  string        `json:"scenario"`
	Processed int           `json:"processed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// CircuitEventPayload reports a circuit opening for a key.
type CircuitEventPayload struct {
	Key       string        `json:"key"`
	Remaining time.Duration `json:"remaining"`
}

// Event represents a lightweight in-process event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
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
