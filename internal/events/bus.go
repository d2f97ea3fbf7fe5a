// Package events provides an in-memory pub/sub bus for routing and health
// events. Subscribers that fall behind lose events rather than blocking
// publishers.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventRouteSuccess EventType = "route_success"
	EventRouteError   EventType = "route_error"
	EventFallback     EventType = "fallback"
	EventHealthChange EventType = "health_change"
	EventCacheHit     EventType = "cache_hit"
	EventCostRefusal  EventType = "cost_refusal"
)

// Event is a single gateway event published on the bus.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Routing fields (populated for route events).
	RequestID  string  `json:"request_id,omitempty"`
	TaskKind   string  `json:"task_kind,omitempty"`
	ModelID    string  `json:"model_id,omitempty"`
	ProviderID string  `json:"provider_id,omitempty"`
	LatencyMs  float64 `json:"latency_ms,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	ErrorKind  string  `json:"error_kind,omitempty"`
	ErrorMsg   string  `json:"error_msg,omitempty"`

	// Health fields (populated for health_change events).
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// JSON returns the event as a JSON byte slice.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Subscriber receives events on a channel.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Bus is an in-memory pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe creates a new subscriber with a buffered channel.
func (b *Bus) Subscribe(bufSize int) *Subscriber {
	if bufSize <= 0 {
		bufSize = 64
	}
	s := &Subscriber{
		C:    make(chan Event, bufSize),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	close(s.done)
}

// Publish sends an event to all subscribers (non-blocking).
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subscribers {
		select {
		case s.C <- e:
		default:
			// Drop event if subscriber is slow (back-pressure).
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
