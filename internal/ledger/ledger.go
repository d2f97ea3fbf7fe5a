// Package ledger keeps running per-model performance statistics: request
// totals, success counts, mean response time, and error rate. The router
// consults these when scoring candidates.
package ledger

import (
	"sync"
	"time"
)

// DefaultMaxEvents bounds the in-memory outcome history.
const DefaultMaxEvents = 1000

// Record is the running statistics for one model. Latencies are seconds.
type Record struct {
	ModelID            string    `json:"model_id"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgResponseTime    float64   `json:"average_response_time"`
	ErrorRate          float64   `json:"error_rate"`
	LastUsed           time.Time `json:"last_used"`
}

// SuccessRate is the fraction of requests that succeeded, 1.0 when the
// model has no history yet.
func (r Record) SuccessRate() float64 {
	if r.TotalRequests == 0 {
		return 1.0
	}
	return float64(r.SuccessfulRequests) / float64(r.TotalRequests)
}

// Event is one completed call outcome, retained FIFO up to the cap.
type Event struct {
	ModelID   string    `json:"model_id"`
	Success   bool      `json:"success"`
	LatencyMs float64   `json:"latency_ms"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives every outcome for optional persistence. Implementations
// must not block; the ledger calls them synchronously under no lock.
type Sink interface {
	RecordOutcome(e Event)
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// Ledger tracks outcomes per model. Updates for distinct models proceed
// concurrently; updates for the same model are serialized on its entry.
type Ledger struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	events    []Event
	maxEvents int
	sink      Sink
	nowFunc   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxEvents overrides the FIFO history cap.
func WithMaxEvents(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxEvents = n
		}
	}
}

// WithSink attaches a persistence hook.
func WithSink(s Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(l *Ledger) { l.nowFunc = f }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		entries:   make(map[string]*entry),
		maxEvents: DefaultMaxEvents,
		nowFunc:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Ledger) entryFor(modelID string) *entry {
	l.mu.RLock()
	e, ok := l.entries[modelID]
	l.mu.RUnlock()
	if ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[modelID]; ok {
		return e
	}
	e = &entry{rec: Record{ModelID: modelID}}
	l.entries[modelID] = e
	return e
}

// RecordOutcome updates the model's running statistics with one completed
// call. latency is the wall time of the attempt; errKind is "" on success.
func (l *Ledger) RecordOutcome(modelID string, success bool, latency time.Duration, errKind string) {
	now := l.nowFunc()
	e := l.entryFor(modelID)

	e.mu.Lock()
	rec := &e.rec
	rec.TotalRequests++
	rec.LastUsed = now
	if success {
		rec.SuccessfulRequests++
		succ := float64(rec.SuccessfulRequests)
		rec.AvgResponseTime = ((rec.AvgResponseTime * (succ - 1)) + latency.Seconds()) / succ
	} else {
		rec.FailedRequests++
	}
	rec.ErrorRate = float64(rec.FailedRequests) / float64(rec.TotalRequests)
	e.mu.Unlock()

	ev := Event{
		ModelID:   modelID,
		Success:   success,
		LatencyMs: float64(latency.Milliseconds()),
		ErrorKind: errKind,
		Timestamp: now,
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.RecordOutcome(ev)
	}
}

// Snapshot returns a copy of the model's record. The zero record is
// returned for unknown models.
func (l *Ledger) Snapshot(modelID string) Record {
	l.mu.RLock()
	e, ok := l.entries[modelID]
	l.mu.RUnlock()
	if !ok {
		return Record{ModelID: modelID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// All returns a copy of every model record.
func (l *Ledger) All() []Record {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	return out
}

// Events returns a copy of the retained outcome history, oldest first.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
