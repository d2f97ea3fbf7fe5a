// Package idempotency deduplicates gateway calls via Idempotency-Key headers.
// Replaying a stored response keeps a retried request from paying for the
// same model call twice.
package idempotency

import (
	"sync"
	"time"
)

const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxEntries = 10000
)

// Entry holds a captured HTTP response.
type Entry struct {
	Body       []byte
	StatusCode int
	Headers    map[string]string
	StoredAt   time.Time
}

// Cache is a TTL-bounded, size-limited in-memory store for replayable
// responses.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	nowFunc    func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a stored response stays replayable.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithMaxEntries caps the number of stored responses.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = f }
}

// New creates a Cache. The oldest entry is evicted when the cap is exceeded.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		nowFunc:    time.Now,
		stop:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the background prune loop.
func (c *Cache) Start() {
	go c.pruneLoop()
}

// Stop terminates the prune loop.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns a stored response if it exists and has not expired.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.nowFunc().Sub(e.StoredAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// Set stores a response under the given key.
func (c *Cache) Set(key string, body []byte, statusCode int, headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &Entry{
		Body:       body,
		StatusCode: statusCode,
		Headers:    headers,
		StoredAt:   c.nowFunc(),
	}
}

// Len reports the number of stored responses.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) pruneLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for k, e := range c.entries {
		if now.Sub(e.StoredAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// evictOldest removes the entry with the earliest StoredAt. Caller must hold c.mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.StoredAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.StoredAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
