// Package cache is the two-tier response cache: an optional remote
// key-value tier shared across instances, consulted first so replicas see
// each other's writes, with an in-process map answering on a remote miss or
// failure. The remote tier degrades silently behind a circuit breaker;
// cache failures never fail a request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
)

// Defaults for entry lifetime and local sweep cadence.
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
)

// ErrRemoteMiss is returned by RemoteKV implementations when a key is
// absent, as opposed to the tier being unreachable.
var ErrRemoteMiss = errors.New("cache: remote miss")

// RemoteKV is the shared cache tier. Implementations must distinguish a
// miss (ErrRemoteMiss) from a transport failure.
type RemoteKV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type localEntry struct {
	resp      providers.Response
	expiresAt time.Time
}

// Source identifies which tier served a read.
type Source string

const (
	SourceNone   Source = ""
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	LocalHits   int64  `json:"local_hits"`
	RemoteHits  int64  `json:"remote_hits"`
	Misses      int64  `json:"misses"`
	LocalSize   int    `json:"local_size"`
	RemoteState string `json:"remote_state,omitempty"`
}

// Cache is the two-tier response cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]localEntry

	remote  RemoteKV
	breaker *breaker
	log     *slog.Logger

	ttl           time.Duration
	sweepInterval time.Duration
	nowFunc       func() time.Time

	statsMu    sync.Mutex
	localHits  int64
	remoteHits int64
	misses     int64

	stop chan struct{}
	done chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithRemote attaches the shared tier.
func WithRemote(r RemoteKV) Option {
	return func(c *Cache) { c.remote = r }
}

// WithSweepInterval overrides the local expiry sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(c *Cache) { c.nowFunc = f }
}

// New creates a Cache. Call Start to run the local expiry sweeper.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]localEntry),
		log:           slog.Default(),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		nowFunc:       time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = newBreaker(0, 0, c.nowFunc)
	return c
}

// Start runs the background sweeper that evicts expired local entries.
func (c *Cache) Start() {
	go func() {
		defer close(c.done)
		t := time.NewTicker(c.sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.sweep()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper.
func (c *Cache) Close() {
	close(c.stop)
	<-c.done
}

func (c *Cache) sweep() {
	now := c.nowFunc()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Get returns the cached response for a key and the tier that served it.
// The shared remote tier is read first; a remote hit is promoted into the
// local tier so the entry survives a later remote outage. On a remote miss
// or failure the local map answers.
func (c *Cache) Get(ctx context.Context, key string) (*providers.Response, Source) {
	now := c.nowFunc()

	if c.remote != nil && c.breaker.allow() {
		raw, err := c.remote.Get(ctx, key)
		switch {
		case err == nil:
			c.breaker.recordSuccess()
			var resp providers.Response
			if jsonErr := json.Unmarshal(raw, &resp); jsonErr == nil {
				c.count(&c.remoteHits)
				c.storeLocal(key, resp, now)
				return &resp, SourceRemote
			}
			// Undecodable payload: drop it so it cannot poison future reads.
			_ = c.remote.Del(ctx, key)
		case errors.Is(err, ErrRemoteMiss):
			c.breaker.recordSuccess()
		default:
			c.breaker.recordFailure()
			c.log.Warn("remote cache read failed", "error", err)
		}
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		c.count(&c.localHits)
		resp := e.resp
		return &resp, SourceLocal
	}

	c.count(&c.misses)
	return nil, SourceNone
}

// Set stores a response in both tiers. The first write for a key wins;
// concurrent duplicates do not extend its lifetime.
func (c *Cache) Set(ctx context.Context, key string, resp *providers.Response) {
	if resp == nil {
		return
	}
	now := c.nowFunc()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return
	}
	c.entries[key] = localEntry{resp: *resp, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	if c.remote != nil && c.breaker.allow() {
		raw, err := json.Marshal(resp)
		if err != nil {
			return
		}
		if err := c.remote.Set(ctx, key, raw, c.ttl); err != nil {
			c.breaker.recordFailure()
			c.log.Warn("remote cache write failed", "error", err)
		} else {
			c.breaker.recordSuccess()
		}
	}
}

// Delete removes a key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.remote != nil && c.breaker.allow() {
		if err := c.remote.Del(ctx, key); err != nil && !errors.Is(err, ErrRemoteMiss) {
			c.breaker.recordFailure()
		} else {
			c.breaker.recordSuccess()
		}
	}
}

func (c *Cache) storeLocal(key string, resp providers.Response, now time.Time) {
	c.mu.Lock()
	c.entries[key] = localEntry{resp: resp, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) count(field *int64) {
	c.statsMu.Lock()
	*field++
	c.statsMu.Unlock()
}

// Stats returns a snapshot of the effectiveness counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	s := Stats{LocalHits: c.localHits, RemoteHits: c.remoteHits, Misses: c.misses}
	c.statsMu.Unlock()

	c.mu.RLock()
	s.LocalSize = len(c.entries)
	c.mu.RUnlock()

	if c.remote != nil {
		s.RemoteState = c.breaker.currentState().String()
	}
	return s
}
