// Package ratelimit provides a per-IP token bucket middleware for net/http.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter tracks one token bucket per client IP.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int           // tokens added per interval
	burst    int           // max tokens (bucket capacity)
	interval time.Duration // refill interval
	maxKeys  int           // max entries before evicting oldest
	nowFunc  func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	counter  prometheus.Counter // optional: incremented on each 429
}

type bucket struct {
	tokens   int
	lastFill time.Time
	lastSeen time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCounter sets a Prometheus counter that is incremented on each 429.
func WithCounter(c prometheus.Counter) Option {
	return func(l *Limiter) { l.counter = c }
}

// WithMaxKeys caps the number of tracked client IPs.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(l *Limiter) { l.nowFunc = f }
}

// New creates a rate limiter. rate is requests per interval; burst is the
// maximum burst size. A background goroutine drops buckets idle for more
// than ten minutes.
func New(rate, burst int, interval time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		burst:    burst,
		interval: interval,
		maxKeys:  100000,
		nowFunc:  time.Now,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup()
	return l
}

// Middleware enforces the limit per client IP, keyed by X-Real-IP when
// present and RemoteAddr otherwise. Rejections use the API's error envelope.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Real-IP")
		if ip == "" {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			if l.counter != nil {
				l.counter.Inc()
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"kind":"rate_limited","message":"rate limit exceeded"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.evictOldest()
		}
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	refill := int(now.Sub(b.lastFill)/l.interval) * l.rate
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastFill = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictOldest removes the least recently seen bucket. Caller must hold l.mu.
func (l *Limiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, b := range l.buckets {
		if first || b.lastSeen.Before(oldestTime) {
			oldestKey = k
			oldestTime = b.lastSeen
			first = false
		}
	}
	if !first {
		delete(l.buckets, oldestKey)
	}
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.nowFunc().Add(-10 * time.Minute)
			for k, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, k)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}
