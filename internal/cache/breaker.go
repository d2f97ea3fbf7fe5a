package cache

import (
	"sync"
	"time"
)

// breakerState is the remote tier's circuit state.
type breakerState int

const (
	// breakerClosed is normal operation: remote reads and writes proceed.
	breakerClosed breakerState = iota
	// breakerOpen means the remote tier is bypassed entirely.
	breakerOpen
	// breakerHalfOpen allows a single probe through to test recovery.
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultBreakerThreshold = 3
	defaultBreakerCooldown  = 30 * time.Second
)

// breaker trips the remote cache tier out of the request path after
// consecutive failures, so a down key-value store degrades the cache to
// local-only instead of slowing every request.
type breaker struct {
	mu           sync.Mutex
	state        breakerState
	failureCount int
	threshold    int
	cooldown     time.Duration
	lastTripped  time.Time
	nowFunc      func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration, nowFunc func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &breaker{threshold: threshold, cooldown: cooldown, nowFunc: nowFunc}
}

// allow reports whether the next remote operation should be attempted.
// Open trips to half-open after the cooldown and admits one probe.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.nowFunc().After(b.lastTripped.Add(b.cooldown)) {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		// One probe at a time.
		return false
	default:
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	if b.state == breakerHalfOpen {
		b.state = breakerClosed
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.state = breakerOpen
			b.lastTripped = b.nowFunc()
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.lastTripped = b.nowFunc()
	}
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
