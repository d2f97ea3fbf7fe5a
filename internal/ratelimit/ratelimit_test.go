package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// testClock is a hand-advanced clock shared with the limiter under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAllowUpToBurst(t *testing.T) {
	l := New(5, 5, time.Second)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.allow("test") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.allow("test") {
		t.Fatal("request 6 should be denied")
	}
}

func TestRefillAfterInterval(t *testing.T) {
	clock := newTestClock()
	l := New(10, 10, time.Second, WithNowFunc(clock.Now))
	defer l.Stop()

	for i := 0; i < 10; i++ {
		l.allow("test")
	}
	if l.allow("test") {
		t.Fatal("should be denied after exhaustion")
	}

	clock.Advance(time.Second)

	if !l.allow("test") {
		t.Fatal("should be allowed after refill")
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	l := New(1, 1, time.Second)
	defer l.Stop()

	if !l.allow("ip1") {
		t.Fatal("ip1 should be allowed")
	}
	if l.allow("ip1") {
		t.Fatal("ip1 should be denied")
	}
	if !l.allow("ip2") {
		t.Fatal("ip2 has its own bucket and should be allowed")
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	l := New(2, 2, time.Second)
	defer l.Stop()

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rr.Header().Get("Retry-After"))
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestEvictionDropsLeastRecentlySeen(t *testing.T) {
	clock := newTestClock()
	l := New(1, 1, time.Hour, WithMaxKeys(3), WithNowFunc(clock.Now))
	defer l.Stop()

	l.allow("A")
	clock.Advance(time.Second)
	l.allow("B")
	clock.Advance(time.Second)
	l.allow("C")
	clock.Advance(time.Second)

	// Touch A so B becomes the least recently seen.
	l.allow("A")
	clock.Advance(time.Second)

	// Adding D should evict B.
	l.allow("D")

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) != 3 {
		t.Fatalf("expected 3 buckets after eviction, got %d", len(l.buckets))
	}
	if _, ok := l.buckets["B"]; ok {
		t.Error("expected B to be evicted")
	}
	for _, key := range []string{"A", "C", "D"} {
		if _, ok := l.buckets[key]; !ok {
			t.Errorf("expected %s to still be present", key)
		}
	}
}
