package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDoRequestSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type")
		}
		if r.Header.Get("X-Api-Test") != "yes" {
			t.Errorf("caller headers not forwarded")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	body, err := DoRequest(context.Background(), ts.Client(), ts.URL, map[string]string{"a": "b"}, map[string]string{"X-Api-Test": "yes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestDoRequestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer ts.Close()

	_, err := DoRequest(context.Background(), ts.Client(), ts.URL, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", se.StatusCode)
	}
	if se.RetryAfterSecs != 42 {
		t.Errorf("RetryAfterSecs = %d, want 42", se.RetryAfterSecs)
	}
}

func TestDoRequestForwardsRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx := WithRequestID(context.Background(), "req-123")
	if _, err := DoRequest(ctx, ts.Client(), ts.URL, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	var l Lifecycle
	if l.State() != StateUninitialized {
		t.Errorf("initial state = %s", l.State())
	}
	if !l.BeginInit() {
		t.Fatal("BeginInit should succeed from uninitialized")
	}
	if l.BeginInit() {
		t.Error("BeginInit should fail once initializing")
	}
	l.MarkReady()
	if !l.Accepting() {
		t.Error("ready driver should accept work")
	}
	l.MarkDegraded()
	if l.State() != StateDegraded || !l.Accepting() {
		t.Error("degraded driver stays eligible")
	}
	l.BeginShutdown()
	l.MarkTerminated()
	if l.Accepting() {
		t.Error("terminated driver must not accept work")
	}
	l.MarkDegraded()
	if l.State() != StateTerminated {
		t.Error("MarkDegraded must not resurrect a terminated driver")
	}
}
