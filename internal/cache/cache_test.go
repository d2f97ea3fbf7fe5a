package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

// fakeRemote is an in-memory RemoteKV whose failure mode can be toggled.
type fakeRemote struct {
	mu     sync.Mutex
	data   map[string][]byte
	broken bool
	gets   int
	sets   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: make(map[string][]byte)}
}

func (f *fakeRemote) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.broken {
		return nil, errors.New("connection refused")
	}
	raw, ok := f.data[key]
	if !ok {
		return nil, ErrRemoteMiss
	}
	return raw, nil
}

func (f *fakeRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.broken {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func (f *fakeRemote) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errors.New("connection refused")
	}
	delete(f.data, key)
	return nil
}

func (f *fakeRemote) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func resp(content string) *providers.Response {
	return &providers.Response{Content: content, ModelID: "m", TokensUsed: 5}
}

func TestLocalHit(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Set(ctx, "k", resp("hello"))
	got, src := c.Get(ctx, "k")
	if src != SourceLocal || got.Content != "hello" {
		t.Fatalf("Get = %+v, %v", got, src)
	}
	if s := c.Stats(); s.LocalHits != 1 || s.Misses != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	c := New(WithTTL(time.Hour), WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	c.Set(ctx, "k", resp("hello"))
	now = now.Add(time.Hour + time.Second)
	if _, src := c.Get(ctx, "k"); src != SourceNone {
		t.Error("entry should have expired")
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	now := time.Now()
	c := New(WithTTL(time.Minute), WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	c.Set(ctx, "k1", resp("a"))
	c.Set(ctx, "k2", resp("b"))
	now = now.Add(2 * time.Minute)
	c.sweep()
	if s := c.Stats(); s.LocalSize != 0 {
		t.Errorf("local size = %d after sweep, want 0", s.LocalSize)
	}
}

func TestFirstWriteWins(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.Set(ctx, "k", resp("first"))
	c.Set(ctx, "k", resp("second"))
	got, _ := c.Get(ctx, "k")
	if got == nil || got.Content != "first" {
		t.Errorf("content = %q, duplicate set must not replace", got.Content)
	}
}

func TestRemoteTierConsultedFirst(t *testing.T) {
	remote := newFakeRemote()
	raw, _ := json.Marshal(resp("shared"))
	remote.data["k"] = raw

	c := New(WithRemote(remote))
	ctx := context.Background()
	c.storeLocal("k", *resp("stale"), time.Now())

	got, src := c.Get(ctx, "k")
	if src != SourceRemote || got.Content != "shared" {
		t.Fatalf("Get = %+v, %v; remote tier must win over the local copy", got, src)
	}
	if s := c.Stats(); s.RemoteHits != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRemoteHitPromotesToLocal(t *testing.T) {
	remote := newFakeRemote()
	raw, _ := json.Marshal(resp("from-remote"))
	remote.data["k"] = raw

	c := New(WithRemote(remote))
	ctx := context.Background()

	got, src := c.Get(ctx, "k")
	if src != SourceRemote || got.Content != "from-remote" {
		t.Fatalf("Get = %+v, %v", got, src)
	}

	// The promoted copy keeps serving after the remote tier goes away.
	remote.setBroken(true)
	got, src = c.Get(ctx, "k")
	if src != SourceLocal || got.Content != "from-remote" {
		t.Errorf("Get after remote failure = %+v, %v, want the promoted local copy", got, src)
	}
}

func TestSetWritesThroughToRemote(t *testing.T) {
	remote := newFakeRemote()
	c := New(WithRemote(remote))
	ctx := context.Background()

	c.Set(ctx, "k", resp("v"))
	if _, ok := remote.data["k"]; !ok {
		t.Error("set should write through to the remote tier")
	}
}

func TestRemoteFailureDegradesSilently(t *testing.T) {
	remote := newFakeRemote()
	remote.setBroken(true)
	c := New(WithRemote(remote))
	ctx := context.Background()

	// Reads still work (as misses) and writes still land locally.
	if _, src := c.Get(ctx, "k"); src != SourceNone {
		t.Error("broken remote should read as a miss")
	}
	c.Set(ctx, "k", resp("v"))
	if got, src := c.Get(ctx, "k"); src != SourceLocal || got.Content != "v" {
		t.Errorf("local tier should still serve: %+v %v", got, src)
	}
}

func TestBreakerStopsHammeringBrokenRemote(t *testing.T) {
	remote := newFakeRemote()
	remote.setBroken(true)
	c := New(WithRemote(remote))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = c.Get(ctx, "k"+string(rune('a'+i)))
	}
	if remote.gets > defaultBreakerThreshold {
		t.Errorf("remote gets = %d, breaker should open after %d failures",
			remote.gets, defaultBreakerThreshold)
	}
	if c.breaker.currentState() != breakerOpen {
		t.Errorf("breaker state = %s, want open", c.breaker.currentState())
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	now := time.Now()
	remote := newFakeRemote()
	remote.setBroken(true)
	c := New(WithRemote(remote), WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < defaultBreakerThreshold; i++ {
		_, _ = c.Get(ctx, "k")
	}
	if c.breaker.currentState() != breakerOpen {
		t.Fatalf("breaker should be open")
	}

	remote.setBroken(false)
	now = now.Add(defaultBreakerCooldown + time.Second)
	_, _ = c.Get(ctx, "k") // probe
	if c.breaker.currentState() != breakerClosed {
		t.Errorf("breaker state = %s after successful probe, want closed", c.breaker.currentState())
	}
}

func TestDeleteRemovesBothTiers(t *testing.T) {
	remote := newFakeRemote()
	c := New(WithRemote(remote))
	ctx := context.Background()

	c.Set(ctx, "k", resp("v"))
	c.Delete(ctx, "k")
	if _, src := c.Get(ctx, "k"); src != SourceNone {
		t.Error("deleted key should miss")
	}
	if _, ok := remote.data["k"]; ok {
		t.Error("delete should reach the remote tier")
	}
}

func TestFingerprintStability(t *testing.T) {
	req := providers.Request{Text: "summarize this", MaxTokens: 256}
	a := Fingerprint(task.Summarization, req, "openai", "gpt-4o", "")
	b := Fingerprint(task.Summarization, req, "openai", "gpt-4o", "")
	if a != b {
		t.Errorf("same request produced different keys: %s vs %s", a, b)
	}
}

func TestFingerprintVariesByInputs(t *testing.T) {
	base := providers.Request{Text: "summarize this", MaxTokens: 256}
	key := Fingerprint(task.Summarization, base, "openai", "gpt-4o", "")

	otherText := base
	otherText.Text = "summarize that"
	if Fingerprint(task.Summarization, otherText, "openai", "gpt-4o", "") == key {
		t.Error("different text must change the key")
	}
	if Fingerprint(task.TextGeneration, base, "openai", "gpt-4o", "") == key {
		t.Error("different task must change the key")
	}
	if Fingerprint(task.Summarization, base, "openai", "gpt-4-turbo", "") == key {
		t.Error("different model must change the key")
	}
	warm := base
	warm.Temperature = providers.Float64(0.9)
	if Fingerprint(task.Summarization, warm, "openai", "gpt-4o", "") == key {
		t.Error("explicit temperature must change the key")
	}
	if Fingerprint(task.Summarization, base, "openai", "gpt-4o", "tpl-1") == key {
		t.Error("template id must change the key")
	}
}

func TestFingerprintCanonicalMessages(t *testing.T) {
	req := providers.Request{Messages: []providers.Message{
		{Role: "user", Content: "hello"},
	}}
	a := Fingerprint(task.Chat, req, "openai", "gpt-4o", "")
	b := Fingerprint(task.Chat, req, "openai", "gpt-4o", "")
	if a != b {
		t.Error("message-based keys should be deterministic")
	}
}
