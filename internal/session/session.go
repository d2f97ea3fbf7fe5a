// Package session tracks multi-turn conversation state. Sessions are held
// in memory, expire after an idle period, and may be written through to the
// shared cache tier so replicas can resume each other's conversations.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatchonk/automodel/internal/cache"
	"github.com/chatchonk/automodel/internal/providers"
)

// DefaultIdleTTL is how long a session survives without activity.
const DefaultIdleTTL = 24 * time.Hour

// DefaultMaxTurns caps the history replayed into a provider request.
const DefaultMaxTurns = 40

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Session is one conversation's state.
type Session struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user_id"`
	CreatedAt  time.Time           `json:"created_at"`
	LastActive time.Time           `json:"last_active"`
	Messages   []providers.Message `json:"messages"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

// Manager owns the session table. Mutations on one session are serialized
// by the manager lock; cross-replica consistency is best-effort through the
// remote tier.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	remote   cache.RemoteKV
	log      *slog.Logger
	idleTTL  time.Duration
	maxTurns int
	nowFunc  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdleTTL overrides the idle expiry.
func WithIdleTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleTTL = d
		}
	}
}

// WithMaxTurns overrides the replayed-history cap.
func WithMaxTurns(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxTurns = n
		}
	}
}

// WithRemote attaches the shared tier for session write-through.
func WithRemote(r cache.RemoteKV) Option {
	return func(m *Manager) { m.remote = r }
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(m *Manager) { m.nowFunc = f }
}

// NewManager creates an empty session table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		log:      slog.Default(),
		idleTTL:  DefaultIdleTTL,
		maxTurns: DefaultMaxTurns,
		nowFunc:  time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func remoteKey(id string) string { return "session:" + id }

// Create starts a new session for a user and returns its id.
func (m *Manager) Create(ctx context.Context, userID string, metadata map[string]string) *Session {
	now := m.nowFunc()
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   metadata,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.writeThrough(ctx, s)
	return snapshot(s)
}

// Get returns a copy of the session, falling back to the remote tier when
// the local table has no entry. Expired sessions read as not found.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	now := m.nowFunc()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && now.Sub(s.LastActive) > m.idleTTL {
		delete(m.sessions, id)
		ok = false
	}
	if ok {
		out := snapshot(s)
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	if m.remote == nil {
		return nil, ErrNotFound
	}
	raw, err := m.remote.Get(ctx, remoteKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrRemoteMiss) {
			m.log.Warn("remote session read failed", "error", err)
		}
		return nil, ErrNotFound
	}
	var restored Session
	if err := json.Unmarshal(raw, &restored); err != nil {
		return nil, ErrNotFound
	}
	if now.Sub(restored.LastActive) > m.idleTTL {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	m.sessions[id] = &restored
	m.mu.Unlock()
	return snapshot(&restored), nil
}

// AppendTurn records a user/assistant exchange and refreshes the idle clock.
func (m *Manager) AppendTurn(ctx context.Context, id string, userContent, assistantContent string) error {
	now := m.nowFunc()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || now.Sub(s.LastActive) > m.idleTTL {
		delete(m.sessions, id)
		m.mu.Unlock()
		return ErrNotFound
	}
	s.Messages = append(s.Messages,
		providers.Message{Role: "user", Content: userContent},
		providers.Message{Role: "assistant", Content: assistantContent},
	)
	if len(s.Messages) > m.maxTurns*2 {
		s.Messages = s.Messages[len(s.Messages)-m.maxTurns*2:]
	}
	s.LastActive = now
	out := snapshot(s)
	m.mu.Unlock()

	m.writeThrough(ctx, out)
	return nil
}

// History returns the replayable turns for a session, newest last.
func (m *Manager) History(ctx context.Context, id string) ([]providers.Message, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Messages, nil
}

// Delete removes the session from both tiers synchronously.
func (m *Manager) Delete(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	if m.remote != nil {
		if err := m.remote.Del(ctx, remoteKey(id)); err != nil && !errors.Is(err, cache.ErrRemoteMiss) {
			m.log.Warn("remote session delete failed", "error", err)
		}
	}
}

// Sweep evicts idle sessions from the local table.
func (m *Manager) Sweep() {
	now := m.nowFunc()
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive) > m.idleTTL {
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
}

// Count returns the live session count.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) writeThrough(ctx context.Context, s *Session) {
	if m.remote == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := m.remote.Set(ctx, remoteKey(s.ID), raw, m.idleTTL); err != nil {
		m.log.Warn("remote session write failed", "error", err)
	}
}

func snapshot(s *Session) *Session {
	out := *s
	out.Messages = append([]providers.Message(nil), s.Messages...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
