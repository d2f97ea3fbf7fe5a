package providers

import "sync"

// State is a driver's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
	StateShuttingDown  State = "shutting_down"
	StateTerminated    State = "terminated"
)

// Lifecycle tracks driver state transitions. Concrete drivers embed it.
// Only Ready and Degraded accept work; Degraded stays eligible but the
// router scores it down.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == "" {
		return StateUninitialized
	}
	return l.state
}

// Accepting reports whether the driver may process requests.
func (l *Lifecycle) Accepting() bool {
	s := l.State()
	return s == StateReady || s == StateDegraded
}

func (l *Lifecycle) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// BeginInit moves Uninitialized to Initializing. Returns false when the
// driver is already past that point.
func (l *Lifecycle) BeginInit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != "" && l.state != StateUninitialized {
		return false
	}
	l.state = StateInitializing
	return true
}

// MarkReady completes initialization or recovers from Degraded.
func (l *Lifecycle) MarkReady() { l.setState(StateReady) }

// MarkDegraded records a failed health check. The driver remains eligible.
func (l *Lifecycle) MarkDegraded() {
	l.mu.Lock()
	if l.state == StateReady || l.state == StateDegraded {
		l.state = StateDegraded
	}
	l.mu.Unlock()
}

// BeginShutdown moves any state to ShuttingDown.
func (l *Lifecycle) BeginShutdown() { l.setState(StateShuttingDown) }

// MarkTerminated completes shutdown.
func (l *Lifecycle) MarkTerminated() { l.setState(StateTerminated) }
