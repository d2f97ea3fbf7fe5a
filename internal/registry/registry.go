// Package registry owns the provider drivers and the merged model catalog.
// It runs the periodic health checks and answers the router's availability
// queries.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/providers"
)

const (
	// DefaultHealthInterval is how often each provider is probed.
	DefaultHealthInterval = 5 * time.Minute
	// minHealthGap is the shortest allowed spacing between two probes of
	// the same provider.
	minHealthGap = time.Minute
)

type providerHealth struct {
	lastCheck time.Time
	checking  bool
	healthy   bool
}

// Registry holds the driver and model maps. Read-mostly after Initialize;
// health state mutates under the registry mutex.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]providers.Driver
	order   []string
	models  map[string]providers.Model
	health  map[string]*providerHealth

	interval time.Duration
	bus      *events.Bus
	log      *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	nowFunc  func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithHealthInterval overrides the periodic probe interval.
func WithHealthInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBus attaches an event bus for health transition events.
func WithBus(b *events.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(r *Registry) { r.nowFunc = f }
}

// New builds a registry over the given drivers. Call Initialize before
// routing.
func New(drivers []providers.Driver, opts ...Option) *Registry {
	r := &Registry{
		drivers:  make(map[string]providers.Driver, len(drivers)),
		models:   make(map[string]providers.Model),
		health:   make(map[string]*providerHealth, len(drivers)),
		interval: DefaultHealthInterval,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		nowFunc:  time.Now,
	}
	for _, d := range drivers {
		r.drivers[d.ID()] = d
		r.order = append(r.order, d.ID())
		r.health[d.ID()] = &providerHealth{healthy: true}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Initialize brings every driver up and loads its model catalog. A driver
// that fails to initialize is dropped with a warning; the rest proceed.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		d := r.drivers[id]
		if err := d.Initialize(ctx); err != nil {
			r.log.Warn("provider initialization failed, skipping",
				"provider", id, "error", err)
			delete(r.drivers, id)
			delete(r.health, id)
			continue
		}
		for _, m := range d.ListModels() {
			r.models[m.ID] = m
		}
		r.log.Info("provider initialized", "provider", id, "models", len(d.ListModels()))
	}
	return nil
}

// Start launches the periodic health check loop.
func (r *Registry) Start() {
	go r.healthLoop()
}

// Close stops the health loop and shuts every driver down.
func (r *Registry) Close(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.RLock()
	drivers := make([]providers.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		drivers = append(drivers, d)
	}
	r.mu.RUnlock()
	for _, d := range drivers {
		if err := d.Shutdown(ctx); err != nil {
			r.log.Warn("provider shutdown error", "provider", d.ID(), "error", err)
		}
	}
	return nil
}

// Driver returns the driver owning the given provider id.
func (r *Registry) Driver(providerID string) (providers.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[providerID]
	return d, ok
}

// Model returns the descriptor for a model id.
func (r *Registry) Model(modelID string) (providers.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[modelID]
	return m, ok
}

// Models returns every model in driver registration order, catalog order
// preserved within a provider.
func (r *Registry) Models() []providers.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []providers.Model
	for _, id := range r.order {
		d, ok := r.drivers[id]
		if !ok {
			continue
		}
		out = append(out, d.ListModels()...)
	}
	return out
}

// Providers returns the active provider ids in registration order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for _, id := range r.order {
		if _, ok := r.drivers[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Healthy reports whether the provider's last health check passed.
func (r *Registry) Healthy(providerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[providerID]
	return ok && h.healthy
}

// CheckProvider probes one provider now, honoring the minimum gap since its
// last probe and refusing to run two probes of the same provider at once.
func (r *Registry) CheckProvider(ctx context.Context, providerID string) {
	r.mu.Lock()
	h, ok := r.health[providerID]
	d := r.drivers[providerID]
	if !ok || d == nil || h.checking || r.nowFunc().Sub(h.lastCheck) < minHealthGap {
		r.mu.Unlock()
		return
	}
	h.checking = true
	r.mu.Unlock()

	err := d.HealthCheck(ctx)

	r.mu.Lock()
	h.lastCheck = r.nowFunc()
	h.checking = false
	was := h.healthy
	h.healthy = err == nil
	now := h.healthy
	r.mu.Unlock()

	if was != now {
		oldState, newState := "healthy", "unhealthy"
		if now {
			oldState, newState = "unhealthy", "healthy"
		}
		r.log.Info("provider health changed", "provider", providerID, "state", newState)
		if r.bus != nil {
			r.bus.Publish(events.Event{
				Type:       events.EventHealthChange,
				ProviderID: providerID,
				OldState:   oldState,
				NewState:   newState,
			})
		}
	}
	if err != nil {
		r.log.Warn("health check failed", "provider", providerID, "error", err)
	}
}

func (r *Registry) healthLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			for _, id := range r.Providers() {
				r.CheckProvider(ctx, id)
			}
			cancel()
		case <-r.stop:
			return
		}
	}
}
