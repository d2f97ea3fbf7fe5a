// Package router selects and orders candidate models for a task and runs
// the fallback chain until one succeeds or all fail.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatchonk/automodel/internal/costgate"
	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/ledger"
	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/registry"
	"github.com/chatchonk/automodel/internal/task"
)

// referenceCost anchors the cost component of the composite score: a model
// whose estimated call cost reaches one currency unit scores zero on cost.
const referenceCost = 1.00

// defaultPreferences is the provider fallback order per task kind, consulted
// when the caller names no preferred providers.
func defaultPreferences() map[task.Kind][]string {
	return map[task.Kind][]string{
		task.TextGeneration:  {providers.OpenAI, providers.Anthropic, providers.Mistral, providers.DeepSeek, providers.Qwen, providers.HuggingFace},
		task.Summarization:   {providers.Anthropic, providers.OpenAI, providers.Mistral, providers.Qwen, providers.HuggingFace},
		task.TopicExtraction: {providers.Anthropic, providers.OpenAI, providers.HuggingFace, providers.Mistral, providers.Qwen},
		task.Classification:  {providers.HuggingFace, providers.OpenAI, providers.Anthropic, providers.Mistral, providers.Qwen},
		task.Embedding:       {providers.OpenAI, providers.HuggingFace},
		task.Sensemaking:     {providers.Anthropic, providers.OpenAI, providers.DeepSeek, providers.Mistral, providers.Qwen},
		task.Planning:        {providers.Anthropic, providers.OpenAI, providers.DeepSeek, providers.Mistral, providers.Qwen},
		task.MediaAnalysis:   {providers.OpenAI, providers.Anthropic},
		task.Translation:     {providers.Qwen, providers.OpenAI, providers.Anthropic, providers.Mistral, providers.HuggingFace},
		task.Chat:            {providers.OpenAI, providers.Anthropic, providers.Mistral, providers.DeepSeek, providers.Qwen, providers.HuggingFace},
	}
}

// Constraints narrow the candidate set for one routing decision.
type Constraints struct {
	PreferredProviders []string
	ExcludedProviders  []string
	PinProvider        string
	PinModel           string
	MinContextLength   int
	MaxCostPer1K       float64
	RequireVision      bool
	EstimatedTokens    int64
}

// Candidate is one scored model, best first in the router's output.
type Candidate struct {
	Model     providers.Model
	Score     float64
	Estimate  costgate.Estimate
	Reasoning string
}

// AttemptError records one failed fallback attempt.
type AttemptError struct {
	ModelID string
	Kind    providers.ErrKind
	Message string
}

// ExhaustedError is the composite failure raised when every candidate
// failed. It carries each attempt's kind and message and unwraps to the
// last error.
type ExhaustedError struct {
	Attempts []AttemptError
	last     error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s (%s)", a.ModelID, a.Kind)
	}
	return fmt.Sprintf("all %d candidates failed: %s", len(e.Attempts), strings.Join(parts, ", "))
}

func (e *ExhaustedError) Unwrap() error { return e.last }

// Router scores candidates against the registry catalog and the performance
// ledger, then executes the fallback chain.
type Router struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	bus      *events.Bus
	log      *slog.Logger

	mu           sync.Mutex
	preferences  map[task.Kind][]string
	loadCounters map[string]int64
}

// Option configures a Router.
type Option func(*Router)

// WithBus attaches an event bus for route events.
func WithBus(b *events.Bus) Option {
	return func(r *Router) { r.bus = b }
}

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

// New creates a Router over the registry and ledger.
func New(reg *registry.Registry, led *ledger.Ledger, opts ...Option) *Router {
	r := &Router{
		registry:     reg,
		ledger:       led,
		log:          slog.Default(),
		preferences:  defaultPreferences(),
		loadCounters: make(map[string]int64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetPreferences overrides the provider fallback order for one task kind.
func (r *Router) SetPreferences(kind task.Kind, order []string) {
	r.mu.Lock()
	r.preferences[kind] = append([]string(nil), order...)
	r.mu.Unlock()
}

// SetDefaultProvider moves the named provider to the front of every task's
// fallback chain.
func (r *Router) SetDefaultProvider(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, chain := range r.preferences {
		reordered := make([]string, 0, len(chain)+1)
		reordered = append(reordered, providerID)
		for _, p := range chain {
			if p != providerID {
				reordered = append(reordered, p)
			}
		}
		r.preferences[kind] = reordered
	}
}

func (r *Router) preferenceChain(kind task.Kind, c Constraints) []string {
	if len(c.PreferredProviders) > 0 {
		return c.PreferredProviders
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if chain, ok := r.preferences[kind]; ok {
		return chain
	}
	return providers.AllProviders
}

func (r *Router) loadCount(providerID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadCounters[providerID]
}

func (r *Router) bumpLoad(providerID string) {
	r.mu.Lock()
	r.loadCounters[providerID]++
	r.mu.Unlock()
}

// Route returns the ordered candidate list for a task, best first. Scores
// are non-increasing down the list.
func (r *Router) Route(kind task.Kind, priority task.Priority, tier task.Tier, c Constraints) ([]Candidate, error) {
	if c.PinModel != "" {
		return r.routePinned(kind, priority, tier, c)
	}

	excluded := make(map[string]bool, len(c.ExcludedProviders))
	for _, p := range c.ExcludedProviders {
		excluded[p] = true
	}
	chain := r.preferenceChain(kind, c)
	if c.PinProvider != "" {
		// A provider pin without a model pin collapses the chain to that
		// provider; its models still compete on score.
		chain = []string{c.PinProvider}
	}

	type scored struct {
		cand  Candidate
		order int
	}
	var candidates []scored
	order := 0
	for _, providerID := range chain {
		if excluded[providerID] {
			continue
		}
		d, ok := r.registry.Driver(providerID)
		if !ok {
			continue
		}
		// A failed probe marks the driver degraded; degraded providers stay
		// in the chain with their score cut by the ledger error rate.
		switch d.State() {
		case providers.StateReady:
			if !r.registry.Healthy(providerID) {
				continue
			}
		case providers.StateDegraded:
		default:
			continue
		}
		for _, m := range d.ListModels() {
			if !m.Available || !m.Supports(kind) {
				continue
			}
			if c.MinContextLength > 0 && m.MaxContextTokens < c.MinContextLength {
				continue
			}
			if c.MaxCostPer1K > 0 && m.UnitCost() > c.MaxCostPer1K {
				continue
			}
			if c.RequireVision && !m.Vision {
				continue
			}
			if costgate.CheckTierAccess(tier, m) != nil {
				continue
			}
			est := costgate.EstimateCost(m, c.EstimatedTokens)
			score, reasoning := r.scoreModel(m, priority, est)
			candidates = append(candidates, scored{
				cand:  Candidate{Model: m, Score: score, Estimate: est, Reasoning: reasoning},
				order: order,
			})
			order++
		}
	}

	if len(candidates) == 0 {
		return nil, providers.E(providers.KindModelNotFound,
			"no candidate model for task %s under tier %s", kind, tier)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.cand.Score != b.cand.Score {
			return a.cand.Score > b.cand.Score
		}
		if a.cand.Model.PriorityScore != b.cand.Model.PriorityScore {
			return a.cand.Model.PriorityScore > b.cand.Model.PriorityScore
		}
		la, lb := r.loadCount(a.cand.Model.Provider), r.loadCount(b.cand.Model.Provider)
		if la != lb {
			return la < lb
		}
		return a.order < b.order
	})

	out := make([]Candidate, len(candidates))
	for i, s := range candidates {
		out[i] = s.cand
	}
	return out, nil
}

// routePinned resolves an explicitly named model. Pinning bypasses the
// preference defaults but not the tier or cost gates.
func (r *Router) routePinned(kind task.Kind, priority task.Priority, tier task.Tier, c Constraints) ([]Candidate, error) {
	m, ok := r.registry.Model(c.PinModel)
	if !ok {
		return nil, providers.E(providers.KindModelNotFound, "model %s not found", c.PinModel)
	}
	if c.PinProvider != "" && m.Provider != c.PinProvider {
		return nil, providers.E(providers.KindModelNotFound,
			"model %s belongs to %s, not %s", c.PinModel, m.Provider, c.PinProvider)
	}
	if !m.Supports(kind) {
		return nil, providers.E(providers.KindTaskNotSupported,
			"model %s does not support task %s", c.PinModel, kind)
	}
	if c.RequireVision && !m.Vision {
		return nil, providers.E(providers.KindTaskNotSupported,
			"model %s does not support image input", c.PinModel)
	}
	if err := costgate.CheckTierAccess(tier, m); err != nil {
		return nil, err
	}
	est := costgate.EstimateCost(m, c.EstimatedTokens)
	score, reasoning := r.scoreModel(m, priority, est)
	return []Candidate{{Model: m, Score: score, Estimate: est, Reasoning: reasoning + "; pinned"}}, nil
}

// scoreModel computes the composite score in [0, 100]: reliability 40,
// latency 30, cost 30, with priority adjustments and degradation for error
// rate and slow response times.
func (r *Router) scoreModel(m providers.Model, priority task.Priority, est costgate.Estimate) (float64, string) {
	rec := r.ledger.Snapshot(m.ID)
	reliability := rec.SuccessRate()
	avgLatencyMs := rec.AvgResponseTime * 1000

	reliabilityScore := 40 * reliability
	latencyScore := 30 * max(0, 1-avgLatencyMs/10000)
	costScore := 30 * max(0, 1-est.TotalCost/referenceCost)
	score := reliabilityScore + latencyScore + costScore

	switch priority {
	case task.PriorityHigh:
		if avgLatencyMs < 2000 {
			score += 10
		}
	case task.PriorityLow:
		score += costScore * 0.5
	}

	if rec.ErrorRate > 0.1 {
		score *= 1 - rec.ErrorRate
	}
	// Slow models lose up to 20% of their score.
	timePenalty := min(rec.AvgResponseTime/10, 0.2)
	score *= 1 - timePenalty

	switch priority {
	case task.PriorityCritical:
		if m.PriorityScore < 9.0 {
			score *= 0.7
		}
	case task.PriorityHigh:
		if m.PriorityScore < 8.0 {
			score *= 0.8
		}
	}

	score = min(max(score, 0), 100)
	reasoning := fmt.Sprintf(
		"reliability=%.2f latency_ms=%.0f est_cost=%.4f score=%.1f",
		reliability, avgLatencyMs, est.TotalCost, score)
	return score, reasoning
}

// Execute tries candidates in order. Gate refusals and validation errors
// surface immediately; everything else records a failed attempt and moves
// to the next candidate. Caller cancellation aborts the remaining chain.
func (r *Router) Execute(ctx context.Context, candidates []Candidate, req providers.Request) (*providers.Response, Candidate, error) {
	var attempts []AttemptError
	var lastErr error

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		d, ok := r.registry.Driver(cand.Model.Provider)
		if !ok {
			attempts = append(attempts, AttemptError{
				ModelID: cand.Model.ID,
				Kind:    providers.KindProviderUnavailable,
				Message: "driver not registered",
			})
			continue
		}

		attempt := req
		attempt.ModelID = cand.Model.ID

		start := time.Now()
		resp, err := d.Process(ctx, attempt)
		latency := time.Since(start)

		if err == nil {
			r.ledger.RecordOutcome(cand.Model.ID, true, latency, "")
			r.bumpLoad(cand.Model.Provider)
			r.publish(events.Event{
				Type:       events.EventRouteSuccess,
				ModelID:    cand.Model.ID,
				ProviderID: cand.Model.Provider,
				TaskKind:   string(req.Task),
				LatencyMs:  float64(latency.Milliseconds()),
				CostUSD:    cand.Estimate.TotalCost,
			})
			return resp, cand, nil
		}

		kind := providers.KindOf(err)
		r.ledger.RecordOutcome(cand.Model.ID, false, latency, string(kind))
		r.publish(events.Event{
			Type:       events.EventRouteError,
			ModelID:    cand.Model.ID,
			ProviderID: cand.Model.Provider,
			TaskKind:   string(req.Task),
			LatencyMs:  float64(latency.Milliseconds()),
			ErrorKind:  string(kind),
		})
		r.log.Warn("candidate failed",
			"model", cand.Model.ID, "provider", cand.Model.Provider,
			"kind", kind, "latency_ms", latency.Milliseconds())

		attempts = append(attempts, AttemptError{
			ModelID: cand.Model.ID,
			Kind:    kind,
			Message: err.Error(),
		})
		lastErr = err

		if !providers.Retryable(kind) {
			// Validation and gate refusals are the caller's to fix.
			return nil, cand, err
		}
		if kind == providers.KindDeadlineExceeded && ctx.Err() != nil {
			// The caller's deadline, not the attempt's: stop here.
			break
		}
		r.publish(events.Event{
			Type:       events.EventFallback,
			ModelID:    cand.Model.ID,
			ProviderID: cand.Model.Provider,
			TaskKind:   string(req.Task),
			ErrorKind:  string(kind),
		})
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, Candidate{}, &ExhaustedError{Attempts: attempts, last: lastErr}
}

func (r *Router) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
