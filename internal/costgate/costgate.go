// Package costgate enforces spending policy before any provider is called:
// per-request, hourly, and daily limits by tier, the emergency circuit
// breaker, and the user-supplied credential policy.
package costgate

import (
	"regexp"
	"sync"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

// Emergency ceilings. Any single estimate above the cost ceiling, or global
// hourly volume above the request ceiling, refuses unconditionally.
const (
	DefaultEmergencyCostCeiling   = 50.00
	DefaultEmergencyHourlyRequests = 10000
)

// promptShare of estimated tokens is assumed to be prompt; the rest is
// completion.
const promptShare = 0.70

// Limits is one tier's spending-limit bundle, in currency units.
type Limits struct {
	DailyCost     float64
	DailyRequests int64
	DailyTokens   int64
	HourlyCost     float64
	HourlyRequests int64
	PerRequestCost   float64
	PerRequestTokens int64
}

// TierLimits returns the default limit bundle for a tier.
func TierLimits(t task.Tier) Limits {
	switch t {
	case task.TierLilbean:
		return Limits{5.00, 200, 50000, 1.00, 50, 0.50, 4000}
	case task.TierClawback:
		return Limits{25.00, 1000, 250000, 5.00, 200, 2.00, 8000}
	case task.TierBigchonk:
		return Limits{100.00, 5000, 1000000, 20.00, 500, 10.00, 16000}
	case task.TierMeowtrix:
		return Limits{500.00, 25000, 5000000, 100.00, 2000, 50.00, 32000}
	default:
		return Limits{1.00, 50, 10000, 0.25, 15, 0.10, 2000}
	}
}

// Estimate is a cost projection for one request.
type Estimate struct {
	Tokens           int64
	PromptTokens     int64
	CompletionTokens int64
	PromptCost       float64
	CompletionCost   float64
	TotalCost        float64
}

// EstimateCost projects the cost of a call: 70% of the tokens are assumed
// prompt, 30% completion, each priced at the model's per-1k rate.
func EstimateCost(m providers.Model, estimatedTokens int64) Estimate {
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}
	promptTokens := int64(float64(estimatedTokens) * promptShare)
	completionTokens := estimatedTokens - promptTokens
	e := Estimate{
		Tokens:           estimatedTokens,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		PromptCost:       float64(promptTokens) / 1000 * m.CostPromptPer1K,
		CompletionCost:   float64(completionTokens) / 1000 * m.CostOutputPer1K,
	}
	e.TotalCost = e.PromptCost + e.CompletionCost
	return e
}

// SecurityLevel marks whose credentials a selection will use.
type SecurityLevel string

const (
	SecuritySystem SecurityLevel = "system"
	SecurityUser   SecurityLevel = "user"
)

// apiKeyPattern accepts printable URL-safe keys of at least 20 characters.
var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{20,}$`)

// ValidAPIKeyFormat checks a user-supplied provider key before acceptance.
func ValidAPIKeyFormat(key string) bool {
	return apiKeyPattern.MatchString(key)
}

type window struct {
	start    time.Time
	cost     float64
	requests int64
	tokens   int64
}

type userState struct {
	mu     sync.Mutex
	hourly window
	daily  window
}

// Gate holds per-user spending state, sharded by user id so one user's
// bookkeeping never blocks another's.
type Gate struct {
	mu    sync.RWMutex
	users map[string]*userState

	globalMu     sync.Mutex
	globalHourly window

	emergencyCostCeiling    float64
	emergencyHourlyRequests int64
	nowFunc                 func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithEmergencyCeilings overrides the global guardrails.
func WithEmergencyCeilings(costCeiling float64, hourlyRequests int64) Option {
	return func(g *Gate) {
		if costCeiling > 0 {
			g.emergencyCostCeiling = costCeiling
		}
		if hourlyRequests > 0 {
			g.emergencyHourlyRequests = hourlyRequests
		}
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(f func() time.Time) Option {
	return func(g *Gate) { g.nowFunc = f }
}

// New creates a Gate with default emergency ceilings.
func New(opts ...Option) *Gate {
	g := &Gate{
		users:                   make(map[string]*userState),
		emergencyCostCeiling:    DefaultEmergencyCostCeiling,
		emergencyHourlyRequests: DefaultEmergencyHourlyRequests,
		nowFunc:                 time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gate) stateFor(userID string) *userState {
	g.mu.RLock()
	s, ok := g.users[userID]
	g.mu.RUnlock()
	if ok {
		return s
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok = g.users[userID]; ok {
		return s
	}
	s = &userState{}
	g.users[userID] = s
	return s
}

// hourStart and dayStart are the current UTC window boundaries.
func hourStart(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour)
}

func dayStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// resetIfStale zeroes a window whose stored start no longer matches the
// current window. Idempotent.
func resetIfStale(w *window, start time.Time) {
	if !w.start.Equal(start) {
		*w = window{start: start}
	}
}

// Admit runs the pre-flight checks in order and returns a classified
// refusal, or nil when the request may proceed. Counters do not move here;
// call RecordSpend after the provider call completes.
func (g *Gate) Admit(userID string, tier task.Tier, est Estimate) error {
	limits := TierLimits(tier)
	now := g.nowFunc()

	if est.TotalCost > limits.PerRequestCost {
		return providers.E(providers.KindCostLimitExceeded,
			"estimated cost %.4f exceeds per-request limit %.2f for tier %s",
			est.TotalCost, limits.PerRequestCost, tier)
	}
	if est.Tokens > limits.PerRequestTokens {
		return providers.E(providers.KindCostLimitExceeded,
			"requested %d tokens exceeds per-request limit %d for tier %s",
			est.Tokens, limits.PerRequestTokens, tier)
	}

	s := g.stateFor(userID)
	s.mu.Lock()
	resetIfStale(&s.hourly, hourStart(now))
	resetIfStale(&s.daily, dayStart(now))
	hourly, daily := s.hourly, s.daily
	s.mu.Unlock()

	if hourly.cost+est.TotalCost > limits.HourlyCost {
		return providers.E(providers.KindCostLimitExceeded,
			"hourly cost limit %.2f reached for tier %s", limits.HourlyCost, tier)
	}
	if hourly.requests+1 > limits.HourlyRequests {
		return providers.E(providers.KindCostLimitExceeded,
			"hourly request limit %d reached for tier %s", limits.HourlyRequests, tier)
	}
	if daily.cost+est.TotalCost > limits.DailyCost {
		return providers.E(providers.KindCostLimitExceeded,
			"daily cost limit %.2f reached for tier %s", limits.DailyCost, tier)
	}
	if daily.requests+1 > limits.DailyRequests {
		return providers.E(providers.KindCostLimitExceeded,
			"daily request limit %d reached for tier %s", limits.DailyRequests, tier)
	}
	if daily.tokens+est.Tokens > limits.DailyTokens {
		return providers.E(providers.KindCostLimitExceeded,
			"daily token limit %d reached for tier %s", limits.DailyTokens, tier)
	}

	// Emergency circuit breaker: hard global guardrails, checked last so
	// per-tier refusals carry the more specific message.
	if est.TotalCost > g.emergencyCostCeiling {
		return providers.E(providers.KindCostLimitExceeded,
			"estimated cost %.2f exceeds emergency ceiling %.2f", est.TotalCost, g.emergencyCostCeiling)
	}
	g.globalMu.Lock()
	resetIfStale(&g.globalHourly, hourStart(now))
	globalReqs := g.globalHourly.requests
	g.globalMu.Unlock()
	if globalReqs >= g.emergencyHourlyRequests {
		return providers.E(providers.KindCostLimitExceeded,
			"emergency circuit breaker open: global hourly request volume exceeded")
	}
	return nil
}

// RecordSpend moves the user's and the global counters after a completed
// call.
func (g *Gate) RecordSpend(userID string, cost float64, tokens int64) {
	now := g.nowFunc()
	s := g.stateFor(userID)
	s.mu.Lock()
	resetIfStale(&s.hourly, hourStart(now))
	resetIfStale(&s.daily, dayStart(now))
	s.hourly.cost += cost
	s.hourly.requests++
	s.hourly.tokens += tokens
	s.daily.cost += cost
	s.daily.requests++
	s.daily.tokens += tokens
	s.mu.Unlock()

	g.globalMu.Lock()
	resetIfStale(&g.globalHourly, hourStart(now))
	g.globalHourly.requests++
	g.globalHourly.cost += cost
	g.globalMu.Unlock()
}

// Usage is a snapshot of one user's running counters.
type Usage struct {
	HourlyCost     float64
	HourlyRequests int64
	DailyCost      float64
	DailyRequests  int64
	DailyTokens    int64
}

// UsageFor returns the user's current-window counters.
func (g *Gate) UsageFor(userID string) Usage {
	now := g.nowFunc()
	s := g.stateFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	resetIfStale(&s.hourly, hourStart(now))
	resetIfStale(&s.daily, dayStart(now))
	return Usage{
		HourlyCost:     s.hourly.cost,
		HourlyRequests: s.hourly.requests,
		DailyCost:      s.daily.cost,
		DailyRequests:  s.daily.requests,
		DailyTokens:    s.daily.tokens,
	}
}

// ResolveSecurity decides whose credentials a selection uses. Requesting
// user keys from a tier that may not carry them is a tier refusal.
func ResolveSecurity(tier task.Tier, useUserKeys bool) (SecurityLevel, error) {
	if !useUserKeys {
		return SecuritySystem, nil
	}
	if !tier.UserKeysAllowed() {
		return "", providers.E(providers.KindTierForbidden,
			"tier %s may not use user-supplied provider credentials", tier)
	}
	return SecurityUser, nil
}

// CheckTierAccess verifies the model's unit cost against the tier ceiling.
func CheckTierAccess(tier task.Tier, m providers.Model) error {
	if m.UnitCost() > tier.CostCeiling() {
		return providers.E(providers.KindTierForbidden,
			"tier %s cannot access model %s (unit cost %.4f exceeds ceiling %.4f)",
			tier, m.ID, m.UnitCost(), tier.CostCeiling())
	}
	return nil
}
