package costgate

import (
	"math"
	"testing"
	"time"

	"github.com/chatchonk/automodel/internal/providers"
	"github.com/chatchonk/automodel/internal/task"
)

func model(prompt, completion float64) providers.Model {
	return providers.Model{ID: "m", CostPromptPer1K: prompt, CostOutputPer1K: completion}
}

func TestEstimateCostSplit(t *testing.T) {
	est := EstimateCost(model(0.01, 0.03), 1000)
	if est.PromptTokens != 700 || est.CompletionTokens != 300 {
		t.Errorf("split = %d/%d, want 700/300", est.PromptTokens, est.CompletionTokens)
	}
	wantPrompt := 700.0 / 1000 * 0.01
	wantCompletion := 300.0 / 1000 * 0.03
	if math.Abs(est.PromptCost-wantPrompt) > 1e-12 {
		t.Errorf("prompt cost = %v, want %v", est.PromptCost, wantPrompt)
	}
	if math.Abs(est.TotalCost-(wantPrompt+wantCompletion)) > 1e-12 {
		t.Errorf("total = %v", est.TotalCost)
	}
}

func TestTierLimitsTable(t *testing.T) {
	free := TierLimits(task.TierFree)
	if free.DailyCost != 1.00 || free.DailyRequests != 50 || free.DailyTokens != 10000 ||
		free.HourlyCost != 0.25 || free.HourlyRequests != 15 ||
		free.PerRequestCost != 0.10 || free.PerRequestTokens != 2000 {
		t.Errorf("free limits = %+v", free)
	}
	meow := TierLimits(task.TierMeowtrix)
	if meow.DailyCost != 500.00 || meow.DailyRequests != 25000 || meow.DailyTokens != 5000000 ||
		meow.HourlyCost != 100.00 || meow.HourlyRequests != 2000 ||
		meow.PerRequestCost != 50.00 || meow.PerRequestTokens != 32000 {
		t.Errorf("meowtrix limits = %+v", meow)
	}
}

func TestAdmitPerRequestCaps(t *testing.T) {
	g := New()
	// 100k tokens on a free tier blows the per-request token cap.
	est := EstimateCost(model(0.001, 0.001), 100000)
	err := g.Admit("u1", task.TierFree, est)
	if providers.KindOf(err) != providers.KindCostLimitExceeded {
		t.Errorf("kind = %s, want cost_limit_exceeded", providers.KindOf(err))
	}
	// Counters must not move on refusal.
	if u := g.UsageFor("u1"); u.DailyRequests != 0 {
		t.Errorf("refusal moved counters: %+v", u)
	}
}

func TestAdmitExactlyAtHourlyCap(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	g := New(WithNowFunc(func() time.Time { return now }))

	// Free tier hourly cost cap is 0.25. Spend 0.20, then admit an estimate
	// of exactly 0.05; one unit above must be refused.
	g.RecordSpend("u1", 0.20, 100)

	exact := Estimate{Tokens: 100, TotalCost: 0.05}
	if err := g.Admit("u1", task.TierFree, exact); err != nil {
		t.Errorf("estimate equal to remaining allowance should be admitted: %v", err)
	}
	over := Estimate{Tokens: 100, TotalCost: 0.050001}
	if err := g.Admit("u1", task.TierFree, over); err == nil {
		t.Error("estimate above remaining allowance should be refused")
	}
}

func TestCounterResetAtWindowBoundary(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 59, 0, 0, time.UTC)
	g := New(WithNowFunc(func() time.Time { return now }))

	for i := 0; i < 15; i++ {
		g.RecordSpend("u1", 0.001, 10)
	}
	// Hourly request cap (15) is reached.
	if err := g.Admit("u1", task.TierFree, Estimate{Tokens: 10, TotalCost: 0.001}); err == nil {
		t.Fatal("expected hourly request refusal")
	}

	// Top of the next UTC hour: the hourly window resets, the daily does not.
	now = time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	if err := g.Admit("u1", task.TierFree, Estimate{Tokens: 10, TotalCost: 0.001}); err != nil {
		t.Errorf("hourly window should have reset: %v", err)
	}
	if u := g.UsageFor("u1"); u.DailyRequests != 15 {
		t.Errorf("daily counter should survive the hour boundary, got %d", u.DailyRequests)
	}

	// Midnight UTC resets the daily window too.
	now = time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	if u := g.UsageFor("u1"); u.DailyRequests != 0 {
		t.Errorf("daily counter should reset at midnight UTC, got %d", u.DailyRequests)
	}
}

func TestEmergencyCostCeiling(t *testing.T) {
	g := New()
	est := Estimate{Tokens: 1000, TotalCost: 51.00}
	err := g.Admit("u1", task.TierMeowtrix, est)
	if providers.KindOf(err) != providers.KindCostLimitExceeded {
		t.Errorf("kind = %s", providers.KindOf(err))
	}
}

func TestEmergencyHourlyVolume(t *testing.T) {
	g := New(WithEmergencyCeilings(50, 3))
	for i := 0; i < 3; i++ {
		g.RecordSpend("u", 0.0001, 1)
	}
	err := g.Admit("other-user", task.TierMeowtrix, Estimate{Tokens: 10, TotalCost: 0.001})
	if providers.KindOf(err) != providers.KindCostLimitExceeded {
		t.Errorf("global volume breaker should refuse, got %v", err)
	}
}

func TestResolveSecurity(t *testing.T) {
	if lvl, err := ResolveSecurity(task.TierFree, false); err != nil || lvl != SecuritySystem {
		t.Errorf("system default: %v %v", lvl, err)
	}
	if _, err := ResolveSecurity(task.TierLilbean, true); providers.KindOf(err) != providers.KindTierForbidden {
		t.Errorf("lilbean user keys should be tier_forbidden, got %v", err)
	}
	if lvl, err := ResolveSecurity(task.TierClawback, true); err != nil || lvl != SecurityUser {
		t.Errorf("clawback user keys: %v %v", lvl, err)
	}
}

func TestCheckTierAccess(t *testing.T) {
	gpt4o := providers.Model{ID: "gpt-4o", CostPromptPer1K: 0.005, CostOutputPer1K: 0.005}
	if err := CheckTierAccess(task.TierFree, gpt4o); providers.KindOf(err) != providers.KindTierForbidden {
		t.Errorf("free tier must not access gpt-4o: %v", err)
	}
	if err := CheckTierAccess(task.TierBigchonk, gpt4o); err != nil {
		t.Errorf("bigchonk may access gpt-4o: %v", err)
	}
}

func TestValidAPIKeyFormat(t *testing.T) {
	if !ValidAPIKeyFormat("abcDEF123_-abcDEF123") {
		t.Error("20-char URL-safe key should pass")
	}
	if ValidAPIKeyFormat("short") {
		t.Error("short key should fail")
	}
	if ValidAPIKeyFormat("has spaces in it which is bad") {
		t.Error("spaces should fail")
	}
}
