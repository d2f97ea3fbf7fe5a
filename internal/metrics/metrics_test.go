package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	r := New()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
	if r.RequestsTotal == nil || r.RequestLatency == nil || r.CostUSD == nil {
		t.Fatal("request collectors must be registered")
	}
	if r.CacheLookups == nil || r.Fallbacks == nil || r.Refusals == nil || r.ProviderUp == nil {
		t.Fatal("routing collectors must be registered")
	}
}

func TestHandlerNonNil(t *testing.T) {
	r := New()
	if r.Handler() == nil {
		t.Fatal("expected non-nil http.Handler from Handler()")
	}
}

func TestMetricsCanBeCollected(t *testing.T) {
	r := New()

	r.RequestsTotal.WithLabelValues("chat", "gpt-4o", "openai", "success").Inc()
	r.CostUSD.WithLabelValues("gpt-4o", "openai").Add(0.01)
	r.TokensTotal.WithLabelValues("gpt-4o", "openai").Add(512)
	r.RequestLatency.WithLabelValues("chat", "gpt-4o", "openai").Observe(150.0)
	r.CacheLookups.WithLabelValues("local_hit").Inc()
	r.Fallbacks.WithLabelValues("openai", "rate_limited").Inc()
	r.Refusals.WithLabelValues("cost_limit_exceeded").Inc()
	r.ProviderUp.WithLabelValues("openai").Set(1)

	mfs, err := r.reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error gathering metrics: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	want := []string{
		"automodel_requests_total",
		"automodel_request_latency_ms",
		"automodel_cost_usd_total",
		"automodel_tokens_total",
		"automodel_cache_lookups_total",
		"automodel_fallbacks_total",
		"automodel_refusals_total",
		"automodel_provider_up",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("expected metric %q in gathered metrics", name)
		}
	}
}

func TestMultipleRegistriesAreIndependent(t *testing.T) {
	r1 := New()
	r2 := New()

	r1.RequestsTotal.WithLabelValues("chat", "gpt-4o", "openai", "success").Inc()

	mfs, err := r2.reg.Gather()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil && m.GetCounter().GetValue() > 0 {
				t.Error("r2 should not have any non-zero counters")
			}
		}
	}
}

func TestRegisteredMetricDescriptions(t *testing.T) {
	r := New()

	ch := make(chan *prometheus.Desc, 16)
	go func() {
		r.RequestsTotal.Describe(ch)
		r.RequestLatency.Describe(ch)
		r.CostUSD.Describe(ch)
		r.CacheLookups.Describe(ch)
		close(ch)
	}()

	count := 0
	for range ch {
		count++
	}
	if count != 4 {
		t.Errorf("expected 4 metric descriptors, got %d", count)
	}
}
