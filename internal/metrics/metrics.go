// Package metrics exposes the routing Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors the request pipeline feeds.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	CostUSD        *prometheus.CounterVec
	TokensTotal    *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	Fallbacks      *prometheus.CounterVec
	Refusals       *prometheus.CounterVec
	ProviderUp     *prometheus.GaugeVec
}

// New creates an isolated registry with every routing collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_requests_total",
			Help: "Total requests processed, by task, model, provider, and outcome",
		}, []string{"task", "model", "provider", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "automodel_request_latency_ms",
			Help:    "Provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"task", "model", "provider"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_cost_usd_total",
			Help: "Estimated USD spend, by model and provider",
		}, []string{"model", "provider"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_tokens_total",
			Help: "Tokens consumed, by model and provider",
		}, []string{"model", "provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_cache_lookups_total",
			Help: "Response cache lookups, by result (local_hit, remote_hit, miss)",
		}, []string{"result"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_fallbacks_total",
			Help: "Fallback transitions away from a failed candidate",
		}, []string{"provider", "error_kind"}),
		Refusals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "automodel_refusals_total",
			Help: "Requests refused before any provider call, by reason",
		}, []string{"reason"}),
		ProviderUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "automodel_provider_up",
			Help: "1 when the provider's last health probe succeeded",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestLatency, m.CostUSD, m.TokensTotal,
		m.CacheLookups, m.Fallbacks, m.Refusals, m.ProviderUp)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
