// Package httpapi exposes the gateway over HTTP: processing, model catalog,
// sessions, credentials, performance, health, and metrics.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/facade"
	"github.com/chatchonk/automodel/internal/keyvault"
	"github.com/chatchonk/automodel/internal/metrics"
	"github.com/chatchonk/automodel/internal/registry"
	"github.com/chatchonk/automodel/internal/store"
)

// Dependencies carries the wired subsystems into the handlers. Store,
// EventBus, and KeyVault are optional; the corresponding routes are skipped
// or degrade when nil.
type Dependencies struct {
	Gateway  *facade.AutoModel
	Registry *registry.Registry
	Metrics  *metrics.Registry
	Store    store.Store
	EventBus *events.Bus
	KeyVault *keyvault.Vault
}

// MountRoutes attaches every route to the router.
func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/healthz", HealthzHandler(d))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/process", ProcessHandler(d))
		r.Post("/process/models", ProcessWithModelsHandler(d))
		r.Post("/media", MediaHandler(d))

		r.Get("/models", ModelsHandler(d))
		r.Get("/performance", PerformanceHandler(d))
		r.Put("/preferences/{task}", PreferencesHandler(d))

		r.Post("/sessions", SessionCreateHandler(d))
		r.Get("/sessions/{id}", SessionGetHandler(d))
		r.Delete("/sessions/{id}", SessionDeleteHandler(d))

		if d.KeyVault != nil {
			r.Put("/keys/{provider}", UserKeyPutHandler(d))
			r.Delete("/keys/{provider}", UserKeyDeleteHandler(d))
		}
		if d.Store != nil {
			r.Get("/usage", UsageHandler(d))
		}
		if d.EventBus != nil {
			r.Get("/events", SSEHandler(d.EventBus))
		}
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}

// HealthzHandler reports whether the gateway can route at all.
func HealthzHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		providerCount := len(d.Registry.Providers())
		modelCount := len(d.Registry.Models())
		body := map[string]any{
			"status":    "ok",
			"providers": providerCount,
			"models":    modelCount,
		}
		w.Header().Set("Content-Type", "application/json")
		if providerCount == 0 || modelCount == 0 {
			body["status"] = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}
