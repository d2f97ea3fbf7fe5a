package app

import (
	"github.com/chatchonk/automodel/internal/events"
	"github.com/chatchonk/automodel/internal/metrics"
)

// startMetricsBridge feeds the fleet-level collectors from bus events.
// Per-request collectors are fed inline by the facade; fallback transitions
// and provider health are published on the bus by the router and registry,
// which do not depend on the metrics package.
func startMetricsBridge(bus *events.Bus, m *metrics.Registry) func() {
	sub := bus.Subscribe(256)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case e := <-sub.C:
				switch e.Type {
				case events.EventFallback:
					m.Fallbacks.WithLabelValues(e.ProviderID, e.ErrorKind).Inc()
				case events.EventHealthChange:
					up := 0.0
					if e.NewState == "healthy" {
						up = 1
					}
					m.ProviderUp.WithLabelValues(e.ProviderID).Set(up)
				}
			case <-quit:
				return
			}
		}
	}()
	return func() {
		close(quit)
		bus.Unsubscribe(sub)
	}
}
