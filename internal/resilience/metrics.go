package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "storefront"

// Breaker collectors, labelled by upstream target (catalog, wallet). The
// state gauge follows State: 0 closed, 1 open, 2 half-open.
var (
	BreakerState = register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker state per storefront upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"}))
	BreakerTransitions = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per storefront upstream.",
	}, []string{"target", "from", "to"}))
	BreakerOpenedTotal = register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "upstream",
		Name:      "breaker_opened_total",
		Help:      "Times a storefront upstream was cut off by its breaker.",
	}, []string{"target"}))
)

// register adds c to the default registry, handing back the collector
// already registered under the same descriptor if there is one.
func register[C prometheus.Collector](c C) C {
	err := prometheus.DefaultRegisterer.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}
