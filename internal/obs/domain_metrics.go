package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart operations by kind and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CartLoadDroppedTotal counts persisted cart entries discarded on load.
	CartLoadDroppedTotal prometheus.Counter
	// CatalogRejectedTotal counts upstream product records quarantined at parse time.
	CatalogRejectedTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// CashbackCreditTotal counts wallet credit task outcomes.
	CashbackCreditTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers storefront collectors.
// Collectors are created once; later calls are no-ops.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart operations by kind and result.",
		}, []string{"op", "result"})
		CartLoadDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_load_dropped_total",
			Help:      "Persisted cart entries dropped because they were malformed.",
		})
		CatalogRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_rejected_total",
			Help:      "Upstream product records quarantined by reason.",
		}, []string{"reason"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"})
		CashbackCreditTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cashback_credit_total",
			Help:      "Count of cashback credit task outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, CartLoadDroppedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartLoadDroppedTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogRejectedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogRejectedTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, CashbackCreditTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CashbackCreditTotal = v
			}
		})
	})
}

// ObserveCartMutation increments the cart mutation counter when registered.
func ObserveCartMutation(op, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}

// ObserveCartDropped adds n dropped entries when registered.
func ObserveCartDropped(n int) {
	if CartLoadDroppedTotal != nil && n > 0 {
		CartLoadDroppedTotal.Add(float64(n))
	}
}

// ObserveCatalogRejected counts one quarantined product record.
func ObserveCatalogRejected(reason string) {
	if CatalogRejectedTotal != nil {
		CatalogRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveCheckout counts one checkout attempt.
func ObserveCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// ObserveCashbackCredit counts one credit task outcome.
func ObserveCashbackCredit(result string) {
	if CashbackCreditTotal != nil {
		CashbackCreditTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
