package checkout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionsTotal counts applied workflow events by outcome.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatwave",
		Subsystem: "checkout",
		Name:      "transitions_total",
		Help:      "Workflow transitions by event and outcome.",
	}, []string{"event", "outcome"})

	// ordersCreatedTotal counts payment sessions by outcome.
	ordersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatwave",
		Subsystem: "checkout",
		Name:      "orders_created_total",
		Help:      "Payment session creations by outcome.",
	}, []string{"outcome"})

	// pollAttemptsTotal counts order-status polls.
	pollAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chatwave",
		Subsystem: "checkout",
		Name:      "poll_attempts_total",
		Help:      "Total order-status poll attempts.",
	})

	// pollOutcomesTotal counts finished polling runs by terminal outcome.
	pollOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatwave",
		Subsystem: "checkout",
		Name:      "poll_outcomes_total",
		Help:      "Polling runs by terminal outcome.",
	}, []string{"outcome"})

	// provisioningTotal counts entitlement activations by outcome.
	provisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatwave",
		Subsystem: "checkout",
		Name:      "provisioning_total",
		Help:      "Entitlement provisioning attempts by outcome.",
	}, []string{"outcome"})
)
