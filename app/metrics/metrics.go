package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Name:      "initiated_total",
		Help:      "Payments initiated, by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	PaymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Name:      "processed_total",
		Help:      "Process attempts that reached a terminal outcome, by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Name:      "refunds_total",
		Help:      "Refund requests, by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	NotifyDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Name:      "notify_deliveries_total",
		Help:      "Status notification deliveries, by outcome.",
	}, []string{"outcome"})
)
