package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "cleardeal"

	// Labels
	operationLabel = "operation"
	outcomeLabel   = "outcome"
	kindLabel      = "kind"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

/**
* Metrics definition
**/
var transitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "number of lifecycle operations partitioned by operation and outcome",
	},
	[]string{operationLabel, outcomeLabel},
)

var settlementDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "settlement_duration_seconds",
		Help:      "time spent waiting for the settlement service partitioned by kind and outcome",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30},
	},
	[]string{kindLabel, outcomeLabel},
)

var webhookDeliveriesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "number of notification webhook deliveries partitioned by outcome",
	},
	[]string{outcomeLabel},
)

func IncreaseTransitionsTotal(operation, outcome string) {
	transitionsTotalMetric.With(prometheus.Labels{operationLabel: operation, outcomeLabel: outcome}).Inc()
}

func ObserveSettlement(kind, outcome string, d time.Duration) {
	settlementDurationMetric.With(prometheus.Labels{kindLabel: kind, outcomeLabel: outcome}).Observe(d.Seconds())
}

func IncreaseWebhookDeliveries(outcome string) {
	webhookDeliveriesMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(transitionsTotalMetric)
	prometheus.MustRegister(settlementDurationMetric)
	prometheus.MustRegister(webhookDeliveriesMetric)
}
