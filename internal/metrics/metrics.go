// Package metrics exposes Prometheus collectors for model spend and harvest outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "harvestor"
)

var (
	// LLM calls
	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of recorded model calls",
		},
		[]string{"model", "status"},
	)

	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Total number of tokens billed, by direction",
		},
		[]string{"model", "direction"},
	)

	LLMCostUSDTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Total spend in USD",
		},
		[]string{"model"},
	)

	// Cost limits
	CostLimitDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cost",
			Name:      "limit_denials_total",
			Help:      "Calls denied before reaching the provider, by limit",
		},
		[]string{"limit"},
	)

	// Harvests
	HarvestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "documents_total",
			Help:      "Total number of harvested documents, by outcome",
		},
		[]string{"document_type", "outcome"},
	)

	HarvestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "duration_seconds",
			Help:      "End-to-end harvest duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)
)

// RecordCall updates the call, token and spend counters for one model call.
func RecordCall(model string, success bool, inputTokens, outputTokens int, cost float64) {
	status := "ok"
	if !success {
		status = "error"
	}
	LLMCallsTotal.WithLabelValues(model, status).Inc()
	LLMTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	LLMTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	LLMCostUSDTotal.WithLabelValues(model).Add(cost)
}

// RecordDenial counts a call refused by a spend limit.
func RecordDenial(limit string) {
	CostLimitDenialsTotal.WithLabelValues(limit).Inc()
}

// RecordHarvest counts a finished harvest and observes its duration.
func RecordHarvest(documentType, strategy, outcome string, seconds float64) {
	HarvestsTotal.WithLabelValues(documentType, outcome).Inc()
	HarvestDuration.WithLabelValues(strategy).Observe(seconds)
}
