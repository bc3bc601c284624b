// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks language model call duration.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Language model request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SessionsActive tracks conversation sessions held in the registry.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of conversation sessions in memory",
		},
	)

	// SessionsEvictedTotal tracks evicted sessions by reason.
	SessionsEvictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_evicted_total",
			Help: "Conversation sessions removed from the registry",
		},
		[]string{"reason"},
	)

	// MessagesTotal tracks inbound customer messages by outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Inbound customer messages",
		},
		[]string{"outcome"},
	)

	// ReservationsTotal tracks reservation attempts by result.
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Stock reservation attempts",
		},
		[]string{"result"},
	)

	// OrdersTotal tracks finalize attempts by result.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Order finalize attempts",
		},
		[]string{"result"},
	)

	// CacheFetchesTotal tracks cache refreshes by cache and result.
	CacheFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_fetches_total",
			Help: "Underlying fetches performed by caches",
		},
		[]string{"cache", "result"},
	)

	// ReconcileDeltasTotal tracks canonical inventory pushes by result.
	ReconcileDeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_deltas_total",
			Help: "Inventory deltas pushed to the backing store",
		},
		[]string{"result"},
	)

	// LockWaitDuration tracks time spent waiting for a customer lock.
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "customer_lock_wait_seconds",
			Help:    "Time spent waiting for a per-customer lock",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	// BusyRejectionsTotal tracks messages rejected because the customer was already being served.
	BusyRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "busy_rejections_total",
			Help: "Messages rejected on lock wait timeout",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a language model call.
func RecordLLMCall(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, status).Observe(duration)
	if status != "success" {
		return
	}
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordCacheFetch records one underlying cache fetch.
func RecordCacheFetch(cache string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	CacheFetchesTotal.WithLabelValues(cache, result).Inc()
}
