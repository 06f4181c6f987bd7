package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// StrategyRuns counts strategy invocations by outcome (completed, timeout, error)
	StrategyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "harbor_strategy_runs_total", Help: "Strategy invocations by outcome."},
		[]string{"strategy", "outcome"},
	)
	// StrategyDuration records wall time per strategy invocation
	StrategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "harbor_strategy_duration_seconds", Help: "Strategy wall time in seconds.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30}},
		[]string{"strategy"},
	)
	// PlacementRate holds the latest placement rate per strategy
	PlacementRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "harbor_strategy_placement_rate", Help: "Placement rate of the latest run per strategy."},
		[]string{"strategy"},
	)
	// OptimizeRuns counts optimization runs by status
	OptimizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "harbor_optimize_runs_total", Help: "Optimization runs by status."},
		[]string{"status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(StrategyRuns)
		Registry.MustRegister(StrategyDuration)
		Registry.MustRegister(PlacementRate)
		Registry.MustRegister(OptimizeRuns)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
