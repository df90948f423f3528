// File: internal/infra/metrics/jobs.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsTerminalTotal, jobRunLatencyMs, jobPromptTokens, deliveryFallbacksTotal, deliveryDropsTotal)
}

var jobsTerminalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_terminal_total",
		Help: "Jobs reaching a terminal status (completed/failed/cancelled).",
	},
	[]string{"status"},
)

var jobRunLatencyMs = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "job_run_latency_ms",
		Help:    "Job execution latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	},
)

var jobPromptTokens = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "job_prompt_tokens",
		Help:    "Prompt size distribution in tokens, counted before execution.",
		Buckets: []float64{16, 64, 256, 1024, 4096, 16384, 65536},
	},
)

var deliveryFallbacksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "delivery_fallbacks_total",
		Help: "Delivery channels that switched from push to polling.",
	},
)

var deliveryDropsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "delivery_drops_total",
		Help: "Terminal events dropped before reaching the UI, by reason (duplicate/scope).",
	},
	[]string{"reason"},
)

func IncJobTerminal(status string)       { jobsTerminalTotal.WithLabelValues(norm(status)).Inc() }
func ObserveJobRunLatency(ms float64)    { jobRunLatencyMs.Observe(ms) }
func ObserveJobPromptTokens(n float64)   { jobPromptTokens.Observe(n) }
func IncDeliveryFallback()               { deliveryFallbacksTotal.Inc() }
func IncDeliveryDrop(reason string)      { deliveryDropsTotal.WithLabelValues(norm(reason)).Inc() }
