package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// strategyRequests tracks executions by strategy and response source
	strategyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_strategy_requests_total",
			Help: "Total intercepted requests by strategy and response source",
		},
		[]string{"strategy", "source"}, // source: "network", "cache", "error"
	)

	// strategyDuration tracks execution latency by strategy
	strategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offline_strategy_duration_seconds",
			Help:    "Strategy execution duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"strategy"},
	)

	// revalidations tracks background refresh outcomes
	revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_revalidations_total",
			Help: "Total background cache refreshes by result",
		},
		[]string{"result"}, // "updated", "not_ok", "network_error"
	)

	// tasksDropped counts background tasks skipped because the tracker was full
	tasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_background_tasks_dropped_total",
			Help: "Total background tasks dropped because the tracker was saturated",
		},
	)
)
