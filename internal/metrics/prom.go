package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Controller collectors, partitioned by optimizer identity.

var (
	SolveLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nmpc",
		Subsystem: "solver",
		Name:      "solve_duration_seconds",
		Help:      "Round-trip duration of optimizer solve requests",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"optimizer"})

	SolveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nmpc",
		Subsystem: "solver",
		Name:      "failures_total",
		Help:      "Total controller updates whose solve failed",
	}, []string{"optimizer"})

	ControllerUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nmpc",
		Subsystem: "loop",
		Name:      "updates_total",
		Help:      "Total controller updates attempted",
	}, []string{"optimizer"})

	LoopMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nmpc",
		Subsystem: "loop",
		Name:      "mode",
		Help:      "Current loop mode (0 initializing, 1 running, 2 degraded, 3 finished)",
	}, []string{"optimizer"})

	PositionError = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nmpc",
		Subsystem: "loop",
		Name:      "position_error_meters",
		Help:      "Planar distance between plant and reference at the last update",
	}, []string{"optimizer"})
)
