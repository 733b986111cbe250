// Kunhua Huang 2026

package binder

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeReused   = "reused"
	outcomeResolved = "resolved"
	outcomeFailed   = "failed"
)

var (
	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_binder_resolutions_total",
			Help: "Request handlers handed out by the binder, by outcome",
		},
		[]string{"outcome"},
	)
	resolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rpc_binder_resolve_duration_seconds",
			Help:    "Duration of background resolutions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(resolutionsTotal)
	prometheus.MustRegister(resolveDuration)
}
