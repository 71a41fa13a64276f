package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stackforge",
		Subsystem: "engine",
		Name:      "applies_total",
		Help:      "Apply runs by result.",
	}, []string{"result"})

	resourcesProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stackforge",
		Subsystem: "engine",
		Name:      "resources_provisioned_total",
		Help:      "Resources created or replaced, by kind.",
	}, []string{"kind"})

	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stackforge",
		Subsystem: "engine",
		Name:      "step_duration_seconds",
		Help:      "Duration of individual apply steps, by kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
