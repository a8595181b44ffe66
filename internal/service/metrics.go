package service

import "github.com/prometheus/client_golang/prometheus"

var (
	handlesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tensord",
			Subsystem: "service",
			Name:      "handles_live",
			Help:      "Currently live service handles",
		},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "service",
			Name:      "submissions_total",
			Help:      "Request submissions by admission result",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tensord",
			Subsystem: "service",
			Name:      "queue_depth",
			Help:      "Pending batches per handle and input port",
		},
		[]string{"handle", "port"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "service",
			Name:      "events_total",
			Help:      "Events handed to the dispatcher by kind",
		},
		[]string{"kind"},
	)

	engineFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tensord",
			Subsystem: "service",
			Name:      "engine_failures_total",
			Help:      "Engine invocations that returned an error",
		},
	)
)

func init() {
	prometheus.MustRegister(handlesLive, submissionsTotal, queueDepth, eventsTotal, engineFailuresTotal)
}
