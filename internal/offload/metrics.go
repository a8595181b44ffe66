package offload

import "github.com/prometheus/client_golang/prometheus"

var transfersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tensord",
		Subsystem: "offload",
		Name:      "transfers_total",
		Help:      "Artifact transfers by role and outcome",
	},
	[]string{"role", "result"},
)

func init() {
	prometheus.MustRegister(transfersTotal)
}
