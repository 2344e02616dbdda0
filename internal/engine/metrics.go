package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "confcentral_engine_operations_total",
		Help: "Engine operations by operation name and outcome reason",
	},
	[]string{"op", "reason"},
)
