package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tasksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "confcentral_notifier_tasks_processed_total",
		Help: "Notifier tasks completed, by job name",
	},
	[]string{"name"},
)
