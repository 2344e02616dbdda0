package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxRetries counts unit-of-work re-executions caused by detected
	// write conflicts, across all store implementations.
	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "confcentral_store_tx_retries_total",
			Help: "Total number of transaction re-executions after optimistic conflicts",
		},
	)

	// TxCommits counts successfully committed transactions.
	TxCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "confcentral_store_tx_commits_total",
			Help: "Total number of committed transactions",
		},
	)
)
