package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempodb_transactions_total",
		Help: "Total number of indexed transactions by outcome",
	}, []string{"outcome"})

	transactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tempodb_transaction_duration_seconds",
		Help:    "Time from dequeue to notification for one transaction",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	indexedTxID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempodb_indexed_tx_id",
		Help: "Transaction id of the latest indexed transaction",
	})

	pendingSubmissions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempodb_pending_submissions",
		Help: "Reserved submissions waiting for the Run loop",
	})

	indexedEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempodb_indexed_entities",
		Help: "Number of entities present in the bitemporal index",
	})

	waitTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempodb_wait_timeouts_total",
		Help: "Total number of awaits and snapshot waits that timed out",
	}, []string{"wait"})
)

const (
	outcomeCommitted = "committed"
	outcomeAborted   = "aborted"
)
