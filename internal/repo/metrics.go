package repo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("weft.repo")

var (
	transactionsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_transactions_committed_total",
		Help: "Transactions committed, by operation type",
	}, []string{"type"})

	commitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weft_transaction_commit_retries_total",
		Help: "Head swaps lost to a concurrent writer and retried after a view merge",
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weft_transaction_commit_duration_seconds",
		Help:    "Time to commit a transaction, including merges",
		Buckets: prometheus.DefBuckets,
	})

	indexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weft_index_commits",
		Help: "Commits in the commit graph index",
	})
)
