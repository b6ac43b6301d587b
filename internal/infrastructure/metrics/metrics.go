package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for settlement progress and evidence quality
var (
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_transitions_total",
			Help: "Total number of settlement status transitions",
		},
		[]string{"from", "to"},
	)

	EvidenceRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_evidence_rejected_total",
			Help: "Total number of evidence events that failed a transition guard",
		},
		[]string{"step"},
	)

	UnderpaymentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_underpayments_total",
			Help: "Total number of investments flagged for underpayment review",
		},
	)

	StatusConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_status_conflicts_total",
			Help: "Total number of compare-and-swap status conflicts detected",
		},
	)

	BalanceCacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_cache_reads_total",
			Help: "Total number of balance cache reads",
		},
		[]string{"outcome"},
	)

	ChainLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_lookup_duration_seconds",
			Help:    "Duration of chain gateway lookups",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(EvidenceRejectedTotal)
	prometheus.MustRegister(UnderpaymentsTotal)
	prometheus.MustRegister(StatusConflictsTotal)
	prometheus.MustRegister(BalanceCacheReadsTotal)
	prometheus.MustRegister(ChainLookupDuration)
}
