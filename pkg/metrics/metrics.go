package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store-wide gauges
	ConceptsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_concepts_total",
			Help: "Total number of concepts across all shards",
		},
	)

	EdgesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_edges_total",
			Help: "Total number of associations across all shards",
		},
	)

	VectorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_vectors_total",
			Help: "Total number of vectors across all shards",
		},
	)

	// Write log / reconciler metrics
	QueueUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_queue_utilization",
			Help: "Write log utilization u = Q_t / Q_max",
		},
	)

	ReconcileIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_reconcile_interval_seconds",
			Help: "Current adaptive reconciler sleep interval I*",
		},
	)

	HealthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sutramem_health_score",
			Help: "Store health score H(t) in [0,1]",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sutramem_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// ANN index metrics
	ANNInsertDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_ann_insert_duration_seconds",
			Help:    "Time taken to insert a vector into the ANN index",
			Buckets: prometheus.DefBuckets,
		},
	)

	ANNSearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_ann_search_duration_seconds",
			Help:    "Time taken to answer a k-NN query",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Pathfinder metrics
	PathfinderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sutramem_pathfinder_duration_seconds",
			Help:    "Time taken to answer find_paths by strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	PathsFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sutramem_paths_found_total",
			Help: "Total number of paths returned by find_paths, by strategy",
		},
		[]string{"strategy"},
	)

	// Transaction coordinator metrics
	TxnOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sutramem_txn_outcomes_total",
			Help: "Total number of cross-shard transactions by outcome",
		},
		[]string{"outcome"}, // committed | aborted_timeout | aborted_refused | aborted_network
	)

	TxnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_txn_duration_seconds",
			Help:    "Time from Begin to Commit/Abort decision",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Shard router metrics
	ShardFanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_shard_fanout_duration_seconds",
			Help:    "Time to fan out a semantic_search or a cross-shard create_association across shards",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WAL metrics
	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sutramem_wal_append_duration_seconds",
			Help:    "Time taken to append and fsync a WAL entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sutramem_wal_flushes_total",
			Help: "Total number of WAL-to-segment flushes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConceptsTotal,
		EdgesTotal,
		VectorsTotal,
		QueueUtilization,
		ReconcileIntervalSeconds,
		HealthScore,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ANNInsertDuration,
		ANNSearchDuration,
		PathfinderDuration,
		PathsFoundTotal,
		TxnOutcomesTotal,
		TxnDuration,
		ShardFanoutDuration,
		WALAppendDuration,
		WALFlushesTotal,
	)
}

// Handler returns the Prometheus HTTP handler, for a host program that
// wants to expose /metrics; the core itself has no HTTP surface (§1).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// DurationSeconds returns the elapsed seconds since the timer started.
func (t *Timer) DurationSeconds() float64 {
	return time.Since(t.start).Seconds()
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
