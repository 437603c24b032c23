package types

// Stats is the advisory snapshot returned by ConcurrentMemory.Stats,
// spec §6. It is informational only; callers must not use it to infer
// linearizable ordering.
type Stats struct {
	ConceptCount uint64
	EdgeCount    uint64
	VectorCount  uint64

	// QueueUtilization is u = Q_t / Q_max from spec §4.5.
	QueueUtilization float64
	// Health is H(t) in [0,1] from spec §4.5.
	Health float64
	// ReconcileIntervalMillis is the reconciler's current sleep interval
	// I*, in milliseconds.
	ReconcileIntervalMillis int64

	// SnapshotSeq identifies the most recently published snapshot.
	SnapshotSeq uint64

	// Hot advises backpressure per spec §5 when u > 0.9 or Health < 0.5.
	Hot bool

	ShardStats []ShardStats
}

// ShardStats breaks Stats down per shard for the shard router, spec §4.8.
type ShardStats struct {
	ShardID      uint32
	ConceptCount uint64
	EdgeCount    uint64

	// LoadRank is this shard's position in ascending concept-count order
	// (0 = least loaded), from shard.Router.LoadOrder. A rebalance or
	// capacity-warning caller reads it directly off Stats instead of
	// re-deriving shard ordering itself.
	LoadRank int
}
