package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sutramem/pkg/aggregator"
	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/events"
	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/shard"
	"github.com/cuemby/sutramem/pkg/types"
)

// Store is Concurrent Memory, the embedded entry point from spec §6. It
// owns every shard's on-disk state and routes each operation through
// shard.Router, also when num_shards == 1.
type Store struct {
	cfg       types.Config
	instances []*shardInstance
	router    *shard.Router
	logger    zerolog.Logger
}

// OpenStore opens (creating if necessary) every shard directory under
// cfg.StoragePath, replaying each shard's WAL tail, and returns a Store
// ready to serve operations.
func OpenStore(cfg types.Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open_store: %w", err)
	}

	instances := make([]*shardInstance, cfg.NumShards)
	shards := make([]shard.Shard, cfg.NumShards)
	for i := uint32(0); i < cfg.NumShards; i++ {
		dir := shardDir(cfg.StoragePath, i, cfg.NumShards)
		inst, err := openShardInstance(dir, i, cfg)
		if err != nil {
			for j := uint32(0); j < i; j++ {
				instances[j].Close()
			}
			return nil, err
		}
		instances[i] = inst
		shards[i] = inst
	}

	router := shard.NewRouter(shards, time.Duration(cfg.TxnTimeoutSecs)*time.Second)
	return &Store{
		cfg:       cfg,
		instances: instances,
		router:    router,
		logger:    log.WithComponent("memory"),
	}, nil
}

// shardDir returns the on-disk directory for shard i, per spec §6's
// persistent state layout: with a single shard, storage.dat/wal.log/
// manifest.json live directly under storagePath; with more than one
// shard, each gets its own shard_%04d subdirectory.
func shardDir(storagePath string, i, numShards uint32) string {
	if numShards <= 1 {
		return storagePath
	}
	return filepath.Join(storagePath, fmt.Sprintf("shard_%04d", i))
}

// Close stops every shard's reconciler and event broker, persists dirty
// ANN indexes, and closes every WAL.
func (st *Store) Close() error {
	st.router.Close()
	var first error
	for _, inst := range st.instances {
		if err := inst.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LearnConcept implements spec §6's learn_concept: idempotent on an
// existing id per the merge rule in §3.
func (st *Store) LearnConcept(ctx context.Context, id types.ConceptID, content []byte, vec []float32, strength, confidence float32) (uint64, error) {
	c := &types.Concept{
		ID:         id,
		Content:    content,
		Vector:     vec,
		Strength:   strength,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}
	return st.router.LearnConcept(ctx, c)
}

func (st *Store) GetConcept(ctx context.Context, id types.ConceptID) (*types.Concept, bool) {
	return st.router.GetConcept(ctx, id)
}

func (st *Store) DeleteConcept(ctx context.Context, id types.ConceptID) error {
	return st.router.DeleteConcept(ctx, id)
}

func (st *Store) SetVector(ctx context.Context, id types.ConceptID, vec []float32) error {
	return st.router.SetVector(ctx, id, vec)
}

func (st *Store) GetVector(ctx context.Context, id types.ConceptID) ([]float32, bool) {
	return st.router.GetVector(ctx, id)
}

func (st *Store) CreateAssociation(ctx context.Context, source, target types.ConceptID, typ types.AssocType, weight float32) error {
	return st.router.CreateAssociation(ctx, source, target, typ, weight)
}

func (st *Store) GetNeighbors(ctx context.Context, id types.ConceptID) ([]types.Neighbor, bool) {
	return st.router.GetNeighbors(ctx, id)
}

// SemanticSearch fans out to every shard and merges by ascending
// distance, spec §4.8. ef is accepted for API parity with spec §6 but is
// not threaded per-query into the ANN index, which fixes its search
// width at open time from cfg.ANN.EfSearch (documented in DESIGN.md).
func (st *Store) SemanticSearch(ctx context.Context, query []float32, k, ef int) ([]ann.Result, error) {
	return st.router.SemanticSearch(ctx, query, k, ef)
}

// FindPaths implements find_paths, spec §4.7/§6. A nil params uses the
// store's configured pathfinder defaults.
func (st *Store) FindPaths(ctx context.Context, start types.ConceptID, targets []types.ConceptID, params *pathfinder.Params) ([]pathfinder.Path, error) {
	p := pathfinder.FromDefaults(st.cfg.Pathfinder)
	if params != nil {
		p = *params
	}
	targetSet := make(map[types.ConceptID]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	return st.router.FindPaths(ctx, start, targetSet, p)
}

// AggregatePaths implements aggregate_paths, spec §4.10: a pure function,
// no store state involved.
func (st *Store) AggregatePaths(paths []aggregator.AnswerPath) (aggregator.Consensus, bool) {
	return aggregator.Aggregate(paths)
}

// FlushPending implements the flush_pending barrier across every shard:
// it blocks until each shard's reconciler has drained its current write
// log, then returns the highest snapshot sequence reached.
func (st *Store) FlushPending(ctx context.Context) (uint64, error) {
	var maxSeq uint64
	for _, inst := range st.instances {
		seq, err := inst.recon.FlushPending()
		if err != nil {
			return 0, err
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}

// Subscribe registers fn to be called for every shard's snapshot-swap and
// degraded-health events, fanning in from each shard's independent event
// broker onto a single goroutine per subscription. Callers that want to
// react to newly-visible concepts without polling Stats use this instead.
// The returned func cancels the subscription and stops its goroutine.
func (st *Store) Subscribe(fn func(events.Event)) func() {
	subs := make([]events.Subscriber, len(st.instances))
	done := make(chan struct{})
	for i, inst := range st.instances {
		sub := inst.events.Subscribe()
		subs[i] = sub
		go func(sub events.Subscriber) {
			for {
				select {
				case ev, ok := <-sub:
					if !ok {
						return
					}
					fn(ev)
				case <-done:
					return
				}
			}
		}(sub)
	}
	return func() {
		close(done)
		for i, inst := range st.instances {
			inst.events.Unsubscribe(subs[i])
		}
	}
}

// Stats implements stats(), spec §6: an advisory, non-linearizable
// summary across all shards. Health and queue utilization are reported
// as the worst/highest across shards, since a single degraded shard
// should make the whole store look hot to a caller deciding whether to
// back off.
func (st *Store) Stats() types.Stats {
	out := types.Stats{
		ShardStats: make([]types.ShardStats, len(st.instances)),
		Health:     1.0,
	}
	for i, inst := range st.instances {
		ss := inst.Stats()
		out.ShardStats[i] = ss
		out.ConceptCount += ss.ConceptCount
		out.EdgeCount += ss.EdgeCount
		out.VectorCount += uint64(inst.index.Len())

		util, health, intervalMs := inst.recon.Snapshot()
		if util > out.QueueUtilization {
			out.QueueUtilization = util
		}
		if health < out.Health {
			out.Health = health
		}
		if intervalMs > out.ReconcileIntervalMillis {
			out.ReconcileIntervalMillis = intervalMs
		}
		if seq := inst.handle.Load().Seq; seq > out.SnapshotSeq {
			out.SnapshotSeq = seq
		}
	}
	out.Hot = out.QueueUtilization > 0.9 || out.Health < 0.5

	order := st.router.LoadOrder()
	rank := make(map[uint32]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	for i := range out.ShardStats {
		out.ShardStats[i].LoadRank = rank[out.ShardStats[i].ShardID]
	}

	metrics.ConceptsTotal.Set(float64(out.ConceptCount))
	metrics.EdgesTotal.Set(float64(out.EdgeCount))
	metrics.VectorsTotal.Set(float64(out.VectorCount))
	return out
}
