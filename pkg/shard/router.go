package shard

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/txn"
	"github.com/cuemby/sutramem/pkg/types"
)

// Shard is one independent instance of §4.1-4.7, owning a disjoint slice
// of concepts keyed by Of(id, numShards). pkg/memory implements this
// per physical shard directory; pkg/shard only routes to it.
type Shard interface {
	ID() uint32
	LearnConcept(ctx context.Context, c *types.Concept) (uint64, error)
	GetConcept(ctx context.Context, id types.ConceptID) (*types.Concept, bool)
	DeleteConcept(ctx context.Context, id types.ConceptID) error
	SetVector(ctx context.Context, id types.ConceptID, vec []float32) error
	GetVector(ctx context.Context, id types.ConceptID) ([]float32, bool)
	GetNeighbors(ctx context.Context, id types.ConceptID) ([]types.Neighbor, bool)

	// CreateLocalAssociation is the same-shard fast path (spec §4.8's
	// "same-shard edges bypass 2PC entirely").
	CreateLocalAssociation(ctx context.Context, a types.Association) error

	// PrepareAssociation/CommitAssociation/AbortAssociation implement
	// this shard's half of the 2PC protocol (spec §4.9) when it is
	// acting as a txn.Participant for a cross-shard edge.
	PrepareAssociation(ctx context.Context, a types.Association) error
	CommitAssociation(ctx context.Context, a types.Association) error
	AbortAssociation(ctx context.Context, a types.Association) error

	SemanticSearch(ctx context.Context, query []float32, k int) ([]ann.Result, error)
	FindPaths(ctx context.Context, start types.ConceptID, targets map[types.ConceptID]bool, params pathfinder.Params) ([]pathfinder.Path, error)
	Stats() types.ShardStats
}

// Router fans the logical store out across S independent shards, spec
// §4.8.
type Router struct {
	shards      []Shard
	coordinator *txn.Coordinator
	logger      zerolog.Logger
}

// NewRouter builds a Router over shards, indexed by their position
// (shards[i].ID() must equal i), driving cross-shard edges through a
// Coordinator with the given txn timeout.
func NewRouter(shards []Shard, txnTimeout time.Duration) *Router {
	r := &Router{
		shards:      shards,
		coordinator: txn.NewCoordinator(txnTimeout),
		logger:      log.WithComponent("shard_router"),
	}
	r.coordinator.Start()
	return r
}

// Close stops the router's transaction coordinator sweep.
func (r *Router) Close() {
	r.coordinator.Stop()
}

// NumShards reports S.
func (r *Router) NumShards() uint32 { return uint32(len(r.shards)) }

func (r *Router) shardFor(id types.ConceptID) Shard {
	return r.shards[Of(id, r.NumShards())]
}

func (r *Router) LearnConcept(ctx context.Context, c *types.Concept) (uint64, error) {
	return r.shardFor(c.ID).LearnConcept(ctx, c)
}

func (r *Router) GetConcept(ctx context.Context, id types.ConceptID) (*types.Concept, bool) {
	return r.shardFor(id).GetConcept(ctx, id)
}

func (r *Router) DeleteConcept(ctx context.Context, id types.ConceptID) error {
	return r.shardFor(id).DeleteConcept(ctx, id)
}

func (r *Router) SetVector(ctx context.Context, id types.ConceptID, vec []float32) error {
	return r.shardFor(id).SetVector(ctx, id, vec)
}

func (r *Router) GetVector(ctx context.Context, id types.ConceptID) ([]float32, bool) {
	return r.shardFor(id).GetVector(ctx, id)
}

func (r *Router) GetNeighbors(ctx context.Context, id types.ConceptID) ([]types.Neighbor, bool) {
	return r.shardFor(id).GetNeighbors(ctx, id)
}

// CreateAssociation takes the same-shard fast path when source and
// target hash to the same shard, otherwise drives 2PC across both
// owning shards (spec §4.8-§4.9).
func (r *Router) CreateAssociation(ctx context.Context, source, target types.ConceptID, typ types.AssocType, weight float32) error {
	sourceShard := r.shardFor(source)
	targetShard := r.shardFor(target)

	if sourceShard.ID() == targetShard.ID() {
		return sourceShard.CreateLocalAssociation(ctx, types.Association{
			Source: source, Target: target, Type: typ, Weight: weight,
		})
	}

	start := time.Now()
	defer func() { metrics.ShardFanoutDuration.Observe(time.Since(start).Seconds()) }()

	op := txn.EdgeOp{Source: source, Target: target, Type: typ, Weight: weight}
	forward := &participant{shard: sourceShard, reversed: false}
	reverse := &participant{shard: targetShard, reversed: true}
	return r.coordinator.Execute(ctx, op, forward, reverse)
}

// SemanticSearch fans out to every shard with a per-shard budget of
// ceil(k/S), floored at 10, then merges the results by ascending
// distance (spec §4.8).
func (r *Router) SemanticSearch(ctx context.Context, query []float32, k int, ef int) ([]ann.Result, error) {
	start := time.Now()
	defer func() { metrics.ShardFanoutDuration.Observe(time.Since(start).Seconds()) }()

	perShardK := int(math.Ceil(float64(k) / float64(len(r.shards))))
	if perShardK < 10 {
		perShardK = 10
	}

	results := make([][]ann.Result, len(r.shards))
	errs := make([]error, len(r.shards))
	var wg sync.WaitGroup
	for i, s := range r.shards {
		wg.Add(1)
		go func(i int, s Shard) {
			defer wg.Done()
			res, err := s.SemanticSearch(ctx, query, perShardK)
			results[i] = res
			errs[i] = err
		}(i, s)
	}
	wg.Wait()

	var merged []ann.Result
	for i, err := range errs {
		if err != nil {
			r.logger.Warn().Uint32("shard_id", r.shards[i].ID()).Err(err).Msg("semantic_search shard fanout failed")
			continue
		}
		merged = append(merged, results[i]...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// FindPaths executes on the shard owning start, per spec §4.8. Hops that
// cross a shard boundary still resolve their neighbor ids (they are
// fully routable globally), but this router does not yet stitch a
// path across more than one shard's local traversal — a documented
// simplification (see DESIGN.md).
func (r *Router) FindPaths(ctx context.Context, start types.ConceptID, targets map[types.ConceptID]bool, params pathfinder.Params) ([]pathfinder.Path, error) {
	return r.shardFor(start).FindPaths(ctx, start, targets, params)
}

// Stats returns one types.ShardStats per shard, ordered by shard id.
func (r *Router) Stats() []types.ShardStats {
	out := make([]types.ShardStats, len(r.shards))
	for i, s := range r.shards {
		out[i] = s.Stats()
	}
	return out
}
