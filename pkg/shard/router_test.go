package shard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/ann"
	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/types"
)

// fakeShard is a minimal in-memory Shard used to exercise Router's
// dispatch and 2PC wiring without pkg/memory's full stack.
type fakeShard struct {
	id uint32

	mu        sync.Mutex
	concepts  map[types.ConceptID]*types.Concept
	vectors   map[types.ConceptID][]float32
	neighbors map[types.ConceptID][]types.Neighbor
	prepared  map[types.Association]bool
}

func newFakeShard(id uint32) *fakeShard {
	return &fakeShard{
		id:        id,
		concepts:  make(map[types.ConceptID]*types.Concept),
		vectors:   make(map[types.ConceptID][]float32),
		neighbors: make(map[types.ConceptID][]types.Neighbor),
		prepared:  make(map[types.Association]bool),
	}
}

func (f *fakeShard) ID() uint32 { return f.id }

func (f *fakeShard) LearnConcept(ctx context.Context, c *types.Concept) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concepts[c.ID] = c
	return 1, nil
}

func (f *fakeShard) GetConcept(ctx context.Context, id types.ConceptID) (*types.Concept, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.concepts[id]
	return c, ok
}

func (f *fakeShard) DeleteConcept(ctx context.Context, id types.ConceptID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.concepts, id)
	return nil
}

func (f *fakeShard) SetVector(ctx context.Context, id types.ConceptID, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[id] = vec
	return nil
}

func (f *fakeShard) GetVector(ctx context.Context, id types.ConceptID) ([]float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vectors[id]
	return v, ok
}

func (f *fakeShard) GetNeighbors(ctx context.Context, id types.ConceptID) ([]types.Neighbor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.neighbors[id]
	return n, ok
}

func (f *fakeShard) CreateLocalAssociation(ctx context.Context, a types.Association) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.neighbors[a.Source] = append(f.neighbors[a.Source], types.Neighbor{ID: a.Target, Type: a.Type, Weight: a.Weight})
	return nil
}

func (f *fakeShard) PrepareAssociation(ctx context.Context, a types.Association) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.concepts[a.Source]; !ok {
		return types.NewError("prepare", types.KindNotFound, nil)
	}
	f.prepared[a] = true
	return nil
}

func (f *fakeShard) CommitAssociation(ctx context.Context, a types.Association) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.prepared[a] {
		return types.NewError("commit", types.KindInUse, nil)
	}
	delete(f.prepared, a)
	f.neighbors[a.Source] = append(f.neighbors[a.Source], types.Neighbor{ID: a.Target, Type: a.Type, Weight: a.Weight})
	return nil
}

func (f *fakeShard) AbortAssociation(ctx context.Context, a types.Association) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prepared, a)
	return nil
}

func (f *fakeShard) SemanticSearch(ctx context.Context, query []float32, k int) ([]ann.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ann.Result, 0, len(f.vectors))
	for id := range f.vectors {
		out = append(out, ann.Result{ID: id, Distance: 0.5})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *fakeShard) FindPaths(ctx context.Context, start types.ConceptID, targets map[types.ConceptID]bool, params pathfinder.Params) ([]pathfinder.Path, error) {
	return nil, nil
}

func (f *fakeShard) Stats() types.ShardStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.ShardStats{ShardID: f.id, ConceptCount: uint64(len(f.concepts))}
}

func newTestRouter(numShards int) (*Router, []*fakeShard) {
	fakes := make([]*fakeShard, numShards)
	shards := make([]Shard, numShards)
	for i := 0; i < numShards; i++ {
		fakes[i] = newFakeShard(uint32(i))
		shards[i] = fakes[i]
	}
	return NewRouter(shards, time.Second), fakes
}

func TestRouterRoutesPointOpsToOwningShard(t *testing.T) {
	r, fakes := newTestRouter(4)
	defer r.Close()

	id := types.IDFromUint64(123)
	owner := r.shardFor(id).(*fakeShard)

	_, err := r.LearnConcept(context.Background(), &types.Concept{ID: id, Content: []byte("x")})
	require.NoError(t, err)

	_, ok := owner.GetConcept(context.Background(), id)
	require.True(t, ok)

	for _, f := range fakes {
		if f.id != owner.id {
			_, ok := f.GetConcept(context.Background(), id)
			require.False(t, ok)
		}
	}
}

func TestRouterSameShardAssociationBypassesCoordinator(t *testing.T) {
	r, fakes := newTestRouter(1)
	defer r.Close()

	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)
	fakes[0].concepts[a] = &types.Concept{ID: a}
	fakes[0].concepts[b] = &types.Concept{ID: b}

	err := r.CreateAssociation(context.Background(), a, b, types.AssocSemantic, 0.8)
	require.NoError(t, err)

	neighbors, ok := fakes[0].GetNeighbors(context.Background(), a)
	require.True(t, ok)
	require.Len(t, neighbors, 1)
	require.Equal(t, b, neighbors[0].ID)
}

func findCrossShardPair(t *testing.T, r *Router) (types.ConceptID, types.ConceptID) {
	t.Helper()
	for i := uint64(0); i < 1000; i++ {
		a := types.IDFromUint64(i)
		b := types.IDFromUint64(i + 500000)
		if r.shardFor(a).ID() != r.shardFor(b).ID() {
			return a, b
		}
	}
	t.Fatal("could not find a cross-shard id pair")
	return types.ConceptID{}, types.ConceptID{}
}

func TestRouterCrossShardAssociationUses2PCAndIsSymmetric(t *testing.T) {
	r, fakes := newTestRouter(2)
	defer r.Close()

	a, b := findCrossShardPair(t, r)
	r.shardFor(a).(*fakeShard).concepts[a] = &types.Concept{ID: a}
	r.shardFor(b).(*fakeShard).concepts[b] = &types.Concept{ID: b}

	err := r.CreateAssociation(context.Background(), a, b, types.AssocSemantic, 0.7)
	require.NoError(t, err)

	aNeighbors, ok := r.GetNeighbors(context.Background(), a)
	require.True(t, ok)
	require.Len(t, aNeighbors, 1)
	require.Equal(t, b, aNeighbors[0].ID)

	bNeighbors, ok := r.GetNeighbors(context.Background(), b)
	require.True(t, ok)
	require.Len(t, bNeighbors, 1)
	require.Equal(t, a, bNeighbors[0].ID)

	_ = fakes
}

func TestRouterCrossShardAssociationAbortsWhenEndpointMissing(t *testing.T) {
	r, _ := newTestRouter(2)
	defer r.Close()

	a, b := findCrossShardPair(t, r)
	r.shardFor(a).(*fakeShard).concepts[a] = &types.Concept{ID: a}
	// b is never inserted, so the reverse participant's Prepare votes no.

	err := r.CreateAssociation(context.Background(), a, b, types.AssocSemantic, 0.7)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindTxnAborted, kind)

	aNeighbors, _ := r.GetNeighbors(context.Background(), a)
	require.Empty(t, aNeighbors)
}

func TestRouterSemanticSearchMergesAcrossShards(t *testing.T) {
	r, fakes := newTestRouter(3)
	defer r.Close()

	for i, f := range fakes {
		f.vectors[types.IDFromUint64(uint64(i))] = []float32{1, 0, 0, 0}
	}

	results, err := r.SemanticSearch(context.Background(), []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)
}

func TestLoadOrderSortsByConceptCount(t *testing.T) {
	r, fakes := newTestRouter(3)
	defer r.Close()

	fakes[0].concepts[types.IDFromUint64(1)] = &types.Concept{}
	fakes[2].concepts[types.IDFromUint64(2)] = &types.Concept{}
	fakes[2].concepts[types.IDFromUint64(3)] = &types.Concept{}

	order := r.LoadOrder()
	require.Equal(t, []uint32{1, 0, 2}, order)
}
