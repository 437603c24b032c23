package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/pathfinder"
	"github.com/cuemby/sutramem/pkg/types"
)

func testConfig(t *testing.T) types.Config {
	t.Helper()
	return types.Config{
		StoragePath:     t.TempDir(),
		VectorDimension: 4,
		NumShards:       1,
		Reconciler: types.ReconcilerConfig{
			IMin:        time.Millisecond,
			IBase:       5 * time.Millisecond,
			IMax:        20 * time.Millisecond,
			QMax:        1000,
			BatchBudget: 100,
			Alpha:       0.3,
		},
	}.WithDefaults()
}

func idFor(n uint64) types.ConceptID { return types.IDFromUint64(n) }

func TestLearnConceptAndGetConceptRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	a := idFor(1)
	_, err = st.LearnConcept(ctx, a, []byte("alpha"), []float32{1, 0, 0, 0}, 0.9, 0.8)
	require.NoError(t, err)

	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	c, ok := st.GetConcept(ctx, a)
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), c.Content)
	require.InDelta(t, 0.9, c.Strength, 1e-6)

	v, ok := st.GetVector(ctx, a)
	require.True(t, ok)
	require.InDeltaSlice(t, []float64{1, 0, 0, 0}, toFloat64(v), 1e-6)
}

func TestSetVectorDimensionMismatchIsRejected(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	a := idFor(1)
	_, err = st.LearnConcept(ctx, a, []byte("alpha"), nil, 0.5, 0.5)
	require.NoError(t, err)
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	err = st.SetVector(ctx, a, []float32{1, 2, 3})
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindDimensionMismatch, kind)
}

func TestDeleteConceptRemovesAdjacentEdges(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	a, b := idFor(1), idFor(2)
	_, err = st.LearnConcept(ctx, a, []byte("alpha"), nil, 0.5, 0.5)
	require.NoError(t, err)
	_, err = st.LearnConcept(ctx, b, []byte("beta"), nil, 0.5, 0.5)
	require.NoError(t, err)
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	require.NoError(t, st.CreateAssociation(ctx, a, b, types.AssocSemantic, 0.8))
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	neighbors, ok := st.GetNeighbors(ctx, a)
	require.True(t, ok)
	require.Len(t, neighbors, 1)

	require.NoError(t, st.DeleteConcept(ctx, b))
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	neighbors, ok = st.GetNeighbors(ctx, a)
	require.True(t, ok)
	require.Empty(t, neighbors)

	_, ok = st.GetConcept(ctx, b)
	require.False(t, ok)
}

// TestFindPathsMatchesScenarioA reproduces spec's single-shard worked
// example: two concepts, one semantic edge of weight 0.8, find_paths
// should report confidence exactly 0.8 (no depth penalty on a one-edge
// path).
func TestFindPathsMatchesScenarioA(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	a, b := idFor(1), idFor(2)
	_, err = st.LearnConcept(ctx, a, []byte("alpha"), []float32{1, 0, 0, 0}, 0.5, 0.5)
	require.NoError(t, err)
	_, err = st.LearnConcept(ctx, b, []byte("beta"), []float32{0, 1, 0, 0}, 0.5, 0.5)
	require.NoError(t, err)
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CreateAssociation(ctx, a, b, types.AssocSemantic, 0.8))
	_, err = st.FlushPending(ctx)
	require.NoError(t, err)

	results, err := st.SemanticSearch(ctx, []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, a, results[0].ID)
	require.InDelta(t, 0, results[0].Distance, 1e-6)
	require.Equal(t, b, results[1].ID)
	require.InDelta(t, 1, results[1].Distance, 1e-6)

	params := pathfinder.FromDefaults(cfg.Pathfinder)
	params.Strategy = types.StrategyBFS
	paths, err := st.FindPaths(ctx, a, []types.ConceptID{b}, &params)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, []types.ConceptID{a, b}, paths[0].IDs)
	require.InDelta(t, 0.8, paths[0].Confidence, 1e-9)
}

// TestCrashRecoveryReplaysUnflushedWrites implements spec's crash
// recovery scenario: writes committed to the WAL but never flushed to a
// segment must still be visible after a reopen.
func TestCrashRecoveryReplaysUnflushedWrites(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	a := idFor(1)
	_, err = st.LearnConcept(ctx, a, []byte("alpha"), []float32{1, 0, 0, 0}, 0.5, 0.5)
	require.NoError(t, err)

	// No FlushPending: simulate a crash before any reconciliation cycle
	// had a chance to run. Close only stops the background loop; the WAL
	// record is already durable.
	require.NoError(t, st.Close())

	reopened, err := OpenStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	c, ok := reopened.GetConcept(ctx, a)
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), c.Content)

	v, ok := reopened.GetVector(ctx, a)
	require.True(t, ok)
	require.InDeltaSlice(t, []float64{1, 0, 0, 0}, toFloat64(v), 1e-6)
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReadOnly = true
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.LearnConcept(context.Background(), idFor(1), []byte("alpha"), nil, 0.5, 0.5)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindReadOnly, kind)
}

func TestEmptyStoreStats(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(cfg)
	require.NoError(t, err)
	defer st.Close()

	stats := st.Stats()
	require.Zero(t, stats.ConceptCount)
	require.False(t, stats.Hot)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
