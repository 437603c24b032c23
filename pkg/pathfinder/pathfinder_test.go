package pathfinder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
)

func concept(n uint64) *types.Concept {
	return &types.Concept{ID: types.IDFromUint64(n), Content: []byte("c")}
}

// chain builds a -w1-> b -w2-> c -w3-> d ... snapshot, returning it
// along with the ordered ids.
func chain(weights ...float32) (*snapshot.Snapshot, []types.ConceptID) {
	snap := snapshot.Empty()
	ids := make([]types.ConceptID, len(weights)+1)
	for i := range ids {
		c := concept(uint64(i + 1))
		ids[i] = c.ID
		snap = snap.WithConcept(c)
	}
	for i, w := range weights {
		snap = snap.WithAssociation(types.Association{
			Source: ids[i], Target: ids[i+1], Type: types.AssocSemantic, Weight: w,
		})
	}
	return snap, ids
}

func defaultParams() Params {
	return Params{MaxDepth: 6, MaxPaths: 5, Beta: 0.99, OverlapTau: 0.7, ConfFloor: 0.1}
}

func TestFindPathsStartEqualsTargetReturnsTrivialPath(t *testing.T) {
	snap, ids := chain(0.9)
	params := defaultParams()
	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{ids[0]: true}, params)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Equal(t, []types.ConceptID{ids[0]}, paths[0].IDs)
	require.Equal(t, 1.0, paths[0].Confidence)
}

func TestFindPathsUnknownStartIsNotFound(t *testing.T) {
	snap, ids := chain(0.9)
	params := defaultParams()
	_, err := FindPaths(snap, types.IDFromUint64(999), map[types.ConceptID]bool{ids[0]: true}, params)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNotFound, kind)
}

func TestFindPathsEmptyTargetsReturnsNil(t *testing.T) {
	snap, ids := chain(0.9)
	params := defaultParams()
	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{}, params)
	require.NoError(t, err)
	require.Nil(t, paths)
}

func TestBFSFindsDirectChain(t *testing.T) {
	snap, ids := chain(0.9, 0.8, 0.7)
	params := defaultParams()
	params.Strategy = types.StrategyBFS

	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{ids[3]: true}, params)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	require.Equal(t, ids, paths[0].IDs)
	require.Greater(t, paths[0].Confidence, 0.0)
	require.Less(t, paths[0].Confidence, 1.0)
}

func TestBFSRejectsZeroWeightEdge(t *testing.T) {
	snap, ids := chain(0.9, 0)
	params := defaultParams()
	params.ConfFloor = 0

	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{ids[2]: true}, params)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestConfidenceDecreasesWithDepth(t *testing.T) {
	shortConf := confidence([]float32{0.9}, 0.99)
	longConf := confidence([]float32{0.9, 0.9, 0.9}, 0.99)
	require.Greater(t, shortConf, longConf)
}

func TestConfidenceZeroWeightCollapsesToZero(t *testing.T) {
	require.Equal(t, 0.0, confidence([]float32{0.9, 0, 0.5}, 0.99))
}

func TestBestFirstFindsChain(t *testing.T) {
	snap, ids := chain(0.9, 0.8, 0.7, 0.6)
	params := defaultParams()
	params.Strategy = types.StrategyBestFirst

	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{ids[4]: true}, params)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	require.Equal(t, ids[4], paths[0].IDs[len(paths[0].IDs)-1])
}

func TestBidirectionalFindsChain(t *testing.T) {
	// bidirectional's backward frontier approximates reverse adjacency by
	// following each node's own (forward) neighbor list, which only holds
	// when associations were created in both directions — so this test
	// builds a chain with a companion reverse edge per hop, matching how
	// the store creates a reverse companion edge for cross-shard
	// associations (spec §4.9) to keep neighbor lookups local.
	snap, ids := chain(0.9, 0.8, 0.7, 0.6)
	weights := []float32{0.9, 0.8, 0.7, 0.6}
	for i, w := range weights {
		snap = snap.WithAssociation(types.Association{
			Source: ids[i+1], Target: ids[i], Type: types.AssocSemantic, Weight: w,
		})
	}
	params := defaultParams()
	params.Strategy = types.StrategyBidirectional

	paths, err := FindPaths(snap, ids[0], map[types.ConceptID]bool{ids[4]: true}, params)
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	require.Equal(t, ids[0], paths[0].IDs[0])
	require.Equal(t, ids[4], paths[0].IDs[len(paths[0].IDs)-1])
}

func TestDiversifyDropsOverlappingPaths(t *testing.T) {
	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)
	c := types.IDFromUint64(3)
	d := types.IDFromUint64(4)

	p1 := Path{IDs: []types.ConceptID{a, b, c}, Confidence: 0.9}
	p2 := Path{IDs: []types.ConceptID{a, b, d}, Confidence: 0.8} // shares edge a->b
	p3 := Path{IDs: []types.ConceptID{a, d}, Confidence: 0.7}    // disjoint edge set

	kept := diversify([]Path{p1, p2, p3}, Params{MaxPaths: 5, OverlapTau: 0.3})
	require.Len(t, kept, 2)
	require.Equal(t, p1.IDs, kept[0].IDs)
	require.Equal(t, p3.IDs, kept[1].IDs)
}

func TestDiversifyCapsAtMaxPaths(t *testing.T) {
	var candidates []Path
	for i := uint64(0); i < 10; i++ {
		candidates = append(candidates, Path{
			IDs:        []types.ConceptID{types.IDFromUint64(i), types.IDFromUint64(i + 100)},
			Confidence: 1.0 / float64(i+1),
		})
	}
	kept := diversify(candidates, Params{MaxPaths: 3, OverlapTau: 0.7})
	require.Len(t, kept, 3)
}
