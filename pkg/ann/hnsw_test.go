package ann

import (
	"math"
	"testing"

	"github.com/cuemby/sutramem/pkg/types"
	"github.com/stretchr/testify/require"
)

func unit(components ...float32) []float32 {
	var norm float32
	for _, c := range components {
		norm += c * c
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(components))
	for i, c := range components {
		out[i] = c / norm
	}
	return out
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	idx := New(4, DefaultParams())
	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)
	c := types.IDFromUint64(3)

	require.NoError(t, idx.Insert(a, unit(1, 0, 0, 0)))
	require.NoError(t, idx.Insert(b, unit(0, 1, 0, 0)))
	require.NoError(t, idx.Insert(c, unit(0, 0, 1, 0)))

	results, err := idx.Search(unit(1, 0, 0, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, a, results[0].ID)
	require.InDelta(t, 0, results[0].Distance, 1e-5)
}

func TestSearchOrdersByIncreasingDistance(t *testing.T) {
	idx := New(2, DefaultParams())
	origin := types.IDFromUint64(1)
	near := types.IDFromUint64(2)
	far := types.IDFromUint64(3)

	require.NoError(t, idx.Insert(origin, unit(1, 0)))
	require.NoError(t, idx.Insert(near, unit(0.9, 0.1)))
	require.NoError(t, idx.Insert(far, unit(0, 1)))

	results, err := idx.Search(unit(1, 0), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(4, DefaultParams())
	err := idx.Insert(types.IDFromUint64(1), []float32{1, 0})
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindDimensionMismatch, kind)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := New(3, DefaultParams())
	ids := make([]types.ConceptID, 20)
	for i := 0; i < 20; i++ {
		id := types.IDFromUint64(uint64(i + 1))
		ids[i] = id
		require.NoError(t, idx.Insert(id, unit(float32(i%3+1), float32((i+1)%3+1), float32((i+2)%3+1))))
	}
	require.NoError(t, idx.Save(dir))
	require.False(t, idx.Dirty())

	loaded, err := Load(dir, 3)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), loaded.Len())

	results, err := loaded.Search(unit(1, 2, 3), 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
}

func TestLoadRejectsDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := New(4, DefaultParams())
	require.NoError(t, idx.Insert(types.IDFromUint64(1), unit(1, 0, 0, 0)))
	require.NoError(t, idx.Save(dir))

	_, err := Load(dir, 8)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindDimensionMismatch, kind)
}
