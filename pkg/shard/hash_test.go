package shard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/types"
)

func TestOfSingleShardAlwaysZero(t *testing.T) {
	for i := uint64(0); i < 100; i++ {
		require.Equal(t, uint32(0), Of(types.IDFromUint64(i), 1))
	}
}

func TestOfIsDeterministic(t *testing.T) {
	id := types.IDFromUint64(42)
	require.Equal(t, Of(id, 16), Of(id, 16))
}

// TestOfLoadBalance checks spec §4.8's property 3: for N random ids and
// S shards, ||C_i| - N/S| <= 5*sqrt(N/S) with overwhelming probability.
func TestOfLoadBalance(t *testing.T) {
	const n = 100_000
	const s = 16
	counts := make([]int, s)
	for i := uint64(0); i < n; i++ {
		counts[Of(types.IDFromUint64(i*2654435761+1), s)]++
	}

	expected := float64(n) / float64(s)
	bound := 5 * math.Sqrt(expected)
	for shardID, c := range counts {
		diff := math.Abs(float64(c) - expected)
		require.LessOrEqualf(t, diff, bound, "shard %d: count=%d expected=%.0f bound=%.0f", shardID, c, expected, bound)
	}
}
