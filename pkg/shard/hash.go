package shard

import (
	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/sutramem/pkg/types"
)

// Of computes the deterministic 64-bit hash of id used for shard
// assignment (spec §4.8). xxhash is a fixed, seedless algorithm, so
// shard(id) is stable across process restarts — unlike Go's built-in
// hash/maphash, whose seed is randomized per process and would scatter
// a reopened store's concepts across different shard directories than
// the ones they were originally written to.
func Of(id types.ConceptID, numShards uint32) uint32 {
	if numShards <= 1 {
		return 0
	}
	sum := xxhash.Sum64(id[:])
	return uint32(sum % uint64(numShards))
}
