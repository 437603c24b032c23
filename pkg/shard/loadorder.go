package shard

import "github.com/google/btree"

// loadEntry orders shards by concept count, ties broken by id, so two
// shards carrying the same count still compare deterministically inside
// the tree.
type loadEntry struct {
	shardID      uint32
	conceptCount uint64
}

func (a loadEntry) Less(than btree.Item) bool {
	b := than.(loadEntry)
	if a.conceptCount != b.conceptCount {
		return a.conceptCount < b.conceptCount
	}
	return a.shardID < b.shardID
}

// LoadOrder returns shard ids sorted from least to most loaded, used by
// callers deciding where a rebalance or capacity warning should focus
// first. Built fresh from Stats() on every call since shard load
// changes continuously; this is a diagnostic view, not a routing table.
func (r *Router) LoadOrder() []uint32 {
	tree := btree.New(8)
	for _, s := range r.Stats() {
		tree.ReplaceOrInsert(loadEntry{shardID: s.ShardID, conceptCount: s.ConceptCount})
	}
	ordered := make([]uint32, 0, tree.Len())
	tree.Ascend(func(item btree.Item) bool {
		ordered = append(ordered, item.(loadEntry).shardID)
		return true
	})
	return ordered
}
