/*
Package shard implements the Shard Router from SPEC_FULL.md §4.8: a
deterministic hash partitions concepts across S independent store
instances, point operations route to a single shard, create_association
takes the 2PC path (pkg/txn) when source and target land on different
shards, semantic_search fans out across shards and merges, and
find_paths runs on the shard that owns the start concept.
*/
package shard
