/*
Package memory implements Concurrent Memory, the public API from
SPEC_FULL.md §6. Store wires together storage, wal, snapshot, writelog,
ann, reconciler, pathfinder, shard, txn, aggregator, events, metrics, and
log into the single embedded entry point collaborators open and call:
open_store, learn_concept, get_concept, delete_concept, set_vector,
get_vector, create_association, get_neighbors, semantic_search,
find_paths, aggregate_paths, flush_pending, and stats.

Each shard is an independent instance of §4.1-4.7 (a shardInstance,
implementing shard.Shard); Store holds a shard.Router over them and
routes every operation through it, including when num_shards == 1.
*/
package memory
