/*
Package txn implements the two-phase commit coordinator from
SPEC_FULL.md §4.9: cross-shard edge creation is prepared on both
participant shards, committed only if both vote yes, and aborted if the
prepare phase outlives its timeout. It also provides the
node-level lock ordering (lesser id first) that both the coordinator's
participants and a shard's same-shard fast path use to avoid deadlock
when an operation touches two concepts at once.
*/
package txn
