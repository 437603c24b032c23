/*
Package wal implements the write-ahead log described in SPEC_FULL.md §4.2:
an append-only, two-phase-committed sequence of operations durable before
a write is acknowledged. It is built on hashicorp/raft's LogStore
interface and raft-boltdb's BoltStore, reusing their durable, sequential,
crash-safe append log without running raft's consensus, leadership, or
replication — there is exactly one writer process and no cluster (spec's
"no distributed consensus" Non-goal). The manifest sidecar tracks which
sequence a segment flush has already covered, so replay on open starts
strictly after it.
*/
package wal
