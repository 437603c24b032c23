/*
Package snapshot implements the structurally-shared, immutable read view
described in SPEC_FULL.md §4.3: a persistent hash map from concept id to
node record, addressed through an atomic pointer so readers pick up the
latest view with a single atomic load. Building a new Snapshot from an
old one plus a batch of writes is O(log N) via benbjohnson/immutable's
hash array mapped trie, not a full copy.
*/
package snapshot
