/*
Package ann implements the HNSW-style approximate nearest neighbor index
from SPEC_FULL.md §4.6: a hierarchical proximity graph over L2-normalized
vectors, searched by cosine distance. Insertions happen only from the
reconciler task; concurrent access is one writer OR many readers via an
RWMutex, matching the component's "owned exclusively" ownership rule
(spec §3).

Persistence splits across two files: storage.usearch holds the graph
itself (vectors, per-layer adjacency, entry point) in a custom binary
layout; storage.hnsw.meta is a go.etcd.io/bbolt database mapping the
index's internal 0..N-1 integer ids to the 16-byte concept ids the rest
of the store uses, so the graph never has to store full ids at every
edge.
*/
package ann
