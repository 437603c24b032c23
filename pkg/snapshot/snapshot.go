package snapshot

import (
	"hash/fnv"

	"github.com/benbjohnson/immutable"

	"github.com/cuemby/sutramem/pkg/types"
)

// Node is a single entry in a Snapshot: a concept plus its adjacency list,
// co-located so traversal never chases a separate pointer for edges
// (spec §3 "Ownership").
type Node struct {
	Concept   *types.Concept
	Neighbors []types.Neighbor // deduplicated by target id, highest weight wins
}

// idHasher implements immutable.Hasher[types.ConceptID] over the raw 16
// id bytes with FNV-1a, since ConceptID has no default hasher in the
// library for array-typed keys.
type idHasher struct{}

func (idHasher) Hash(key types.ConceptID) uint32 {
	h := fnv.New32a()
	h.Write(key[:])
	return h.Sum32()
}

func (idHasher) Equal(a, b types.ConceptID) bool { return a == b }

// Snapshot is a structurally-shared, immutable view of every concept and
// its adjacency list. Producing a new Snapshot via With* below does not
// copy unrelated entries: only the O(log N) trie path to each changed key
// is rebuilt (spec §4.3).
type Snapshot struct {
	Seq   uint64
	nodes *immutable.Map[types.ConceptID, *Node]
}

// Empty returns the zero-concept snapshot at sequence 0.
func Empty() *Snapshot {
	return &Snapshot{nodes: immutable.NewMap[types.ConceptID, *Node](idHasher{})}
}

// Len reports the number of concepts visible in s.
func (s *Snapshot) Len() int {
	if s == nil || s.nodes == nil {
		return 0
	}
	return s.nodes.Len()
}

// GetConcept returns the concept for id, if visible in s.
func (s *Snapshot) GetConcept(id types.ConceptID) (*types.Concept, bool) {
	if s == nil || s.nodes == nil {
		return nil, false
	}
	n, ok := s.nodes.Get(id)
	if !ok {
		return nil, false
	}
	return n.Concept, true
}

// GetNeighbors returns id's adjacency list, if id is visible in s.
func (s *Snapshot) GetNeighbors(id types.ConceptID) ([]types.Neighbor, bool) {
	if s == nil || s.nodes == nil {
		return nil, false
	}
	n, ok := s.nodes.Get(id)
	if !ok {
		return nil, false
	}
	return n.Neighbors, true
}

// Each calls fn for every node in s, in trie iteration order (not
// insertion order). Used by the reconciler to feed new/replaced vectors
// to the ANN index and by segment flush.
func (s *Snapshot) Each(fn func(*Node)) {
	if s == nil || s.nodes == nil {
		return
	}
	itr := s.nodes.Iterator()
	for !itr.Done() {
		_, n, ok := itr.Next()
		if !ok {
			continue
		}
		fn(n)
	}
}

// WithConcept returns a new Snapshot with id's concept set to c, merging
// metadata into any existing concept per spec §3's idempotent-insert rule.
// The neighbor list is preserved from the prior node, if any.
func (s *Snapshot) WithConcept(c *types.Concept) *Snapshot {
	base := s
	if base == nil {
		base = Empty()
	}
	existing, had := base.nodes.Get(c.ID)
	var next *Node
	if had {
		merged := existing.Concept.Clone()
		types.MergeMetadata(merged, c)
		if len(c.Vector) > 0 {
			merged.Vector = append([]float32(nil), c.Vector...)
		}
		next = &Node{Concept: merged, Neighbors: existing.Neighbors}
	} else {
		next = &Node{Concept: c.Clone()}
	}
	return &Snapshot{Seq: base.Seq, nodes: base.nodes.Set(c.ID, next)}
}

// WithAssociation returns a new Snapshot with a (source -> target) edge
// added to source's adjacency list, deduplicated by target id keeping the
// higher weight (spec §3's "readers see the highest-weight edge").
func (s *Snapshot) WithAssociation(a types.Association) *Snapshot {
	base := s
	if base == nil {
		base = Empty()
	}
	existing, had := base.nodes.Get(a.Source)
	if !had {
		return base
	}
	neighbors := upsertNeighbor(existing.Neighbors, types.Neighbor{ID: a.Target, Type: a.Type, Weight: a.Weight})
	next := &Node{Concept: existing.Concept, Neighbors: neighbors}
	return &Snapshot{Seq: base.Seq, nodes: base.nodes.Set(a.Source, next)}
}

func upsertNeighbor(neighbors []types.Neighbor, n types.Neighbor) []types.Neighbor {
	for i, existing := range neighbors {
		if existing.ID == n.ID {
			if n.Weight > existing.Weight {
				copied := neighbors[:0:0]
				copied = append(copied, neighbors...)
				copied[i] = n
				return copied
			}
			return neighbors
		}
	}
	return append(neighbors[:len(neighbors):len(neighbors)], n)
}

// WithoutConcept returns a new Snapshot with id and its adjacency list
// removed. Per spec §3's delete lifecycle, edges adjacent to id from
// OTHER nodes must also be dropped in the same transition; the caller
// (pkg/reconciler) is responsible for calling WithoutNeighbor(from, id) for
// every node that has id in its adjacency list, since a Snapshot alone
// does not maintain a reverse index.
func (s *Snapshot) WithoutConcept(id types.ConceptID) *Snapshot {
	base := s
	if base == nil {
		return Empty()
	}
	return &Snapshot{Seq: base.Seq, nodes: base.nodes.Delete(id)}
}

// WithoutNeighbor returns a new Snapshot with target removed from from's
// adjacency list, if from is visible.
func (s *Snapshot) WithoutNeighbor(from, target types.ConceptID) *Snapshot {
	base := s
	if base == nil {
		return Empty()
	}
	existing, had := base.nodes.Get(from)
	if !had {
		return base
	}
	filtered := existing.Neighbors[:0:0]
	for _, n := range existing.Neighbors {
		if n.ID != target {
			filtered = append(filtered, n)
		}
	}
	next := &Node{Concept: existing.Concept, Neighbors: filtered}
	return &Snapshot{Seq: base.Seq, nodes: base.nodes.Set(from, next)}
}

// WithSeq returns a copy of s with Seq set to seq, used by the reconciler
// when installing a newly built snapshot.
func (s *Snapshot) WithSeq(seq uint64) *Snapshot {
	if s == nil {
		return &Snapshot{Seq: seq, nodes: Empty().nodes}
	}
	return &Snapshot{Seq: seq, nodes: s.nodes}
}
