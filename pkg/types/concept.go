package types

import "time"

// Concept is an addressable node carrying text plus optional embedding
// and activation metadata. See spec §3.
type Concept struct {
	ID         ConceptID
	Content    []byte
	Strength   float32 // s in [0,1]
	Confidence float32 // rho in [0,1]

	// AccessCount and LastAccessed are bumped by reads; the bump may be
	// batched by the reconciler rather than applied synchronously.
	AccessCount  uint32
	CreatedAt    time.Time
	LastAccessed time.Time

	// Vector is nil when the concept has no embedding.
	Vector []float32
}

// Clone returns a deep copy safe to hand to a caller without aliasing
// snapshot-owned memory.
func (c *Concept) Clone() *Concept {
	if c == nil {
		return nil
	}
	out := *c
	if c.Content != nil {
		out.Content = append([]byte(nil), c.Content...)
	}
	if c.Vector != nil {
		out.Vector = append([]float32(nil), c.Vector...)
	}
	return &out
}

// MergeMetadata implements the idempotent-insert merge rule from spec §3:
// content is never overwritten, strength/confidence take the max, and
// access counts sum.
func MergeMetadata(existing, incoming *Concept) {
	if incoming.Strength > existing.Strength {
		existing.Strength = incoming.Strength
	}
	if incoming.Confidence > existing.Confidence {
		existing.Confidence = incoming.Confidence
	}
	existing.AccessCount += incoming.AccessCount
}
