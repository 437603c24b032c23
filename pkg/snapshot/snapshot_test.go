package snapshot

import (
	"testing"

	"github.com/cuemby/sutramem/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestWithConceptIsStructurallyShared(t *testing.T) {
	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)

	s0 := Empty()
	s1 := s0.WithConcept(&types.Concept{ID: a, Content: []byte("alpha")})
	s2 := s1.WithConcept(&types.Concept{ID: b, Content: []byte("beta")})

	// s1 must remain unchanged by the later write to s2: this is the
	// snapshot-immutability property (spec §8.5).
	require.Equal(t, 1, s1.Len())
	require.Equal(t, 2, s2.Len())

	_, ok := s1.GetConcept(b)
	require.False(t, ok)

	c, ok := s2.GetConcept(a)
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), c.Content)
}

func TestWithConceptMergesMetadataOnReinsert(t *testing.T) {
	id := types.IDFromUint64(1)
	s := Empty().WithConcept(&types.Concept{ID: id, Content: []byte("alpha"), Strength: 0.2, AccessCount: 1})
	s = s.WithConcept(&types.Concept{ID: id, Content: []byte("ignored"), Strength: 0.9, AccessCount: 2})

	c, ok := s.GetConcept(id)
	require.True(t, ok)
	require.Equal(t, []byte("alpha"), c.Content, "content must never be overwritten")
	require.Equal(t, float32(0.9), c.Strength, "strength takes the max")
	require.Equal(t, uint32(3), c.AccessCount, "access counts sum")
}

func TestWithAssociationDeduplicatesByTargetKeepingHighestWeight(t *testing.T) {
	a := types.IDFromUint64(1)
	b := types.IDFromUint64(2)

	s := Empty().WithConcept(&types.Concept{ID: a})
	s = s.WithConcept(&types.Concept{ID: b})
	s = s.WithAssociation(types.Association{Source: a, Target: b, Type: types.AssocSemantic, Weight: 0.3})
	s = s.WithAssociation(types.Association{Source: a, Target: b, Type: types.AssocCausal, Weight: 0.9})

	neighbors, ok := s.GetNeighbors(a)
	require.True(t, ok)
	require.Len(t, neighbors, 1)
	require.Equal(t, float32(0.9), neighbors[0].Weight)
	require.Equal(t, types.AssocCausal, neighbors[0].Type)
}

func TestHandleCASIsolatesReaders(t *testing.T) {
	h := NewHandle()
	id := types.IDFromUint64(1)

	reader := h.Load()
	require.Equal(t, 0, reader.Len())

	next := h.Load().WithConcept(&types.Concept{ID: id})
	require.True(t, h.CompareAndSwap(h.Load(), next))

	// The handle already moved on, but reader's view is untouched.
	require.Equal(t, 0, reader.Len())
	require.Equal(t, 1, h.Load().Len())
}
