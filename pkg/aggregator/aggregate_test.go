package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/sutramem/pkg/types"
)

func TestAggregateEmptyReturnsFalse(t *testing.T) {
	_, ok := Aggregate(nil)
	require.False(t, ok)
}

func TestAggregateSingleAnswerWinsTrivially(t *testing.T) {
	c, ok := Aggregate([]AnswerPath{
		{Answer: []byte("Paris"), Confidence: 0.9, EdgeTypes: []types.AssocType{types.AssocSemantic}},
	})
	require.True(t, ok)
	require.Equal(t, []byte("Paris"), c.Answer)
	require.Equal(t, 1.0, c.Confidence)
}

func TestAggregateMajorityClusterWins(t *testing.T) {
	paths := []AnswerPath{
		{Answer: []byte("The capital is Paris."), Confidence: 0.8, EdgeTypes: []types.AssocType{types.AssocSemantic}},
		{Answer: []byte("the capital is paris"), Confidence: 0.75, EdgeTypes: []types.AssocType{types.AssocCausal}},
		{Answer: []byte("THE CAPITAL IS PARIS!!"), Confidence: 0.7, EdgeTypes: []types.AssocType{types.AssocSemantic, types.AssocTemporal}},
		{Answer: []byte("Lyon"), Confidence: 0.95, EdgeTypes: []types.AssocType{types.AssocHierarchical}},
	}

	c, ok := Aggregate(paths)
	require.True(t, ok)
	require.Contains(t, string(c.Answer), "aris")
	require.InDelta(t, 0.75, c.Confidence, 1e-9) // 3 of 4 answers agree
}

func TestAggregateSingleMemberClusterPenalizedWhenOthersCompete(t *testing.T) {
	paths := []AnswerPath{
		{Answer: []byte("alpha"), Confidence: 0.6},
		{Answer: []byte("beta"), Confidence: 0.6},
	}
	c, ok := Aggregate(paths)
	require.True(t, ok)
	// Two singleton clusters of equal confidence and support tie on
	// weight; whichever Aggregate names winner must still carry
	// sigma=0.5 (1 of 2).
	require.InDelta(t, 0.5, c.Confidence, 1e-9)
}

func TestEdgeSequenceKeyDistinguishesSequences(t *testing.T) {
	a := edgeSequenceKey([]types.AssocType{types.AssocSemantic, types.AssocCausal})
	b := edgeSequenceKey([]types.AssocType{types.AssocCausal, types.AssocSemantic})
	require.NotEqual(t, a, b)
}

func TestNormalizeCollapsesPunctuationAndWhitespace(t *testing.T) {
	require.Equal(t, "the capital is paris", normalize([]byte("The  capital, is... Paris!")))
}

func TestJaccardWordsIdenticalSetsIsOne(t *testing.T) {
	a := wordSet("paris is the capital")
	b := wordSet("paris is the capital")
	require.Equal(t, 1.0, jaccardWords(a, b))
}
