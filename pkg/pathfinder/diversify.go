package pathfinder

import "github.com/cuemby/sutramem/pkg/types"

// edgeSet returns the set of (source,target) hops a path traverses, used
// as the basis for Jaccard overlap between two candidate paths.
type edge struct {
	from, to types.ConceptID
}

func edgeSet(p Path) map[edge]bool {
	set := make(map[edge]bool, len(p.IDs)-1)
	for i := 0; i+1 < len(p.IDs); i++ {
		set[edge{p.IDs[i], p.IDs[i+1]}] = true
	}
	return set
}

func jaccard(a, b map[edge]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for e := range a {
		if b[e] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// diversify implements spec §4.7's final selection step: sort candidates
// by descending confidence and greedily keep a path only if its
// Jaccard-of-edges overlap with every already-kept path is at or below
// params.OverlapTau, until params.MaxPaths are kept or candidates run
// out.
func diversify(candidates []Path, params Params) []Path {
	sorted := make([]Path, len(candidates))
	copy(sorted, candidates)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Confidence > sorted[j-1].Confidence; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var kept []Path
	var keptEdges []map[edge]bool
	for _, p := range sorted {
		if len(kept) >= params.MaxPaths {
			break
		}
		es := edgeSet(p)
		tooSimilar := false
		for _, k := range keptEdges {
			if jaccard(es, k) > params.OverlapTau {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			continue
		}
		kept = append(kept, p)
		keptEdges = append(keptEdges, es)
	}
	return kept
}
