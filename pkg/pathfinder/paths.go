package pathfinder

import (
	"math"

	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
)

// Params tunes a single find_paths call; the zero value is never used
// directly — callers fill it from types.PathfinderDefaults, optionally
// overridden per call (spec §4.7, §6).
type Params struct {
	Strategy   types.PathStrategy
	MaxDepth   int
	MaxPaths   int
	Beta       float64
	OverlapTau float64
	ConfFloor  float64
}

// FromDefaults builds Params from the store's configured defaults.
func FromDefaults(d types.PathfinderDefaults) Params {
	return Params{
		Strategy:   d.Strategy,
		MaxDepth:   d.MaxDepth,
		MaxPaths:   d.MaxPaths,
		Beta:       d.Beta,
		OverlapTau: d.OverlapTau,
		ConfFloor:  d.ConfFloor,
	}
}

// Path is a concept-id sequence from start to a member of the target set,
// with its propagated confidence.
type Path struct {
	IDs        []types.ConceptID
	Confidence float64
}

// walk is the internal representation carried during search: ids plus
// the edge weight that led to each id after the first.
type walk struct {
	ids     []types.ConceptID
	weights []float32
}

func (w walk) last() types.ConceptID { return w.ids[len(w.ids)-1] }

func (w walk) visited(id types.ConceptID) bool {
	for _, existing := range w.ids {
		if existing == id {
			return true
		}
	}
	return false
}

func (w walk) extend(id types.ConceptID, weight float32) walk {
	ids := make([]types.ConceptID, len(w.ids)+1)
	copy(ids, w.ids)
	ids[len(w.ids)] = id
	weights := make([]float32, len(w.weights)+1)
	copy(weights, w.weights)
	weights[len(w.weights)] = weight
	return walk{ids: ids, weights: weights}
}

// confidence implements C(P) from spec §4.7: harmonic mean of edge
// weights with a depth penalty beta^(m-1), m = number of edges, so a
// single-edge path carries no penalty at all (harmonic mean of one edge
// equals that edge's weight). Any zero edge weight collapses confidence
// to exactly 0.
func confidence(weights []float32, beta float64) float64 {
	m := len(weights)
	if m == 0 {
		return 1
	}
	var sumInv float64
	for _, w := range weights {
		if w == 0 {
			return 0
		}
		sumInv += 1 / float64(w)
	}
	harmonic := float64(m) / sumInv
	return harmonic * math.Pow(beta, float64(m-1))
}

// FindPaths returns up to params.MaxPaths diversified paths from start to
// any id in targets, using the selected strategy.
func FindPaths(snap *snapshot.Snapshot, start types.ConceptID, targets map[types.ConceptID]bool, params Params) ([]Path, error) {
	if _, ok := snap.GetConcept(start); !ok {
		return nil, types.NewError("find_paths", types.KindNotFound, nil)
	}
	for t := range targets {
		if _, ok := snap.GetConcept(t); !ok {
			return nil, types.NewError("find_paths", types.KindNotFound, nil)
		}
	}
	if targets[start] {
		return []Path{{IDs: []types.ConceptID{start}, Confidence: 1}}, nil
	}
	if len(targets) == 0 {
		return nil, nil
	}

	var raw []walk
	switch params.Strategy {
	case types.StrategyBestFirst:
		raw = bestFirst(snap, start, targets, params)
	case types.StrategyBidirectional:
		raw = bidirectional(snap, start, targets, params)
	default:
		raw = bfs(snap, start, targets, params)
	}

	candidates := make([]Path, 0, len(raw))
	for _, w := range raw {
		c := confidence(w.weights, params.Beta)
		if c <= 0 {
			continue
		}
		candidates = append(candidates, Path{IDs: w.ids, Confidence: c})
	}

	return diversify(candidates, params), nil
}
