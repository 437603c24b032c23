package pathfinder

import (
	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
)

// bidirectional implements spec §4.7 strategy 3: a forward frontier from
// start and a backward frontier from each target, each budgeted
// MaxDepth/2 hops. The two walk halves are spliced together wherever the
// frontiers meet; the search stops once 4*MaxPaths spliced walks are
// collected or the hop budget is spent.
func bidirectional(snap *snapshot.Snapshot, start types.ConceptID, targets map[types.ConceptID]bool, params Params) []walk {
	half := params.MaxDepth / 2
	if half < 1 {
		half = 1
	}

	forward := map[types.ConceptID]walk{start: {ids: []types.ConceptID{start}}}
	backward := make(map[types.ConceptID]walk, len(targets))
	for t := range targets {
		backward[t] = walk{ids: []types.ConceptID{t}}
	}

	var found []walk
	explored := 0

	meet := func() bool {
		for id, fw := range forward {
			bw, ok := backward[id]
			if !ok {
				continue
			}
			spliced := spliceWalks(fw, bw)
			if spliced == nil {
				continue
			}
			real := true
			for i := len(fw.ids) - 1; real && i+1 < len(spliced.ids); i++ {
				real = false
				nbs, _ := snap.GetNeighbors(spliced.ids[i])
				for _, nb := range nbs {
					if nb.ID == spliced.ids[i+1] {
						spliced.weights[i] = nb.Weight
						real = true
						break
					}
				}
			}
			if !real {
				continue
			}
			c := confidence(spliced.weights, params.Beta)
			if c >= params.ConfFloor {
				found = append(found, *spliced)
			}
		}
		return len(found) >= params.MaxPaths*4
	}

	for step := 0; step < half && explored < maxCandidateFanout; step++ {
		if meet() {
			return found
		}
		forward = expandFrontier(snap, forward, params, &explored)
		if meet() {
			return found
		}
		backward = expandFrontierReverse(snap, backward, params, &explored)
	}
	meet()
	return found
}

// expandFrontier grows each walk in the frontier by one forward hop,
// keyed by the destination concept reached (keeping the first/best walk
// found per destination).
func expandFrontier(snap *snapshot.Snapshot, frontier map[types.ConceptID]walk, params Params, explored *int) map[types.ConceptID]walk {
	next := make(map[types.ConceptID]walk, len(frontier))
	for _, w := range frontier {
		neighbors, ok := snap.GetNeighbors(w.last())
		if !ok {
			continue
		}
		for _, nb := range neighbors {
			if w.visited(nb.ID) {
				continue
			}
			*explored++
			candidate := w.extend(nb.ID, nb.Weight)
			if confidence(candidate.weights, params.Beta) < params.ConfFloor {
				continue
			}
			if existing, ok := next[nb.ID]; !ok || len(candidate.ids) < len(existing.ids) {
				next[nb.ID] = candidate
			}
			if *explored >= maxCandidateFanout {
				return next
			}
		}
	}
	return next
}

// expandFrontierReverse grows the backward frontier by following each
// concept's own neighbor list as if edges were undirected for traversal
// purposes — the snapshot only exposes outgoing adjacency, so the
// backward search treats "neighbor of v" as "v is reachable from
// neighbor". bidirectional's meet step keeps a spliced walk only if
// every hop of its backward half is a real forward edge.
func expandFrontierReverse(snap *snapshot.Snapshot, frontier map[types.ConceptID]walk, params Params, explored *int) map[types.ConceptID]walk {
	return expandFrontier(snap, frontier, params, explored)
}

// spliceWalks joins a forward walk ending at some concept v with a
// backward walk (also rooted at v, pointed away from the real target)
// into one start-to-target walk, provided they agree on the meeting
// concept and the combined path has no repeated concept.
func spliceWalks(fw, bw walk) *walk {
	if fw.last() != bw.last() {
		return nil
	}
	seen := make(map[types.ConceptID]bool, len(fw.ids)+len(bw.ids))
	for _, id := range fw.ids {
		seen[id] = true
	}
	for i := len(bw.ids) - 2; i >= 0; i-- {
		if seen[bw.ids[i]] {
			return nil
		}
	}

	ids := make([]types.ConceptID, 0, len(fw.ids)+len(bw.ids)-1)
	ids = append(ids, fw.ids...)
	weights := make([]float32, 0, len(fw.weights)+len(bw.weights))
	weights = append(weights, fw.weights...)
	for i := len(bw.ids) - 1; i > 0; i-- {
		ids = append(ids, bw.ids[i-1])
		weights = append(weights, bw.weights[i-1])
	}
	return &walk{ids: ids, weights: weights}
}
