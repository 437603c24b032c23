package pathfinder

import (
	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
)

// maxCandidateFanout bounds how many partial walks bfs/bestFirst will
// enqueue in total, so a densely connected shard cannot make a single
// find_paths call explore an unbounded number of branches.
const maxCandidateFanout = 2000

// bfs explores shortest-hop-first, returning candidate walks that reach
// a target within params.MaxDepth hops (spec §4.7 strategy 1). It keeps
// exploring level by level, collecting every walk that reaches a target,
// until either the fanout cap or max depth is hit.
func bfs(snap *snapshot.Snapshot, start types.ConceptID, targets map[types.ConceptID]bool, params Params) []walk {
	frontier := []walk{{ids: []types.ConceptID{start}}}
	var found []walk
	explored := 0

	for depth := 0; depth < params.MaxDepth && explored < maxCandidateFanout; depth++ {
		var next []walk
		for _, w := range frontier {
			if len(found) >= params.MaxPaths*4 {
				return found
			}
			neighbors, ok := snap.GetNeighbors(w.last())
			if !ok {
				continue
			}
			for _, nb := range neighbors {
				if w.visited(nb.ID) {
					continue
				}
				explored++
				candidate := w.extend(nb.ID, nb.Weight)
				if confidence(candidate.weights, params.Beta) < params.ConfFloor {
					continue
				}
				if targets[nb.ID] {
					found = append(found, candidate)
				}
				next = append(next, candidate)
				if explored >= maxCandidateFanout {
					break
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return found
}
