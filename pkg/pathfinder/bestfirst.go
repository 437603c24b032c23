package pathfinder

import (
	"container/heap"

	"github.com/cuemby/sutramem/pkg/snapshot"
	"github.com/cuemby/sutramem/pkg/types"
)

// visitKey is the best-first dedup key: (current_id, last_3_hops). Using
// a windowed context instead of the full path lets two distinct
// approaches to the same node, arriving via different recent history,
// both stay in contention rather than one silently deduping the other
// (spec §4.7's cycle-handling note for this strategy).
type visitKey [4]types.ConceptID

func keyFor(w walk) visitKey {
	var k visitKey
	k[0] = w.last()
	for i := 0; i < 3; i++ {
		idx := len(w.ids) - 2 - i
		if idx >= 0 {
			k[i+1] = w.ids[idx]
		}
	}
	return k
}

// proximity implements h(v,t) from spec §4.7, maximized over the target
// set when more than one target is given.
func proximity(snap *snapshot.Snapshot, v types.ConceptID, targets map[types.ConceptID]bool) float64 {
	if targets[v] {
		return 1
	}
	vNeighbors, _ := snap.GetNeighbors(v)
	vSet := make(map[types.ConceptID]bool, len(vNeighbors))
	for _, n := range vNeighbors {
		vSet[n.ID] = true
	}

	best := 0.0
	for t := range targets {
		if vSet[t] {
			if 0.5 > best {
				best = 0.5
			}
			continue
		}
		tNeighbors, ok := snap.GetNeighbors(t)
		if !ok {
			continue
		}
		shared := 0
		for _, n := range tNeighbors {
			if vSet[n.ID] {
				shared++
			}
		}
		h := 0.2 * minF(1, float64(shared)/3)
		if h > best {
			best = h
		}
	}
	return best
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

type pqItem struct {
	w        walk
	priority float64
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].priority > q[j].priority }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	v := old[n-1]
	*q = old[:n-1]
	return v
}

// bestFirst implements spec §4.7 strategy 2: a priority queue keyed by
// C(P)*(1+h(v,t)).
func bestFirst(snap *snapshot.Snapshot, start types.ConceptID, targets map[types.ConceptID]bool, params Params) []walk {
	startWalk := walk{ids: []types.ConceptID{start}}
	pq := &priorityQueue{{w: startWalk, priority: 1 + proximity(snap, start, targets)}}
	heap.Init(pq)

	seen := map[visitKey]bool{keyFor(startWalk): true}
	var found []walk
	explored := 0

	for pq.Len() > 0 && explored < maxCandidateFanout && len(found) < params.MaxPaths*4 {
		item := heap.Pop(pq).(pqItem)
		w := item.w
		if len(w.ids)-1 >= params.MaxDepth {
			continue
		}
		neighbors, ok := snap.GetNeighbors(w.last())
		if !ok {
			continue
		}
		for _, nb := range neighbors {
			if w.visited(nb.ID) {
				continue
			}
			candidate := w.extend(nb.ID, nb.Weight)
			c := confidence(candidate.weights, params.Beta)
			if c < params.ConfFloor {
				continue
			}
			k := keyFor(candidate)
			if seen[k] {
				continue
			}
			seen[k] = true
			explored++

			if targets[nb.ID] {
				found = append(found, candidate)
			}
			priority := c * (1 + proximity(snap, nb.ID, targets))
			heap.Push(pq, pqItem{w: candidate, priority: priority})
		}
	}
	return found
}
