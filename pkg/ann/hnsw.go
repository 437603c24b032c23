package ann

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/sutramem/pkg/metrics"
	"github.com/cuemby/sutramem/pkg/types"
)

// Params are the HNSW construction/query parameters (spec §4.6 defaults).
type Params struct {
	M              int // max connections per node above layer 0
	EfConstruction int // insertion search width
	EfSearch       int // query search width
}

// DefaultParams returns the spec's documented defaults.
func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 50}
}

type node struct {
	id     types.ConceptID
	vector []float32
	// links[layer] holds the internal ids this node connects to at that
	// layer; links[0] may hold up to 2*M entries, every other layer up to M.
	links [][]int
}

// Index is a single HNSW graph over vectors of a fixed dimension.
type Index struct {
	mu     sync.RWMutex
	dim    int
	params Params
	rng    *rand.Rand
	mL     float64

	nodes      []*node
	extToInt   map[types.ConceptID]int
	entryPoint int // internal id of the current top-layer entry point, -1 if empty
	maxLayer   int
	dirty      bool
}

// New returns an empty index over vectors of dimension dim.
func New(dim int, params Params) *Index {
	return &Index{
		dim:        dim,
		params:     params,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		mL:         1 / math.Log(float64(params.M)),
		extToInt:   make(map[types.ConceptID]int),
		entryPoint: -1,
		maxLayer:   -1,
	}
}

// Len returns the number of vectors currently indexed.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}

// Dirty reports whether the index has unflushed inserts since the last
// Save (spec §4.6's dirty flag that avoids a redundant flush to disk).
func (x *Index) Dirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dirty
}

// assignLayer draws the layer for a freshly inserted node: l = floor(-ln(U) * mL).
func (x *Index) assignLayer() int {
	u := x.rng.Float64()
	for u == 0 {
		u = x.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * x.mL))
}

// Insert adds (id, v) to the graph, or replaces v in place if id is
// already indexed. v must have length dim.
func (x *Index) Insert(id types.ConceptID, v []float32) error {
	if len(v) != x.dim {
		return types.NewError("ann.Insert", types.KindDimensionMismatch, nil)
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ANNInsertDuration)

	x.mu.Lock()
	defer x.mu.Unlock()

	if internal, ok := x.extToInt[id]; ok {
		x.nodes[internal].vector = append([]float32(nil), v...)
		x.dirty = true
		return nil
	}

	internal := len(x.nodes)
	l := x.assignLayer()
	n := &node{id: id, vector: append([]float32(nil), v...), links: make([][]int, l+1)}
	x.nodes = append(x.nodes, n)
	x.extToInt[id] = internal
	x.dirty = true

	if x.entryPoint == -1 {
		x.entryPoint = internal
		x.maxLayer = l
		return nil
	}

	nearest := x.entryPoint
	for layer := x.maxLayer; layer > l; layer-- {
		nearest = x.greedyClosest(v, nearest, layer)
	}

	top := l
	if x.maxLayer < top {
		top = x.maxLayer
	}
	for layer := top; layer >= 0; layer-- {
		candidates := x.searchLayer(v, nearest, x.params.EfConstruction, layer)
		m := x.params.M
		if layer == 0 {
			m = 2 * x.params.M
		}
		selected := selectNeighbors(candidates, m)
		for _, c := range selected {
			x.connect(internal, c.id, layer)
			x.connect(c.id, internal, layer)
			x.pruneLinks(c.id, layer, m)
		}
		if len(candidates) > 0 {
			nearest = candidates[0].id
		}
	}

	if l > x.maxLayer {
		x.maxLayer = l
		x.entryPoint = internal
	}
	return nil
}

// Result is a single search hit.
type Result struct {
	ID       types.ConceptID
	Distance float32
}

// Search returns up to k nearest neighbors of q by cosine distance,
// ordered by increasing distance.
func (x *Index) Search(q []float32, k int) ([]Result, error) {
	if len(q) != x.dim {
		return nil, types.NewError("ann.Search", types.KindDimensionMismatch, nil)
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ANNSearchDuration)

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.entryPoint == -1 {
		return nil, nil
	}

	nearest := x.entryPoint
	for layer := x.maxLayer; layer > 0; layer-- {
		nearest = x.greedyClosest(q, nearest, layer)
	}

	ef := x.params.EfSearch
	if k > ef {
		ef = k
	}
	candidates := x.searchLayer(q, nearest, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{ID: x.nodes[c.id].id, Distance: c.dist}
	}
	return out, nil
}

func (x *Index) distance(v []float32, internal int) float32 {
	return cosineDistance(v, x.nodes[internal].vector)
}

func cosineDistance(a, b []float32) float32 {
	var dot float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// greedyClosest performs a single-best (ef=1) descent used to find a good
// entry point at each layer above the insertion/query layer.
func (x *Index) greedyClosest(v []float32, entry int, layer int) int {
	best := entry
	bestDist := x.distance(v, entry)
	improved := true
	for improved {
		improved = false
		for _, nb := range x.neighborsAt(best, layer) {
			d := x.distance(v, nb)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

func (x *Index) neighborsAt(internal, layer int) []int {
	n := x.nodes[internal]
	if layer >= len(n.links) {
		return nil
	}
	return n.links[layer]
}

type candidate struct {
	id   int
	dist float32
}

// searchLayer is the standard HNSW beam search at a single layer: a
// min-heap of candidates to explore and a bounded max-heap of the best ef
// results found so far.
func (x *Index) searchLayer(v []float32, entry int, ef int, layer int) []candidate {
	visited := map[int]bool{entry: true}
	entryDist := x.distance(v, entry)

	candidates := &minHeap{{entry, entryDist}}
	results := &maxHeap{{entry, entryDist}}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		worst := (*results)[0]
		if results.Len() >= ef && c.dist > worst.dist {
			break
		}
		for _, nb := range x.neighborsAt(c.id, layer) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := x.distance(v, nb)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidate{nb, d})
				heap.Push(results, candidate{nb, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sortByDistAsc(out)
	return out
}

// selectNeighbors applies the simple "m closest" heuristic: candidates is
// already sorted ascending by distance, so this is a prefix take. The
// spec's fuller diversity-favoring heuristic (retaining some
// distant-but-bridging neighbors) is not implemented.
func selectNeighbors(candidates []candidate, m int) []candidate {
	if len(candidates) <= m {
		return candidates
	}
	return candidates[:m]
}

// connect adds a directed link from->to at layer, extending from's layer
// slice if needed.
func (x *Index) connect(from, to, layer int) {
	n := x.nodes[from]
	for len(n.links) <= layer {
		n.links = append(n.links, nil)
	}
	for _, existing := range n.links[layer] {
		if existing == to {
			return
		}
	}
	n.links[layer] = append(n.links[layer], to)
}

// pruneLinks keeps at most m links for internal at layer, dropping the
// farthest by distance to internal's own vector.
func (x *Index) pruneLinks(internal, layer, m int) {
	n := x.nodes[internal]
	if layer >= len(n.links) || len(n.links[layer]) <= m {
		return
	}
	cands := make([]candidate, len(n.links[layer]))
	for i, id := range n.links[layer] {
		cands[i] = candidate{id, x.distance(n.vector, id)}
	}
	sortByDistAsc(cands)
	cands = cands[:m]
	kept := make([]int, len(cands))
	for i, c := range cands {
		kept[i] = c.id
	}
	n.links[layer] = kept
}

func sortByDistAsc(c []candidate) {
	// Small ef-sized slices; insertion sort keeps this allocation-free and
	// avoids importing sort for a handful of elements.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
