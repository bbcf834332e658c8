// Package ann implements the approximate nearest-neighbor index over
// concept embeddings (§4.2, §6.1 semantic_search). There is no
// off-the-shelf ANN library in the reference pack, so the graph structure
// here is hand-built; vector arithmetic is delegated to gonum/floats, the
// same numerical package the wider example pack reaches for rather than
// hand-rolling dot products.
package ann

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/synapsedb/synapse/pkg/types"
)

// Options configures the HNSW graph (§4.2 tunables).
type Options struct {
	M              int     // max bidirectional links per node per layer
	MMax0          int     // max links on layer 0 (conventionally 2*M)
	EfConstruction int     // candidate list size while inserting
	EfSearch       int     // candidate list size while searching
	LevelMult      float64 // 1/ln(M), derived if zero
}

// DefaultOptions matches common HNSW defaults used across production
// vector stores (§4.5 ef_search default 50).
func DefaultOptions() Options {
	return Options{M: 16, MMax0: 32, EfConstruction: 200, EfSearch: 50}
}

type node struct {
	id     types.ConceptID
	vector []float32
	// links[level] is the set of neighbor ids at that level.
	links [][]types.ConceptID
}

// Index is a concurrent HNSW graph. Inserts and searches both take the same
// read-write lock: HNSW's neighbor lists aren't safe for concurrent
// mutation, and the reconciler is the index's only writer anyway, so a
// single mutex costs nothing on the write path and only serializes
// searches against the (infrequent) insert.
type Index struct {
	mu       sync.RWMutex
	opts     Options
	dim      int
	rng      *rand.Rand
	nodes    map[types.ConceptID]*node
	entry    types.ConceptID
	hasEntry bool
	maxLevel int

	// degraded disables graph traversal and falls back to exact linear
	// scan, used when the graph is known to be in an inconsistent state
	// (e.g. mid-rebuild after a crash) per §7's degraded-mode fallback.
	degraded bool
}

// New creates an empty index for vectors of the given dimension.
func New(dim int, opts Options) *Index {
	if opts.LevelMult == 0 {
		opts.LevelMult = 1.0 / math.Log(float64(maxInt(opts.M, 2)))
	}
	return &Index{
		opts:  opts,
		dim:   dim,
		rng:   rand.New(rand.NewSource(1)),
		nodes: make(map[types.ConceptID]*node),
	}
}

// SetDegraded forces (or lifts) exact-scan fallback mode.
func (idx *Index) SetDegraded(v bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.degraded = v
}

// IsDegraded reports whether the index is currently serving searches via
// exact linear scan instead of graph traversal (§4.5, §7 "clearly-reported
// degraded mode"), surfaced on Stats so clients can tell semantic_search
// results apart from a fully-built index's.
func (idx *Index) IsDegraded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.degraded
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Insert adds or replaces id's vector in the graph (§4.2). Replacing an
// existing id removes its old links first so reinforcement-driven
// re-insertion doesn't accumulate stale edges.
func (idx *Index) Insert(id types.ConceptID, vector []float32) error {
	if len(vector) != idx.dim {
		return errDimMismatch(idx.dim, len(vector))
	}
	v := normalize(vector)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.nodes[id]; exists {
		idx.removeLocked(id)
	}

	level := idx.randomLevel()
	n := &node{id: id, vector: v, links: make([][]types.ConceptID, level+1)}
	idx.nodes[id] = n

	if !idx.hasEntry {
		idx.entry = id
		idx.hasEntry = true
		idx.maxLevel = level
		return nil
	}

	entry := idx.entry
	for l := idx.maxLevel; l > level; l-- {
		entry = idx.greedyClosest(entry, v, l)
	}

	for l := minInt(level, idx.maxLevel); l >= 0; l-- {
		candidates := idx.searchLayer(v, entry, idx.opts.EfConstruction, l)
		m := idx.opts.M
		if l == 0 {
			m = idx.opts.MMax0
		}
		neighbors := selectNeighbors(candidates, m)
		n.links[l] = neighbors
		for _, nb := range neighbors {
			idx.addLink(nb, id, l)
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entry = id
	}
	return nil
}

// Remove deletes id from the graph, stripping it out of every neighbor's
// link list it appears in (§4.2, §6.1 forget_concept).
func (idx *Index) Remove(id types.ConceptID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id types.ConceptID) {
	n, ok := idx.nodes[id]
	if !ok {
		return
	}
	for l, neighbors := range n.links {
		for _, nb := range neighbors {
			idx.unlink(nb, id, l)
		}
	}
	delete(idx.nodes, id)
	if idx.entry == id {
		idx.hasEntry = false
		for other := range idx.nodes {
			idx.entry = other
			idx.hasEntry = true
			break
		}
	}
}

// Result is one ranked neighbor returned by Search.
type Result struct {
	ID       types.ConceptID
	Distance float32 // cosine distance, lower is closer
}

// Search returns the k approximate nearest neighbors to query (§6.1
// semantic_search). When the index is empty it returns nothing; when
// degraded, it scans every vector exactly instead of walking the graph.
func (idx *Index) Search(query []float32, k int) ([]Result, error) {
	return idx.SearchEf(query, k, idx.opts.EfSearch)
}

// SearchEf is Search with an explicit ef_search candidate-list size,
// exposed so callers (the wire protocol's SemanticSearch request, §6.1)
// can widen or narrow the recall/latency tradeoff per call instead of
// being pinned to the index's construction-time default.
func (idx *Index) SearchEf(query []float32, k int, ef int) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, errDimMismatch(idx.dim, len(query))
	}
	q := normalize(query)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil, nil
	}
	if idx.degraded {
		return idx.exactScan(q, k), nil
	}

	if ef < k {
		ef = k
	}

	entry := idx.entry
	for l := idx.maxLevel; l > 0; l-- {
		entry = idx.greedyClosest(entry, q, l)
	}
	candidates := idx.searchLayer(q, entry, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{ID: c.id, Distance: c.dist}
	}
	return out, nil
}

func (idx *Index) exactScan(q []float32, k int) []Result {
	all := make([]scored, 0, len(idx.nodes))
	for id, n := range idx.nodes {
		all = append(all, scored{id: id, dist: cosineDistance(q, n.vector)})
	}
	sortScored(all)
	if len(all) > k {
		all = all[:k]
	}
	out := make([]Result, len(all))
	for i, c := range all {
		out[i] = Result{ID: c.id, Distance: c.dist}
	}
	return out
}

type scored struct {
	id   types.ConceptID
	dist float32
}

func sortScored(s []scored) {
	// insertion sort: candidate lists here are small (ef-bounded or, in
	// degraded mode, the whole index only at small scale).
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].dist < s[j-1].dist; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// searchLayer performs a greedy best-first search on one layer starting
// from entry, returning up to ef candidates sorted by distance ascending.
func (idx *Index) searchLayer(q []float32, entry types.ConceptID, ef int, layer int) []scored {
	visited := map[types.ConceptID]bool{entry: true}
	entryNode, ok := idx.nodes[entry]
	if !ok {
		return nil
	}
	candidates := []scored{{id: entry, dist: cosineDistance(q, entryNode.vector)}}
	results := append([]scored(nil), candidates...)

	for len(candidates) > 0 {
		c := candidates[0]
		candidates = candidates[1:]

		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			break
		}

		n := idx.nodes[c.id]
		if layer >= len(n.links) {
			continue
		}
		for _, nbID := range n.links[layer] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			nb, ok := idx.nodes[nbID]
			if !ok {
				continue
			}
			d := cosineDistance(q, nb.vector)
			candidates = append(candidates, scored{id: nbID, dist: d})
			results = append(results, scored{id: nbID, dist: d})
			sortScored(candidates)
			sortScored(results)
			if len(results) > ef {
				results = results[:ef]
			}
		}
	}
	return results
}

func (idx *Index) greedyClosest(entry types.ConceptID, q []float32, layer int) types.ConceptID {
	current := entry
	currentDist := cosineDistance(q, idx.nodes[current].vector)
	for {
		n, ok := idx.nodes[current]
		if !ok || layer >= len(n.links) {
			return current
		}
		improved := false
		for _, nbID := range n.links[layer] {
			nb, ok := idx.nodes[nbID]
			if !ok {
				continue
			}
			d := cosineDistance(q, nb.vector)
			if d < currentDist {
				current = nbID
				currentDist = d
				improved = true
			}
		}
		if !improved {
			return current
		}
	}
}

func selectNeighbors(candidates []scored, m int) []types.ConceptID {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]types.ConceptID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func (idx *Index) addLink(from, to types.ConceptID, layer int) {
	n, ok := idx.nodes[from]
	if !ok {
		return
	}
	for layer >= len(n.links) {
		n.links = append(n.links, nil)
	}
	n.links[layer] = append(n.links[layer], to)

	mMax := idx.opts.M
	if layer == 0 {
		mMax = idx.opts.MMax0
	}
	if len(n.links[layer]) > mMax {
		self := n.vector
		cands := make([]scored, len(n.links[layer]))
		for i, nbID := range n.links[layer] {
			nb := idx.nodes[nbID]
			cands[i] = scored{id: nbID, dist: cosineDistance(self, nb.vector)}
		}
		sortScored(cands)
		n.links[layer] = selectNeighbors(cands, mMax)
	}
}

func (idx *Index) unlink(from, to types.ConceptID, layer int) {
	n, ok := idx.nodes[from]
	if !ok || layer >= len(n.links) {
		return
	}
	out := n.links[layer][:0]
	for _, id := range n.links[layer] {
		if id != to {
			out = append(out, id)
		}
	}
	n.links[layer] = out
}

// randomLevel draws a node's top layer via the standard HNSW assignment:
// -ln(uniform) * levelMult, floored to an integer.
func (idx *Index) randomLevel() int {
	return int(-math.Log(idx.rng.Float64()) * idx.opts.LevelMult)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// normalize L2-normalizes v using gonum/floats so cosine distance reduces
// to 1 - dot product.
func normalize(v []float32) []float32 {
	f64 := make([]float64, len(v))
	for i, x := range v {
		f64[i] = float64(x)
	}
	norm := floats.Norm(f64, 2)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range f64 {
		out[i] = float32(x / norm)
	}
	return out
}

// cosineDistance assumes both vectors are already L2-normalized.
func cosineDistance(a, b []float32) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot)
}
