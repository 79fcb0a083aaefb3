package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/order"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// VectorSource reconstructs a point's vector by id, satisfied by
// *quant.Store. Kept as an interface so hnsw never imports quant directly —
// the index only needs "give me back the bytes I can compute a distance
// against."
type VectorSource interface {
	Get(id uint64) ([]float32, error)
}

type node struct {
	id    uint64
	level int

	// neighborsMu guards this node's neighbor lists across all its layers.
	// Acquired after layerMu and before nodesMu, per the fixed lock order.
	neighborsMu sync.RWMutex
	neighbors   [][]uint64 // neighbors[l] = out-edges at layer l, 0 <= l <= level
}

// Index is the hierarchical graph over a collection's points. It holds no
// vector bytes itself — VectorSource is the quant.Store backing it — only
// the layer structure (entry point, per-node neighbor lists).
type Index struct {
	dim    int
	metric kernel.Metric
	config Config
	source VectorSource

	// edgesMu serializes structural graph mutation (insert/delete). The
	// spec's fixed lock order is edges -> layers -> neighbors -> nodes;
	// acquiring edgesMu for the duration of a single insert keeps that order
	// trivially satisfied at the cost of not running inserts fully in
	// parallel with each other (see DESIGN.md). Search never takes edgesMu.
	edgesMu sync.Mutex

	// layerMu guards entryPoint/maxLevel, a short critical section.
	layerMu    sync.Mutex
	entryPoint uint64
	maxLevel   int
	hasEntry   bool

	// nodesMu guards the existence map itself, not neighbor contents.
	nodesMu    sync.RWMutex
	nodes      map[uint64]*node
	tombstoned map[uint64]bool
}

func New(dim int, metric kernel.Metric, cfg Config, source VectorSource) *Index {
	return &Index{
		dim:    dim,
		metric: metric,
		config: cfg,
		source: source,
		nodes:  make(map[uint64]*node),
	}
}

func (idx *Index) Len() int {
	idx.nodesMu.RLock()
	defer idx.nodesMu.RUnlock()
	return len(idx.nodes)
}

// sampleLevel draws a layer from a geometric distribution with parameter
// ln(2)/M, per spec: level = floor(-ln(U) / (ln(2)/M)) for U ~ Uniform(0,1).
func sampleLevel(m int) int {
	if m < 2 {
		m = 2
	}
	lambda := math.Log(2) / float64(m)
	u := rand.Float64()
	for u == 0 {
		u = rand.Float64()
	}
	level := int(math.Floor(-math.Log(u) / lambda))
	if level < 0 {
		level = 0
	}
	return level
}

func (idx *Index) distance(vec []float32, id uint64) (float32, error) {
	other, err := idx.source.Get(id)
	if err != nil {
		return 0, err
	}
	return kernel.Distance(idx.metric, vec, other)
}

func (idx *Index) getNode(id uint64) (*node, bool) {
	idx.nodesMu.RLock()
	defer idx.nodesMu.RUnlock()
	n, ok := idx.nodes[id]
	return n, ok
}

// Insert adds a new point to the graph. vec must already be present in the
// backing VectorSource (the caller upserts vectors there first); Insert
// only builds the graph structure over it.
func (idx *Index) Insert(id uint64, vec []float32) error {
	if len(vec) != idx.dim {
		return veleserr.New(veleserr.DimensionMismatch, "hnsw: vector length mismatch")
	}

	level := sampleLevel(idx.config.M)

	idx.edgesMu.Lock()
	defer idx.edgesMu.Unlock()

	idx.layerMu.Lock()
	hadEntry := idx.hasEntry
	entry := idx.entryPoint
	top := idx.maxLevel
	idx.layerMu.Unlock()

	n := &node{id: id, level: level, neighbors: make([][]uint64, level+1)}

	if !hadEntry {
		idx.nodesMu.Lock()
		idx.nodes[id] = n
		idx.nodesMu.Unlock()

		idx.layerMu.Lock()
		idx.entryPoint = id
		idx.maxLevel = level
		idx.hasEntry = true
		idx.layerMu.Unlock()
		return nil
	}

	cur := entry
	for l := top; l > level && l >= 0; l-- {
		next, err := idx.greedyStep(vec, cur, l)
		if err != nil {
			return err
		}
		cur = next
	}

	start := level
	if top < start {
		start = top
	}
	for l := start; l >= 0; l-- {
		candidates, err := idx.searchLayer(vec, cur, l, idx.config.EfConstruction)
		if err != nil {
			return err
		}
		selected, err := idx.pruneScored(vec, candidates, idx.config.M)
		if err != nil {
			return err
		}
		n.neighbors[l] = selected
		if len(selected) > 0 {
			cur = selected[0]
		}

		for _, nb := range selected {
			if err := idx.linkBidirectional(id, nb, l); err != nil {
				return err
			}
		}
	}

	idx.nodesMu.Lock()
	idx.nodes[id] = n
	delete(idx.tombstoned, id)
	idx.nodesMu.Unlock()

	if level > top {
		idx.layerMu.Lock()
		idx.entryPoint = id
		idx.maxLevel = level
		idx.layerMu.Unlock()
	}
	return nil
}

// linkBidirectional adds the reverse edge id<-nb at layer l, re-pruning nb's
// neighbor set if it now exceeds M out-edges.
func (idx *Index) linkBidirectional(id, nb uint64, l int) error {
	nbNode, ok := idx.getNode(nb)
	if !ok || nbNode.level < l {
		return nil
	}
	nbVec, err := idx.source.Get(nb)
	if err != nil {
		return err
	}

	nbNode.neighborsMu.Lock()
	defer nbNode.neighborsMu.Unlock()

	nbNode.neighbors[l] = append(nbNode.neighbors[l], id)
	if len(nbNode.neighbors[l]) <= idx.config.M {
		return nil
	}

	candidates := make([]scored, 0, len(nbNode.neighbors[l]))
	for _, cid := range nbNode.neighbors[l] {
		d, err := idx.distance(nbVec, cid)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{id: cid, dist: d})
	}
	pruned, err := idx.pruneScored(nbVec, candidates, idx.config.M)
	if err != nil {
		return err
	}
	nbNode.neighbors[l] = pruned
	return nil
}

// greedyStep performs one layer's worth of greedy hill-climbing (beam=1):
// from entry, repeatedly move to whichever neighbor is closer to query
// than the current point, until no closer neighbor exists.
func (idx *Index) greedyStep(query []float32, entry uint64, layer int) (uint64, error) {
	cur := entry
	curDist, err := idx.distance(query, cur)
	if err != nil {
		return 0, err
	}
	for {
		n, ok := idx.getNode(cur)
		if !ok || layer > n.level {
			return cur, nil
		}
		n.neighborsMu.RLock()
		neighbors := append([]uint64(nil), n.neighbors[layer]...)
		n.neighborsMu.RUnlock()

		improved := false
		for _, nb := range neighbors {
			d, err := idx.distance(query, nb)
			if err != nil {
				continue
			}
			if d < curDist {
				cur, curDist = nb, d
				improved = true
			}
		}
		if !improved {
			return cur, nil
		}
	}
}

// searchLayer is the standard HNSW SEARCH-LAYER routine: a greedy beam
// search from entry that maintains up to ef candidates, returning them
// ordered closest-first. It takes only read locks and runs lock-free
// against concurrent searches.
func (idx *Index) searchLayer(query []float32, entry uint64, layer, ef int) ([]scored, error) {
	entryDist, err := idx.distance(query, entry)
	if err != nil {
		return nil, err
	}

	visited := map[uint64]bool{entry: true}
	candidates := &minHeap{{id: entry, dist: entryDist}}
	heap.Init(candidates)
	found := &maxHeap{{id: entry, dist: entryDist}}
	heap.Init(found)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scored)
		if found.Len() >= ef {
			worst := (*found)[0]
			if c.dist > worst.dist {
				break
			}
		}

		n, ok := idx.getNode(c.id)
		if !ok || layer > n.level {
			continue
		}
		n.neighborsMu.RLock()
		neighbors := append([]uint64(nil), n.neighbors[layer]...)
		n.neighborsMu.RUnlock()

		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d, err := idx.distance(query, nb)
			if err != nil {
				continue
			}
			if found.Len() < ef {
				heap.Push(candidates, scored{id: nb, dist: d})
				heap.Push(found, scored{id: nb, dist: d})
			} else if worst := (*found)[0]; d < worst.dist {
				heap.Push(candidates, scored{id: nb, dist: d})
				heap.Push(found, scored{id: nb, dist: d})
				heap.Pop(found)
			}
		}
	}

	result := make([]scored, found.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(found).(scored)
	}
	return result, nil
}

// pruneScored applies the diversity-preferring neighbor selection rule:
// reject candidate c if an already-accepted neighbor c' is closer to c than
// c is to the new point.
func (idx *Index) pruneScored(query []float32, candidates []scored, m int) ([]uint64, error) {
	ordered := append([]scored(nil), candidates...)
	sortScoredAsc(ordered)

	var accepted []scored
	for _, c := range ordered {
		if len(accepted) >= m {
			break
		}
		cVec, err := idx.source.Get(c.id)
		if err != nil {
			continue
		}
		diverse := true
		for _, a := range accepted {
			dd, err := kernel.Distance(idx.metric, cVec, mustGet(idx.source, a.id))
			if err != nil {
				continue
			}
			if dd < c.dist {
				diverse = false
				break
			}
		}
		if diverse {
			accepted = append(accepted, c)
		}
	}
	out := make([]uint64, len(accepted))
	for i, a := range accepted {
		out[i] = a.id
	}
	return out, nil
}

func mustGet(source VectorSource, id uint64) []float32 {
	v, err := source.Get(id)
	if err != nil {
		return nil
	}
	return v
}

// sortScoredAsc sorts closest-first using the same NaN-safe total order
// minHeap/maxHeap already apply via order.LessAscThenID (internal/order),
// so a NaN-distance candidate always sorts after every finite one here too
// (spec.md §8 testable invariant #5) instead of landing wherever a raw `<`
// comparison happened to leave it.
func sortScoredAsc(s []scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			if order.LessAscThenID(s[j].dist, s[j-1].dist, s[j].id, s[j-1].id) {
				s[j], s[j-1] = s[j-1], s[j]
			} else {
				break
			}
		}
	}
}

// Delete marks id tombstoned: it stays in the graph (so traversals through
// it keep working and its neighbor lists stay intact) but Search/bruteForce
// never return it, per spec.md §3's "deletions mark slots tombstoned and
// excluded from search results; physical reclamation happens at vacuum."
// Edges are rewired and the node is actually removed only by Vacuum.
func (idx *Index) Delete(id uint64) error {
	idx.nodesMu.Lock()
	defer idx.nodesMu.Unlock()
	if _, ok := idx.nodes[id]; !ok {
		return veleserr.New(veleserr.NotFound, "hnsw: point not found")
	}
	if idx.tombstoned[id] {
		return veleserr.New(veleserr.NotFound, "hnsw: point not found")
	}
	if idx.tombstoned == nil {
		idx.tombstoned = make(map[uint64]bool)
	}
	idx.tombstoned[id] = true
	return nil
}

func (idx *Index) isTombstoned(id uint64) bool {
	idx.nodesMu.RLock()
	defer idx.nodesMu.RUnlock()
	return idx.tombstoned[id]
}

// Vacuum physically reclaims every tombstoned point: its incident edges are
// rewired out of every neighbor's list (the rewiring Delete used to do
// eagerly), its node entry is removed, and the entry point is reassigned if
// it was the one tombstoned. This is the explicit, engine-triggered
// operation spec.md §5 calls out ("vacuum and rebuild are triggered by
// explicit calls") — nothing calls it automatically.
func (idx *Index) Vacuum() error {
	idx.edgesMu.Lock()
	defer idx.edgesMu.Unlock()

	idx.nodesMu.Lock()
	ids := make([]uint64, 0, len(idx.tombstoned))
	for id := range idx.tombstoned {
		ids = append(ids, id)
	}
	idx.nodesMu.Unlock()

	for _, id := range ids {
		idx.vacuumOne(id)
	}
	return nil
}

func (idx *Index) vacuumOne(id uint64) {
	n, ok := idx.getNode(id)
	if !ok {
		idx.nodesMu.Lock()
		delete(idx.tombstoned, id)
		idx.nodesMu.Unlock()
		return
	}

	n.neighborsMu.RLock()
	byLayer := make([][]uint64, len(n.neighbors))
	copy(byLayer, n.neighbors)
	n.neighborsMu.RUnlock()

	for l, peers := range byLayer {
		for _, p := range peers {
			if pn, ok := idx.getNode(p); ok {
				pn.neighborsMu.Lock()
				pn.neighbors[l] = removeID(pn.neighbors[l], id)
				pn.neighborsMu.Unlock()
			}
		}
	}

	idx.nodesMu.Lock()
	delete(idx.nodes, id)
	delete(idx.tombstoned, id)
	idx.nodesMu.Unlock()

	idx.layerMu.Lock()
	if idx.hasEntry && idx.entryPoint == id {
		idx.reassignEntryLocked()
	}
	idx.layerMu.Unlock()
}

// reassignEntryLocked must be called with layerMu held.
func (idx *Index) reassignEntryLocked() {
	idx.nodesMu.RLock()
	defer idx.nodesMu.RUnlock()
	if len(idx.nodes) == 0 {
		idx.hasEntry = false
		idx.entryPoint = 0
		idx.maxLevel = 0
		return
	}
	var bestID uint64
	bestLevel := -1
	first := true
	for nid, n := range idx.nodes {
		if first || n.level > bestLevel || (n.level == bestLevel && nid < bestID) {
			bestID, bestLevel, first = nid, n.level, false
		}
	}
	idx.entryPoint = bestID
	idx.maxLevel = bestLevel
}

func removeID(s []uint64, id uint64) []uint64 {
	out := s[:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
