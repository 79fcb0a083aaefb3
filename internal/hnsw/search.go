package hnsw

import "github.com/velesdb/velesdb/internal/veleserr"

// Result is one match returned by Search, ordered closest to farthest.
type Result struct {
	ID       uint64
	Distance float32
}

// Search returns the k nearest points to query under the index's metric,
// tie-broken by PointId ascending, NaN distances ordered last. quality
// picks the beam width; Perfect bypasses the graph for a full scan.
func (idx *Index) Search(query []float32, k int, quality Quality) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, veleserr.New(veleserr.DimensionMismatch, "hnsw: query vector length mismatch")
	}
	if quality == Perfect {
		return idx.bruteForce(query, k)
	}

	idx.layerMu.Lock()
	hadEntry := idx.hasEntry
	entry := idx.entryPoint
	top := idx.maxLevel
	idx.layerMu.Unlock()
	if !hadEntry {
		return nil, nil
	}

	ef := quality.efSearch()
	if ef < k {
		ef = k
	}

	cur := entry
	for l := top; l > 0; l-- {
		next, err := idx.greedyStep(query, cur, l)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	candidates, err := idx.searchLayer(query, cur, 0, ef)
	if err != nil {
		return nil, err
	}
	candidates = idx.excludeTombstoned(candidates)
	sortScoredAsc(candidates)
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{ID: candidates[i].id, Distance: candidates[i].dist}
	}
	return out, nil
}

// excludeTombstoned drops tombstoned points from a candidate set: they
// remain reachable during graph traversal (searchLayer/greedyStep may hop
// through them) but spec.md §3/§4.4 require them excluded from results
// until Vacuum reclaims them.
func (idx *Index) excludeTombstoned(in []scored) []scored {
	out := in[:0]
	for _, c := range in {
		if !idx.isTombstoned(c.id) {
			out = append(out, c)
		}
	}
	return out
}

// bruteForce computes the exact k nearest neighbors by scanning every live
// point, guaranteeing 100% recall. Used for Quality=Perfect.
func (idx *Index) bruteForce(query []float32, k int) ([]Result, error) {
	idx.nodesMu.RLock()
	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		if idx.tombstoned[id] {
			continue
		}
		ids = append(ids, id)
	}
	idx.nodesMu.RUnlock()

	scoredAll := make([]scored, 0, len(ids))
	for _, id := range ids {
		d, err := idx.distance(query, id)
		if err != nil {
			continue
		}
		scoredAll = append(scoredAll, scored{id: id, dist: d})
	}
	sortScoredAsc(scoredAll)
	if k > len(scoredAll) {
		k = len(scoredAll)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{ID: scoredAll[i].id, Distance: scoredAll[i].dist}
	}
	return out, nil
}
