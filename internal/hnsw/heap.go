package hnsw

import "github.com/velesdb/velesdb/internal/order"

// scored pairs a candidate point with its distance to the query, used by
// both the min-heap (candidate frontier) and max-heap (bounded result set)
// that drive SearchLayer.
type scored struct {
	id   uint64
	dist float32
}

// minHeap pops the closest candidate first — the frontier explored during
// beam search.
type minHeap []scored

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	return order.LessAscThenID(h[i].dist, h[j].dist, h[i].id, h[j].id)
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest candidate first — used to keep only the ef
// closest points found so far, evicting the worst when the set overflows.
type maxHeap []scored

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	return order.LessDescThenID(h[i].dist, h[j].dist, h[i].id, h[j].id)
}
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
