// Package graph implements the L2 sharded property graph: node and edge
// stores partitioned into S shards apiece, grounded in
// internal/spaces/space_manager.go's sharded-map-with-lock pattern and
// johnjansen-torua's hash-mod-shard-count ownership idiom, here using
// github.com/cespare/xxhash/v2 for the shard hash.
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/velesdb/velesdb/internal/veleserr"
)

const DefaultShardCount = 256

// EdgeID is the monotonic identifier assigned to each edge at creation.
type EdgeID = uint64

// NodeID matches the PointID space used across the engine: a graph node is
// simply a point's id viewed through its incident edges.
type NodeID = uint64

type Edge struct {
	ID    EdgeID
	Src   NodeID
	Dst   NodeID
	Label string
	Props map[string]any
}

type nodeRecord struct {
	exists   bool
	outgoing []EdgeID
	incoming []EdgeID
}

type nodeShard struct {
	mu    sync.RWMutex
	nodes map[NodeID]*nodeRecord
}

type edgeShard struct {
	mu    sync.RWMutex
	edges map[EdgeID]*Edge
}

// Graph is the sharded node/edge store. Nodes are implicit: AddNode marks a
// point id as graph-eligible so edges can reference it; most callers reach
// Graph only through a Collection that already upserted the point.
type Graph struct {
	shardCount int
	nodes      []*nodeShard
	edgesByID  []*edgeShard
	nextEdge   uint64 // atomic
}

func New(shardCount int) *Graph {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	g := &Graph{shardCount: shardCount, nodes: make([]*nodeShard, shardCount), edgesByID: make([]*edgeShard, shardCount)}
	for i := 0; i < shardCount; i++ {
		g.nodes[i] = &nodeShard{nodes: make(map[NodeID]*nodeRecord)}
		g.edgesByID[i] = &edgeShard{edges: make(map[EdgeID]*Edge)}
	}
	return g
}

func (g *Graph) nodeShardFor(id NodeID) *nodeShard {
	return g.nodes[shardHash(id)%uint64(g.shardCount)]
}

func (g *Graph) edgeShardFor(id EdgeID) *edgeShard {
	return g.edgesByID[shardHash(id)%uint64(g.shardCount)]
}

func shardHash(id uint64) uint64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return xxhash.Sum64(b[:])
}

// AddNode marks id as present in the graph (idempotent). Edges may only
// reference ids that have been added.
func (g *Graph) AddNode(id NodeID) {
	s := g.nodeShardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		s.nodes[id] = &nodeRecord{exists: true}
	} else {
		s.nodes[id].exists = true
	}
}

// RemoveNode drops id and every edge incident to it (cascade-on-delete,
// the pinned resolution for the dangling-edge Open Question).
func (g *Graph) RemoveNode(id NodeID) error {
	s := g.nodeShardFor(id)
	s.mu.Lock()
	rec, ok := s.nodes[id]
	if !ok || !rec.exists {
		s.mu.Unlock()
		return veleserr.New(veleserr.NotFound, "graph: node not found")
	}
	incident := append(append([]EdgeID(nil), rec.outgoing...), rec.incoming...)
	delete(s.nodes, id)
	s.mu.Unlock()

	for _, eid := range incident {
		_ = g.RemoveEdge(eid)
	}
	return nil
}

func (g *Graph) HasNode(id NodeID) bool {
	s := g.nodeShardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	return ok && rec.exists
}

// AddEdge validates both endpoints exist, assigns a monotonic EdgeId, and
// updates src's outgoing index and dst's incoming index under the fixed
// src-shard-then-dst-shard (by shard id ascending) lock order.
func (g *Graph) AddEdge(src, dst NodeID, label string, props map[string]any) (EdgeID, error) {
	id := atomic.AddUint64(&g.nextEdge, 1) - 1
	return id, g.addEdgeWithID(id, src, dst, label, props)
}

// ReplayEdge re-inserts an edge under the id it was originally assigned,
// used when a WAL record is replayed at startup (the id was already handed
// to the caller when the edge was first created and must not change).
// g.nextEdge is bumped past id if needed so future AddEdge calls never
// collide with a replayed id.
func (g *Graph) ReplayEdge(id EdgeID, src, dst NodeID, label string, props map[string]any) error {
	for {
		cur := atomic.LoadUint64(&g.nextEdge)
		if id < cur {
			break
		}
		if atomic.CompareAndSwapUint64(&g.nextEdge, cur, id+1) {
			break
		}
	}
	return g.addEdgeWithID(id, src, dst, label, props)
}

func (g *Graph) addEdgeWithID(id EdgeID, src, dst NodeID, label string, props map[string]any) error {
	if !g.HasNode(src) || !g.HasNode(dst) {
		return veleserr.New(veleserr.MissingEndpoint, "graph: add_edge endpoint missing")
	}

	edge := &Edge{ID: id, Src: src, Dst: dst, Label: label, Props: props}

	es := g.edgeShardFor(id)
	es.mu.Lock()
	es.edges[id] = edge
	es.mu.Unlock()

	srcShardIdx := shardHash(src) % uint64(g.shardCount)
	dstShardIdx := shardHash(dst) % uint64(g.shardCount)
	srcShard, dstShard := g.nodes[srcShardIdx], g.nodes[dstShardIdx]

	// Fixed lock order: ascending shard id. When src and dst fall in the
	// same shard, a single lock covers both updates.
	if srcShardIdx == dstShardIdx {
		srcShard.mu.Lock()
		srcShard.nodes[src].outgoing = append(srcShard.nodes[src].outgoing, id)
		srcShard.nodes[dst].incoming = append(srcShard.nodes[dst].incoming, id)
		srcShard.mu.Unlock()
		return nil
	}
	first, second := srcShard, dstShard
	if dstShardIdx < srcShardIdx {
		first, second = dstShard, srcShard
	}
	first.mu.Lock()
	second.mu.Lock()
	srcShard.nodes[src].outgoing = append(srcShard.nodes[src].outgoing, id)
	dstShard.nodes[dst].incoming = append(dstShard.nodes[dst].incoming, id)
	second.mu.Unlock()
	first.mu.Unlock()
	return nil
}

// RemoveEdge removes id from both the outgoing and incoming indexes and
// drops its canonical record. An endpoint whose node record is already gone
// (as during RemoveNode's cascade) is skipped; nothing is logged and the
// call still returns nil.
func (g *Graph) RemoveEdge(id EdgeID) error {
	es := g.edgeShardFor(id)
	es.mu.Lock()
	edge, ok := es.edges[id]
	if ok {
		delete(es.edges, id)
	}
	es.mu.Unlock()
	if !ok {
		return veleserr.New(veleserr.NotFound, "graph: edge not found")
	}

	srcShard := g.nodeShardFor(edge.Src)
	srcShard.mu.Lock()
	if rec, ok := srcShard.nodes[edge.Src]; ok {
		rec.outgoing = removeEdgeID(rec.outgoing, id)
	}
	srcShard.mu.Unlock()

	dstShard := g.nodeShardFor(edge.Dst)
	dstShard.mu.Lock()
	if rec, ok := dstShard.nodes[edge.Dst]; ok {
		rec.incoming = removeEdgeID(rec.incoming, id)
	}
	dstShard.mu.Unlock()
	return nil
}

func removeEdgeID(s []EdgeID, id EdgeID) []EdgeID {
	out := s[:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Outgoing returns src's outgoing edges, optionally filtered by label,
// ordered by EdgeId ascending.
func (g *Graph) Outgoing(src NodeID, label string) ([]Edge, error) {
	return g.edgesFor(src, label, true)
}

// Incoming returns dst's incoming edges, optionally filtered by label,
// ordered by EdgeId ascending.
func (g *Graph) Incoming(dst NodeID, label string) ([]Edge, error) {
	return g.edgesFor(dst, label, false)
}

func (g *Graph) edgesFor(id NodeID, label string, outgoing bool) ([]Edge, error) {
	s := g.nodeShardFor(id)
	s.mu.RLock()
	rec, ok := s.nodes[id]
	if !ok || !rec.exists {
		s.mu.RUnlock()
		return nil, veleserr.New(veleserr.NotFound, "graph: node not found")
	}
	var ids []EdgeID
	if outgoing {
		ids = append([]EdgeID(nil), rec.outgoing...)
	} else {
		ids = append([]EdgeID(nil), rec.incoming...)
	}
	s.mu.RUnlock()

	sortEdgeIDs(ids)
	out := make([]Edge, 0, len(ids))
	for _, eid := range ids {
		es := g.edgeShardFor(eid)
		es.mu.RLock()
		e, ok := es.edges[eid]
		es.mu.RUnlock()
		if !ok {
			continue
		}
		if label != "" && e.Label != label {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func sortEdgeIDs(ids []EdgeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// Degree returns (in-degree, out-degree) for node, O(1) from the per-node
// counters.
func (g *Graph) Degree(id NodeID) (int, int, error) {
	s := g.nodeShardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.nodes[id]
	if !ok || !rec.exists {
		return 0, 0, veleserr.New(veleserr.NotFound, "graph: node not found")
	}
	return len(rec.incoming), len(rec.outgoing), nil
}

// HasEdge reports whether src->dst (optionally with label) exists, O(out
// degree) average via the outgoing index.
func (g *Graph) HasEdge(src, dst NodeID, label string) (bool, error) {
	edges, err := g.Outgoing(src, "")
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.Dst == dst && (label == "" || e.Label == label) {
			return true, nil
		}
	}
	return false, nil
}

// ExportNodes returns every live node id across all shards, for a
// Collection checkpoint to snapshot alongside the HNSW graph (see
// graph/nodes.S<n> in spec.md §6's on-disk layout table).
func (g *Graph) ExportNodes() []NodeID {
	var out []NodeID
	for _, s := range g.nodes {
		s.mu.RLock()
		for id, rec := range s.nodes {
			if rec.exists {
				out = append(out, id)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// ExportEdges returns every live edge across all shards, for a Collection
// checkpoint to snapshot (see graph/edges.S<n> in spec.md §6's on-disk
// layout table). Restoring them is a matter of calling AddNode for every
// exported node and then ReplayEdge for every exported edge.
func (g *Graph) ExportEdges() []Edge {
	var out []Edge
	for _, s := range g.edgesByID {
		s.mu.RLock()
		for _, e := range s.edges {
			out = append(out, *e)
		}
		s.mu.RUnlock()
	}
	return out
}
