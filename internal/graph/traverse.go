package graph

import (
	"github.com/google/uuid"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// TraversalHit is one node reached during a traversal.
type TraversalHit struct {
	Target NodeID
	Depth  int
	Path   []NodeID
}

// TraversalOptions bounds a BFS/DFS walk. A zero MaxVisited means
// unbounded.
type TraversalOptions struct {
	MaxDepth   int
	Limit      int
	MaxVisited int
	Label      string
}

type frontierEntry struct {
	node NodeID
	path []NodeID
}

// BFS walks breadth-first from src, bounded by MaxDepth/Limit/MaxVisited.
// If MaxVisited is reached, the visited set is cleared and the walk keeps
// streaming from the current frontier — trading exactness (a node may be
// revisited) for bounded memory, per spec.
func (g *Graph) BFS(src NodeID, opts TraversalOptions) ([]TraversalHit, error) {
	return g.walk(src, opts, true)
}

// DFS walks depth-first from src with the same bounds as BFS.
func (g *Graph) DFS(src NodeID, opts TraversalOptions) ([]TraversalHit, error) {
	return g.walk(src, opts, false)
}

func (g *Graph) walk(src NodeID, opts TraversalOptions, breadthFirst bool) ([]TraversalHit, error) {
	if !g.HasNode(src) {
		return nil, nodeNotFound()
	}
	var hits []TraversalHit
	visited := map[NodeID]bool{src: true}
	frontier := []frontierEntry{{node: src, path: []NodeID{src}}}

	for len(frontier) > 0 {
		var cur frontierEntry
		if breadthFirst {
			cur, frontier = frontier[0], frontier[1:]
		} else {
			cur, frontier = frontier[len(frontier)-1], frontier[:len(frontier)-1]
		}

		depth := len(cur.path) - 1
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			continue
		}
		edges, err := g.Outgoing(cur.node, opts.Label)
		if err != nil {
			continue
		}
		for _, e := range edges {
			if opts.MaxVisited > 0 && len(visited) >= opts.MaxVisited {
				visited = map[NodeID]bool{} // bounded-memory reset; may revisit
			}
			if visited[e.Dst] {
				continue
			}
			visited[e.Dst] = true
			path := append(append([]NodeID(nil), cur.path...), e.Dst)
			hits = append(hits, TraversalHit{Target: e.Dst, Depth: depth + 1, Path: path})
			if opts.Limit > 0 && len(hits) >= opts.Limit {
				return hits, nil
			}
			frontier = append(frontier, frontierEntry{node: e.Dst, path: path})
		}
	}
	return hits, nil
}

// Cursor is an opaque, page-at-a-time traversal handle. NewCursor stamps
// each cursor with a fresh uuid generation tag, which Collection.Traverse
// uses as the cursor's lookup token; Next itself does not check the tag.
type Cursor struct {
	generation string
	frontier   []frontierEntry
	visited    map[NodeID]bool
	opts       TraversalOptions
	breadthFirst bool
}

// NewCursor starts a fresh streaming traversal from src.
func (g *Graph) NewCursor(src NodeID, opts TraversalOptions, breadthFirst bool) (*Cursor, error) {
	if !g.HasNode(src) {
		return nil, nodeNotFound()
	}
	return &Cursor{
		generation:   uuid.NewString(),
		frontier:     []frontierEntry{{node: src, path: []NodeID{src}}},
		visited:      map[NodeID]bool{src: true},
		opts:         opts,
		breadthFirst: breadthFirst,
	}, nil
}

// Next returns up to pageSize hits and advances the cursor in place.
// Returns an empty slice once the frontier is exhausted.
func (g *Graph) Next(c *Cursor, pageSize int) ([]TraversalHit, error) {
	var hits []TraversalHit
	for len(c.frontier) > 0 && len(hits) < pageSize {
		var cur frontierEntry
		if c.breadthFirst {
			cur, c.frontier = c.frontier[0], c.frontier[1:]
		} else {
			cur, c.frontier = c.frontier[len(c.frontier)-1], c.frontier[:len(c.frontier)-1]
		}
		depth := len(cur.path) - 1
		if c.opts.MaxDepth > 0 && depth >= c.opts.MaxDepth {
			continue
		}
		edges, err := g.Outgoing(cur.node, c.opts.Label)
		if err != nil {
			continue
		}
		for i, e := range edges {
			if c.opts.MaxVisited > 0 && len(c.visited) >= c.opts.MaxVisited {
				c.visited = map[NodeID]bool{}
			}
			if c.visited[e.Dst] {
				continue
			}
			c.visited[e.Dst] = true
			path := append(append([]NodeID(nil), cur.path...), e.Dst)
			hits = append(hits, TraversalHit{Target: e.Dst, Depth: depth + 1, Path: path})
			c.frontier = append(c.frontier, frontierEntry{node: e.Dst, path: path})
			if len(hits) >= pageSize {
				// Put cur back so its remaining edges are walked on the next
				// page; the edges already emitted are skipped as visited.
				if i < len(edges)-1 {
					if c.breadthFirst {
						c.frontier = append([]frontierEntry{cur}, c.frontier...)
					} else {
						c.frontier = append(c.frontier, cur)
					}
				}
				break
			}
		}
	}
	return hits, nil
}

// Generation returns the cursor's session tag, for callers that want to
// reject a cursor minted against a stale traversal generation.
func (c *Cursor) Generation() string { return c.generation }

func nodeNotFound() error {
	return veleserr.New(veleserr.NotFound, "graph: node not found")
}
