package graph

import "testing"

func TestAddEdgeMissingEndpoint(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	if _, err := g.AddEdge(1, 2, "knows", nil); err == nil {
		t.Errorf("expected MissingEndpoint error when dst does not exist")
	}
}

func TestAddEdgeAndOutgoingIncoming(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	id, err := g.AddEdge(1, 2, "knows", map[string]any{"since": 2020})
	if err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	out, err := g.Outgoing(1, "")
	if err != nil || len(out) != 1 || out[0].ID != id {
		t.Fatalf("Outgoing(1) = %v, %v", out, err)
	}
	in, err := g.Incoming(2, "")
	if err != nil || len(in) != 1 || in[0].ID != id {
		t.Fatalf("Incoming(2) = %v, %v", in, err)
	}
}

func TestOutgoingLabelFilter(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	g.AddNode(3)
	g.AddEdge(1, 2, "knows", nil)
	g.AddEdge(1, 3, "blocks", nil)

	out, err := g.Outgoing(1, "knows")
	if err != nil || len(out) != 1 || out[0].Dst != 2 {
		t.Errorf("expected only the knows edge, got %v", out)
	}
}

func TestDegree(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	g.AddNode(3)
	g.AddEdge(1, 2, "x", nil)
	g.AddEdge(3, 1, "x", nil)

	in, out, err := g.Degree(1)
	if err != nil {
		t.Fatalf("Degree failed: %v", err)
	}
	if in != 1 || out != 1 {
		t.Errorf("expected in=1 out=1, got in=%d out=%d", in, out)
	}
}

func TestHasEdge(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	g.AddEdge(1, 2, "knows", nil)

	ok, err := g.HasEdge(1, 2, "knows")
	if err != nil || !ok {
		t.Errorf("expected HasEdge true, got %v %v", ok, err)
	}
	ok, err = g.HasEdge(1, 2, "blocks")
	if err != nil || ok {
		t.Errorf("expected HasEdge false for wrong label, got %v %v", ok, err)
	}
}

func TestRemoveEdgeUpdatesBothIndexes(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	id, _ := g.AddEdge(1, 2, "knows", nil)
	if err := g.RemoveEdge(id); err != nil {
		t.Fatalf("RemoveEdge failed: %v", err)
	}
	out, _ := g.Outgoing(1, "")
	in, _ := g.Incoming(2, "")
	if len(out) != 0 || len(in) != 0 {
		t.Errorf("expected edge gone from both indexes, got out=%v in=%v", out, in)
	}
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	g := New(8)
	g.AddNode(1)
	g.AddNode(2)
	g.AddNode(3)
	g.AddEdge(1, 2, "x", nil)
	g.AddEdge(3, 1, "y", nil)

	if err := g.RemoveNode(1); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	if g.HasNode(1) {
		t.Errorf("expected node 1 gone")
	}
	out, _ := g.Outgoing(2, "")
	if len(out) != 0 {
		t.Errorf("expected no dangling edges from node 2")
	}
	out3, _ := g.Outgoing(3, "")
	if len(out3) != 0 {
		t.Errorf("expected cascaded removal of edge from node 3, got %v", out3)
	}
}

func TestBFSRespectsMaxDepthAndLimit(t *testing.T) {
	g := New(8)
	for i := NodeID(1); i <= 5; i++ {
		g.AddNode(i)
	}
	g.AddEdge(1, 2, "x", nil)
	g.AddEdge(2, 3, "x", nil)
	g.AddEdge(3, 4, "x", nil)
	g.AddEdge(4, 5, "x", nil)

	hits, err := g.BFS(1, TraversalOptions{MaxDepth: 2})
	if err != nil {
		t.Fatalf("BFS failed: %v", err)
	}
	for _, h := range hits {
		if h.Depth > 2 {
			t.Errorf("hit exceeds MaxDepth: %v", h)
		}
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits within depth 2, got %v", hits)
	}

	limited, err := g.BFS(1, TraversalOptions{Limit: 1})
	if err != nil {
		t.Fatalf("BFS failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected Limit=1 to cap results, got %v", limited)
	}
}

func TestCursorPaginatesTraversal(t *testing.T) {
	g := New(8)
	for i := NodeID(1); i <= 4; i++ {
		g.AddNode(i)
	}
	g.AddEdge(1, 2, "x", nil)
	g.AddEdge(1, 3, "x", nil)
	g.AddEdge(1, 4, "x", nil)

	c, err := g.NewCursor(1, TraversalOptions{}, true)
	if err != nil {
		t.Fatalf("NewCursor failed: %v", err)
	}
	page1, err := g.Next(c, 2)
	if err != nil || len(page1) != 2 {
		t.Fatalf("page1 = %v, %v", page1, err)
	}
	page2, err := g.Next(c, 2)
	if err != nil || len(page2) != 1 {
		t.Fatalf("page2 = %v, %v", page2, err)
	}
	if c.Generation() == "" {
		t.Errorf("expected a non-empty generation tag")
	}
}

func TestPropertyIndexHashEquals(t *testing.T) {
	pi := NewPropertyIndex(Hash, "Person", "city")
	pi.Add(1, "nyc")
	pi.Add(2, "nyc")
	pi.Add(3, "sf")

	got := pi.Equals("nyc")
	if len(got) != 2 {
		t.Errorf("expected 2 matches for nyc, got %v", got)
	}
}

func TestPropertyIndexRangeBetween(t *testing.T) {
	pi := NewPropertyIndex(Range, "Person", "age")
	pi.Add(1, 20.0)
	pi.Add(2, 30.0)
	pi.Add(3, 40.0)

	lo, hi := 25.0, 35.0
	got := pi.Between(&lo, &hi)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected only id 2 in [25,35], got %v", got)
	}
}

func TestPropertyIndexRangeNonNumericMarksNeedsRebuild(t *testing.T) {
	pi := NewPropertyIndex(Range, "Person", "age")
	pi.Add(1, "not a number")
	if !pi.NeedsRebuild() {
		t.Errorf("expected NeedsRebuild after non-numeric add to a Range index")
	}
}
