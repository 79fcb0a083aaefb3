package velesdb

import (
	"testing"

	"github.com/velesdb/velesdb/internal/graph"
	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/quant"
)

func TestPropertyIndexTracksUpsertAndDelete(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	c, err := db.CreateCollection("docs", 2, kernel.Cosine, quant.Full)
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := c.CreateIndex(graph.Hash, "", "category"); err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}

	if err := c.Upsert(1, []float32{1, 0}, map[string]any{"category": "tech"}); err != nil {
		t.Fatalf("Upsert 1 failed: %v", err)
	}
	if err := c.Upsert(2, []float32{0, 1}, map[string]any{"category": "tech"}); err != nil {
		t.Fatalf("Upsert 2 failed: %v", err)
	}
	if err := c.Upsert(3, []float32{1, 1}, map[string]any{"category": "news"}); err != nil {
		t.Fatalf("Upsert 3 failed: %v", err)
	}

	pi := c.propIndexes[".category"]
	if pi == nil {
		t.Fatalf("expected property index registered under \".category\", got keys %v", c.ListIndexes())
	}
	got := pi.Equals("tech")
	if len(got) != 2 {
		t.Fatalf("expected 2 ids for category=tech, got %v", got)
	}

	// Replacing id 1's category must move it out of the "tech" bucket.
	if err := c.Upsert(1, []float32{1, 0}, map[string]any{"category": "news"}); err != nil {
		t.Fatalf("Upsert (replace) failed: %v", err)
	}
	got = pi.Equals("tech")
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only id 2 for category=tech after replace, got %v", got)
	}

	// Deleting id 2 must drop it from the index entirely.
	if err := c.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got = pi.Equals("tech")
	if len(got) != 0 {
		t.Fatalf("expected no ids for category=tech after delete, got %v", got)
	}
	got = pi.Equals("news")
	if len(got) != 2 {
		t.Fatalf("expected ids 1 and 3 for category=news, got %v", got)
	}
}

func TestCreateIndexBackfillsExistingPoints(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	c, err := db.CreateCollection("docs", 2, kernel.Cosine, quant.Full)
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	// Upsert data BEFORE the index exists, unlike
	// TestPropertyIndexTracksUpsertAndDelete.
	if err := c.Upsert(1, []float32{1, 0}, map[string]any{"category": "tech"}); err != nil {
		t.Fatalf("Upsert 1 failed: %v", err)
	}
	if err := c.Upsert(2, []float32{0, 1}, map[string]any{"category": "tech"}); err != nil {
		t.Fatalf("Upsert 2 failed: %v", err)
	}
	if err := c.Upsert(3, []float32{1, 1}, map[string]any{"category": "news"}); err != nil {
		t.Fatalf("Upsert 3 failed: %v", err)
	}

	if err := c.CreateIndex(graph.Hash, "", "category"); err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}

	pi := c.propIndexes[".category"]
	if pi == nil {
		t.Fatalf("expected property index registered under \".category\"")
	}
	got := pi.Equals("tech")
	if len(got) != 2 {
		t.Fatalf("expected pre-existing ids 1 and 2 backfilled for category=tech, got %v", got)
	}
	got = pi.Equals("news")
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected pre-existing id 3 backfilled for category=news, got %v", got)
	}
}

func TestExecuteQueryGraphMatch(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	c, err := db.CreateCollection("people", 2, kernel.Cosine, quant.Full)
	if err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	for id := uint64(1); id <= 4; id++ {
		if err := c.Upsert(id, []float32{float32(id), 0}, nil); err != nil {
			t.Fatalf("Upsert %d failed: %v", id, err)
		}
	}
	// 1 -KNOWS-> 2 -KNOWS-> 3, and 1 -LIKES-> 4 (different relation, must
	// not be reached by a KNOWS-bounded match).
	if _, err := c.AddEdge(1, 2, "KNOWS", nil); err != nil {
		t.Fatalf("AddEdge 1->2 failed: %v", err)
	}
	if _, err := c.AddEdge(2, 3, "KNOWS", nil); err != nil {
		t.Fatalf("AddEdge 2->3 failed: %v", err)
	}
	if _, err := c.AddEdge(1, 4, "LIKES", nil); err != nil {
		t.Fatalf("AddEdge 1->4 failed: %v", err)
	}

	rows, err := c.ExecuteQuery(
		"MATCH (a:Person)-[:KNOWS*1..2]->(b:Person) WHERE a.id = $start",
		map[string]any{"start": uint64(1)},
	)
	if err != nil {
		t.Fatalf("ExecuteQuery failed: %v", err)
	}
	seen := make(map[uint64]bool)
	for _, r := range rows {
		seen[r.ID] = true
	}
	if len(rows) != 2 || !seen[2] || !seen[3] {
		t.Fatalf("expected ids {2,3} reachable via KNOWS within 2 hops, got %v", rows)
	}
	if seen[4] {
		t.Fatalf("expected LIKES edge to be excluded from a KNOWS-typed match, got %v", rows)
	}
}
