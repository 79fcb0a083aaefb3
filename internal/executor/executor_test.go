package executor

import (
	"testing"

	"github.com/velesdb/velesdb/internal/velesql"
)

func planFor(t *testing.T, query string) *velesql.PlanNode {
	t.Helper()
	stmt, err := velesql.Parse(query)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel, ok := stmt.(*velesql.SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
	plan, err := velesql.Plan(sel, nil)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	return plan
}

func fakeRows() map[uint64]map[string]any {
	return map[uint64]map[string]any{
		1: {"category": "tech", "docs.category": "tech", "price": 10.0},
		2: {"category": "tech", "docs.category": "tech", "price": 99.0},
		3: {"category": "books", "docs.category": "books", "price": 5.0},
	}
}

func baseSources() *Sources {
	data := fakeRows()
	return &Sources{
		ScanIDs: func(table string) ([]uint64, error) {
			return []uint64{1, 2, 3}, nil
		},
		FetchRow: func(table string, id uint64) (map[string]any, error) {
			return data[id], nil
		},
		IndexLookup: func(table string, predicate velesql.Expr, params map[string]any, candidateIDs []uint64) ([]uint64, error) {
			bin, ok := predicate.(*velesql.BinaryExpr)
			if !ok {
				return candidateIDs, nil
			}
			ref, _ := bin.Left.(*velesql.ColumnRef)
			lit, _ := bin.Right.(*velesql.Literal)
			var out []uint64
			pool := candidateIDs
			if pool == nil {
				pool = []uint64{1, 2, 3}
			}
			for _, id := range pool {
				v := data[id][ref.Name]
				if v == nil {
					v = data[id][ref.Table+"."+ref.Name]
				}
				if s, ok := v.(string); ok && lit != nil && s == lit.Str {
					out = append(out, id)
				}
			}
			return out, nil
		},
		VectorSearch: func(table, metric string, query []float32, k int, quality string, ef int) ([]VectorHit, error) {
			hits := []VectorHit{{ID: 1, Score: 0.99}, {ID: 2, Score: 0.5}, {ID: 3, Score: 0.1}}
			if k < len(hits) {
				hits = hits[:k]
			}
			return hits, nil
		},
	}
}

func TestExecuteSimpleFilterAndLimit(t *testing.T) {
	plan := planFor(t, "SELECT * FROM docs WHERE category = 'tech' LIMIT 5")
	ex := New(baseSources())
	rows, err := ex.Execute(plan, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
}

func TestExecuteVectorSearchAndColumnPushdown(t *testing.T) {
	plan := planFor(t, "SELECT * FROM docs WHERE vector NEAR $v AND docs.category = 'tech' LIMIT 5")
	ex := New(baseSources())
	params := map[string]any{"v": []float32{1, 0, 0, 0}}
	rows, err := ex.Execute(plan, params, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for _, r := range rows {
		if r.Values["docs.category"] != "tech" {
			t.Errorf("expected only tech rows, got %+v", r)
		}
	}
	if len(rows) == 0 {
		t.Fatal("expected at least one row")
	}
}

func TestExecuteLimitZeroReturnsEmptyImmediately(t *testing.T) {
	plan := planFor(t, "SELECT * FROM docs LIMIT 0")
	sources := baseSources()
	called := false
	sources.ScanIDs = func(table string) ([]uint64, error) {
		called = true
		return []uint64{1, 2, 3}, nil
	}
	ex := New(sources)
	rows, err := ex.Execute(plan, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty result, got %d rows", len(rows))
	}
	if called {
		t.Errorf("expected no index access for LIMIT 0")
	}
}

func TestExecuteUnboundParameterIsNotFound(t *testing.T) {
	plan := planFor(t, "SELECT * FROM docs WHERE vector NEAR $missing LIMIT 5")
	ex := New(baseSources())
	_, err := ex.Execute(plan, nil, nil)
	if err == nil {
		t.Fatal("expected error for unbound parameter")
	}
}

func TestCancelTokenStopsExecutionEarly(t *testing.T) {
	plan := planFor(t, "SELECT * FROM docs WHERE category = 'tech'")
	ex := New(baseSources())
	tok := NewCancelToken()
	tok.Cancel()
	_, err := ex.Execute(plan, nil, tok)
	if err == nil {
		t.Fatal("expected Cancelled error")
	}
}

func TestJoinLeftNullPadsUnmatchedLeftRows(t *testing.T) {
	left := []Row{
		{ID: 1, Values: map[string]any{"a.id": "1", "a.name": "x"}},
		{ID: 2, Values: map[string]any{"a.id": "2", "a.name": "y"}},
	}
	right := []Row{
		{ID: 10, Values: map[string]any{"b.a_id": "1", "b.val": "matched"}},
	}
	jc := &velesql.JoinClause{Kind: velesql.JoinLeft, OnLeft: "a.id", OnRight: "b.a_id"}
	out, err := hashJoin(left, right, jc)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows (1 matched + 1 null-padded), got %d: %+v", len(out), out)
	}
}

func TestAggregateCountWithGroupBy(t *testing.T) {
	plan := planFor(t, "SELECT COUNT(*) FROM docs GROUP BY category")
	ex := New(baseSources())
	rows, err := ex.Execute(plan, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups (tech, books), got %d: %+v", len(rows), rows)
	}
}

func TestAggregateMaxGroupsGuard(t *testing.T) {
	plan := planFor(t, "SELECT COUNT(*) FROM docs GROUP BY category WITH(max_groups=1)")
	ex := New(baseSources())
	_, err := ex.Execute(plan, nil, nil)
	if err == nil {
		t.Fatal("expected QuotaExceeded error when groups exceed max_groups")
	}
}

func TestLikePatternMatching(t *testing.T) {
	sources := baseSources()
	ex := New(sources)
	plan := planFor(t, "SELECT * FROM docs WHERE category LIKE 'te%'")
	rows, err := ex.Execute(plan, nil, nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows matching 'te%%', got %d", len(rows))
	}
}
