package velesql

import "testing"

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs WHERE category = 'tech' LIMIT 5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("expected *SelectStmt, got %T", stmt)
	}
	if sel.From != "docs" {
		t.Errorf("expected FROM docs, got %q", sel.From)
	}
	if sel.Limit == nil || *sel.Limit != 5 {
		t.Errorf("expected LIMIT 5, got %v", sel.Limit)
	}
	bin, ok := sel.Where.(*BinaryExpr)
	if !ok || bin.Op != OpEq {
		t.Fatalf("expected top-level equality, got %#v", sel.Where)
	}
}

func TestParseVectorNearAndColumnFilter(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs WHERE vector NEAR $v AND docs.category = 'tech' LIMIT 5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	split := classifyWhere(sel.Where)
	if len(split.VectorPushed) != 1 || split.VectorPushed[0].Param != "v" {
		t.Fatalf("expected one vector-pushed NEAR $v, got %#v", split.VectorPushed)
	}
	if len(split.ColumnPushed) != 1 {
		t.Fatalf("expected one column-pushed predicate, got %#v", split.ColumnPushed)
	}
}

func TestParseBareIdentifierIsGraphPushed(t *testing.T) {
	stmt, err := Parse("SELECT * FROM people WHERE age > 21")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	split := classifyWhere(sel.Where)
	if len(split.GraphPushed) != 1 {
		t.Fatalf("expected bare column predicate to be graph-pushed, got %#v", split)
	}
}

func TestParseBetweenLikeIsNullIn(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE a BETWEEN 1 AND 10 AND b LIKE 'foo%' AND c IS NOT NULL AND d IN (1,2,3)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	conjuncts := splitConjuncts(sel.Where)
	if len(conjuncts) != 4 {
		t.Fatalf("expected 4 top-level conjuncts, got %d", len(conjuncts))
	}
}

func TestParseJoinWithOn(t *testing.T) {
	stmt, err := Parse("SELECT * FROM a LEFT JOIN b ON a.id = b.a_id")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if sel.Join == nil || sel.Join.Kind != JoinLeft {
		t.Fatalf("expected LEFT join, got %#v", sel.Join)
	}
	if sel.Join.OnLeft != "a.id" || sel.Join.OnRight != "b.a_id" {
		t.Errorf("unexpected ON clause: %+v", sel.Join)
	}
}

func TestParseUnion(t *testing.T) {
	stmt, err := Parse("SELECT * FROM a UNION ALL SELECT * FROM b")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	comp, ok := stmt.(*CompoundStmt)
	if !ok || comp.Op != OpUnion || !comp.All {
		t.Fatalf("expected UNION ALL, got %#v", stmt)
	}
}

func TestParseGraphMatchPattern(t *testing.T) {
	stmt, err := Parse("MATCH (a:Person)-[:KNOWS*1..3]->(b:Person)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if sel.GraphMatch == nil {
		t.Fatal("expected GraphMatch to be set")
	}
	gm := sel.GraphMatch
	if gm.FromLabel != "Person" || gm.RelType != "KNOWS" || gm.MinHops != 1 || gm.MaxHops != 3 || gm.ToLabel != "Person" {
		t.Errorf("unexpected graph pattern: %+v", gm)
	}
}

func TestParseWithOptions(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs WITH(mode=fast, ef_search=128, timeout_ms=500)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if sel.With["mode"] != "fast" || sel.With["ef_search"] != "128" || sel.With["timeout_ms"] != "500" {
		t.Errorf("unexpected WITH options: %+v", sel.With)
	}
}

func TestParseOrderByScoreVar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs ORDER BY fused_score DESC LIMIT 10")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if len(sel.OrderBy) != 1 {
		t.Fatalf("expected one ORDER BY item, got %d", len(sel.OrderBy))
	}
	sv, ok := sel.OrderBy[0].Expr.(*ScoreVar)
	if !ok || sv.Name != "fused_score" || !sel.OrderBy[0].Desc {
		t.Errorf("unexpected ORDER BY item: %#v", sel.OrderBy[0])
	}
}

func TestParseAggregateCountStar(t *testing.T) {
	stmt, err := Parse("SELECT COUNT(*) FROM docs GROUP BY category")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if len(sel.Columns) != 1 {
		t.Fatalf("expected 1 select item, got %d", len(sel.Columns))
	}
	fc, ok := sel.Columns[0].Expr.(*FuncCall)
	if !ok || fc.Name != "COUNT" || !fc.Star {
		t.Errorf("expected COUNT(*), got %#v", sel.Columns[0].Expr)
	}
	if len(sel.GroupBy) != 1 || sel.GroupBy[0] != "category" {
		t.Errorf("unexpected GROUP BY: %v", sel.GroupBy)
	}
}

func TestParamsNeverInterpolated(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs WHERE category = $cat")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	bin := sel.Where.(*BinaryExpr)
	p, ok := bin.Right.(*Param)
	if !ok || p.Name != "cat" {
		t.Errorf("expected RHS to remain an unbound Param, got %#v", bin.Right)
	}
}

func TestPlanExplainIsPureAndDeterministic(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs WHERE vector NEAR $v AND docs.category = 'tech' LIMIT 5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	p1, err := Plan(sel, nil)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	p2, err := Plan(sel, nil)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if Explain(p1) != Explain(p2) {
		t.Errorf("expected identical EXPLAIN output across pure re-planning, got:\n%s\nvs\n%s", Explain(p1), Explain(p2))
	}
	if p1.Kind != NodeLimit {
		t.Errorf("expected root Limit node, got %v", p1.Kind)
	}
}

func TestPlanLimitZeroShortCircuits(t *testing.T) {
	stmt, err := Parse("SELECT * FROM docs LIMIT 0")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	sel := stmt.(*SelectStmt)
	p, err := Plan(sel, nil)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if p.Kind != NodeLimit || p.Limit != 0 {
		t.Fatalf("expected Limit(0) root, got %#v", p)
	}
}
