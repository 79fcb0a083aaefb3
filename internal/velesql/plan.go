package velesql

import (
	"fmt"
	"strings"
)

// NodeKind tags one plan node's operator.
type NodeKind uint8

const (
	NodeTableScan NodeKind = iota
	NodeVectorSearch
	NodeIndexLookup
	NodeFilter
	NodeLimit
	NodeOffset
	NodeJoin
	NodeAggregate
	NodeGraphMatch
)

func (k NodeKind) String() string {
	switch k {
	case NodeTableScan:
		return "TableScan"
	case NodeVectorSearch:
		return "VectorSearch"
	case NodeIndexLookup:
		return "IndexLookup"
	case NodeFilter:
		return "Filter"
	case NodeLimit:
		return "Limit"
	case NodeOffset:
		return "Offset"
	case NodeJoin:
		return "Join"
	case NodeAggregate:
		return "Aggregate"
	case NodeGraphMatch:
		return "GraphMatch"
	}
	return "Unknown"
}

// PlanNode is one node of the EXPLAIN-able, side-effect-free plan tree.
type PlanNode struct {
	Kind         NodeKind
	Table        string
	EstCost      float64
	EstRows      int
	Children     []*PlanNode
	Filters      []Expr   // predicates attached to a Filter/IndexLookup node
	NearParam    string   // VectorSearch only
	NearMetric   string   // VectorSearch only
	K            int      // VectorSearch: effective limit+offset to request
	JoinClause   *JoinClause
	GroupBy      []string
	Aggregates   []*FuncCall
	Limit        int
	Offset       int
	EfSearch     int
	Quality      string
	MaxGroups    int

	// GraphMatch-only fields, populated by planGraphMatch from the parsed
	// GraphPattern. Table carries ToLabel (the hydrated "b" side); these
	// carry the rest of the pattern the executor needs to bound and filter
	// the traversal.
	GraphFromVar   string
	GraphFromLabel string
	GraphToLabel   string
	GraphRelType   string
	GraphMinHops   int
	GraphMaxHops   int
}

// WhereSplit partitions a WHERE clause's top-level AND-conjuncts into the
// four pushdown classes the planner recognizes.
type WhereSplit struct {
	GraphPushed  []Expr
	VectorPushed []*NearExpr
	ColumnPushed []Expr
	PostFilter   []Expr
}

// splitConjuncts flattens nested AND nodes into a slice of leaf predicates.
func splitConjuncts(e Expr) []Expr {
	if e == nil {
		return nil
	}
	if b, ok := e.(*BinaryExpr); ok && b.Op == OpAnd {
		return append(splitConjuncts(b.Left), splitConjuncts(b.Right)...)
	}
	return []Expr{e}
}

// classifyWhere buckets each top-level conjunct. A NearExpr always goes to
// vector-pushed. An equality/range predicate on a qualified `table.col`
// reference is column-store-pushed (it can use a Column bitmap). An
// equality/range on a bare identifier targets the graph by default and is
// graph-pushed. Everything else (LIKE, OR, MATCH, nested structure this
// planner doesn't specialize) falls through to post-filter.
func classifyWhere(where Expr) WhereSplit {
	var split WhereSplit
	for _, c := range splitConjuncts(where) {
		switch e := c.(type) {
		case *NearExpr:
			split.VectorPushed = append(split.VectorPushed, e)
		case *BinaryExpr:
			if ref, ok := refOperand(e); ok {
				if ref.Table != "" {
					split.ColumnPushed = append(split.ColumnPushed, e)
				} else {
					split.GraphPushed = append(split.GraphPushed, e)
				}
				continue
			}
			split.PostFilter = append(split.PostFilter, e)
		case *BetweenExpr:
			if ref, ok := e.Expr.(*ColumnRef); ok && ref.Table != "" {
				split.ColumnPushed = append(split.ColumnPushed, e)
				continue
			}
			split.PostFilter = append(split.PostFilter, e)
		case *InExpr:
			if ref, ok := e.Expr.(*ColumnRef); ok && ref.Table != "" {
				split.ColumnPushed = append(split.ColumnPushed, e)
				continue
			}
			split.PostFilter = append(split.PostFilter, e)
		default:
			split.PostFilter = append(split.PostFilter, c)
		}
	}
	return split
}

// refOperand reports whether one side of a comparison is a bare column
// reference (the pushdown-eligible shape: `col op literal/param`).
func refOperand(b *BinaryExpr) (*ColumnRef, bool) {
	if ref, ok := b.Left.(*ColumnRef); ok {
		return ref, true
	}
	if ref, ok := b.Right.(*ColumnRef); ok {
		return ref, true
	}
	return nil, false
}

// selectivityThreshold: columns whose estimated selectivity is below this
// fraction use pre-filter (build a bitmap mask before the vector search);
// otherwise the planner candidates a larger post-filter set.
const selectivityThreshold = 0.10

// postFilterCandidateMultiplier: default factor applied to LIMIT when a
// predicate must run as a post-filter over a widened candidate set.
const postFilterCandidateMultiplier = 10

// SelectivityEstimator supplies an estimated selectivity for a column
// predicate so the planner can decide pre-filter vs. post-filter; callers
// without real column statistics can pass a constant estimator.
type SelectivityEstimator interface {
	Estimate(table, column string) float64
}

// Plan builds the pure plan-node tree for stmt. est may be nil, in which
// case every column predicate is treated as pre-filter-eligible.
func Plan(stmt *SelectStmt, est SelectivityEstimator) (*PlanNode, error) {
	if stmt.GraphMatch != nil {
		return planGraphMatch(stmt)
	}

	split := classifyWhere(stmt.Where)

	limit := -1
	if stmt.Limit != nil {
		limit = *stmt.Limit
	}
	offset := 0
	if stmt.Offset != nil {
		offset = *stmt.Offset
	}

	var root *PlanNode
	if len(split.VectorPushed) > 0 {
		near := split.VectorPushed[0]
		k := limit
		if k < 0 {
			k = 1000
		}
		k += offset
		vs := &PlanNode{
			Kind:       NodeVectorSearch,
			Table:      stmt.From,
			NearParam:  near.Param,
			NearMetric: near.Metric,
			K:          k,
			EstRows:    k,
			EstCost:    float64(k) * 8, // rough log-depth HNSW cost unit
			Quality:    stmt.With["mode"],
		}
		if ef, ok := stmt.With["ef_search"]; ok {
			fmt.Sscanf(ef, "%d", &vs.EfSearch)
		}
		root = vs
	} else {
		root = &PlanNode{Kind: NodeTableScan, Table: stmt.From, EstRows: 100000, EstCost: 100000}
	}

	for _, g := range split.GraphPushed {
		root = &PlanNode{Kind: NodeIndexLookup, Table: stmt.From, Filters: []Expr{g}, Children: []*PlanNode{root}, EstCost: root.EstCost + 10, EstRows: root.EstRows / 4}
	}
	for _, c := range split.ColumnPushed {
		sel := selectivityOf(c, est)
		if sel < selectivityThreshold {
			root = &PlanNode{Kind: NodeIndexLookup, Table: stmt.From, Filters: []Expr{c}, Children: []*PlanNode{root}, EstCost: root.EstCost + 5, EstRows: int(float64(root.EstRows) * sel)}
		} else {
			root = &PlanNode{Kind: NodeFilter, Filters: []Expr{c}, Children: []*PlanNode{root}, EstCost: root.EstCost + float64(root.EstRows), EstRows: int(float64(root.EstRows) * sel)}
		}
	}

	if stmt.Join != nil {
		rightScan := &PlanNode{Kind: NodeTableScan, Table: stmt.Join.Table, EstRows: 100000, EstCost: 100000}
		root = &PlanNode{
			Kind:       NodeJoin,
			JoinClause: stmt.Join,
			Children:   []*PlanNode{root, rightScan},
			EstCost:    root.EstCost + rightScan.EstCost,
			EstRows:    root.EstRows,
		}
	}

	if len(split.PostFilter) > 0 {
		widened := root.EstRows
		if limit >= 0 {
			widened = maxInt(widened, (limit+offset)*postFilterCandidateMultiplier)
		}
		root = &PlanNode{Kind: NodeFilter, Filters: split.PostFilter, Children: []*PlanNode{root}, EstCost: root.EstCost + float64(widened), EstRows: widened}
	}

	if len(stmt.GroupBy) > 0 || hasAggregate(stmt.Columns) {
		var aggs []*FuncCall
		for _, c := range stmt.Columns {
			if fc, ok := c.Expr.(*FuncCall); ok {
				aggs = append(aggs, fc)
			}
		}
		agg := &PlanNode{Kind: NodeAggregate, GroupBy: stmt.GroupBy, Aggregates: aggs, Children: []*PlanNode{root}, EstCost: root.EstCost + float64(root.EstRows), EstRows: root.EstRows}
		if mg, ok := stmt.With["max_groups"]; ok {
			fmt.Sscanf(mg, "%d", &agg.MaxGroups)
		}
		root = agg
	}

	if offset > 0 {
		root = &PlanNode{Kind: NodeOffset, Offset: offset, Children: []*PlanNode{root}, EstCost: root.EstCost, EstRows: maxInt(0, root.EstRows-offset)}
	}
	if limit >= 0 {
		root = &PlanNode{Kind: NodeLimit, Limit: limit, Children: []*PlanNode{root}, EstCost: root.EstCost, EstRows: minInt(root.EstRows, limit)}
	}

	return root, nil
}

// planGraphMatch translates a standalone `MATCH (a:Label)-[:REL*lo..hi]->(b)`
// pattern into a NodeGraphMatch plan node, bounded by the parsed hop range
// and relation type (spec.md §4.9). Any WHERE predicate pinning the `a`
// variable's id (e.g. `a.id = $start`) is kept as a Filter so the executor
// can use it to seed the traversal instead of scanning every node; the
// remaining predicates are evaluated against the resulting `b` rows the
// normal post-filter way.
func planGraphMatch(stmt *SelectStmt) (*PlanNode, error) {
	limit := -1
	if stmt.Limit != nil {
		limit = *stmt.Limit
	}
	pat := stmt.GraphMatch
	root := &PlanNode{
		Kind:           NodeGraphMatch,
		Table:          pat.ToLabel,
		GraphFromVar:   pat.FromVar,
		GraphFromLabel: pat.FromLabel,
		GraphToLabel:   pat.ToLabel,
		GraphRelType:   pat.RelType,
		GraphMinHops:   pat.MinHops,
		GraphMaxHops:   pat.MaxHops,
		EstRows:        1000,
		EstCost:        float64(pat.MaxHops) * 100,
	}
	if stmt.Where != nil {
		root.Filters = splitConjuncts(stmt.Where)
	}
	if limit >= 0 {
		root = &PlanNode{Kind: NodeLimit, Limit: limit, Children: []*PlanNode{root}, EstCost: root.EstCost, EstRows: minInt(root.EstRows, limit)}
	}
	return root, nil
}

func hasAggregate(items []SelectItem) bool {
	for _, i := range items {
		if _, ok := i.Expr.(*FuncCall); ok {
			return true
		}
	}
	return false
}

func selectivityOf(e Expr, est SelectivityEstimator) float64 {
	if est == nil {
		return 0.01
	}
	var ref *ColumnRef
	switch v := e.(type) {
	case *BinaryExpr:
		ref, _ = refOperand(v)
	case *BetweenExpr:
		ref, _ = v.Expr.(*ColumnRef)
	case *InExpr:
		ref, _ = v.Expr.(*ColumnRef)
	}
	if ref == nil {
		return 1.0
	}
	return est.Estimate(ref.Table, ref.Name)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Explain renders the plan tree for EXPLAIN-style output. It performs no
// execution and has no side effects, satisfying parse(explain(query)) ==
// parse(query) for the underlying statement (EXPLAIN never mutates the AST
// it was built from).
func Explain(root *PlanNode) string {
	var sb strings.Builder
	explainNode(root, 0, &sb)
	return sb.String()
}

func explainNode(n *PlanNode, depth int, sb *strings.Builder) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("%s(table=%s, est_rows=%d, est_cost=%.1f)\n", n.Kind, n.Table, n.EstRows, n.EstCost))
	for _, c := range n.Children {
		explainNode(c, depth+1, sb)
	}
}
