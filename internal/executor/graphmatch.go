package executor

import (
	"fmt"
	"sort"

	"github.com/velesdb/velesdb/internal/velesql"
)

// execGraphMatch runs a `MATCH (a:Label)-[:REL*lo..hi]->(b)` pattern
// (spec.md §4.9) by seeding one or more starting node ids, traversing from
// each bounded by the parsed hop range and relation-type filter via
// Sources.GraphTraverse, and hydrating the deduplicated set of reached
// target ids. Any WHERE predicate that doesn't pin the `a` variable's seed
// id is applied as a normal post-filter against the resulting `b` rows.
func (ex *Executor) execGraphMatch(node *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if ex.sources.GraphTraverse == nil {
		return nil, fmt.Errorf("executor: no GraphTraverse source wired for table %q", node.Table)
	}

	seedFilter, postFilters := splitSeedFilter(node.Filters, node.GraphFromVar)

	seeds, err := ex.graphMatchSeeds(node, seedFilter, params)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]bool)
	var ids []uint64
	for _, seed := range seeds {
		if cancel.Cancelled() {
			return nil, fmt.Errorf("executor: cancelled during graph match")
		}
		targets, err := ex.sources.GraphTraverse(seed, node.GraphRelType, node.GraphMinHops, node.GraphMaxHops)
		if err != nil {
			continue // seed has no graph presence (e.g. isolated point); skip it, not the whole match
		}
		for _, t := range targets {
			if !seen[t] {
				seen[t] = true
				ids = append(ids, t)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := ex.hydrate(node.Table, ids)
	if err != nil {
		return nil, err
	}
	return applyFilters(rows, postFilters, params)
}

// graphMatchSeeds resolves the starting node id(s) for the traversal: a
// WHERE predicate pinning the `a` variable's id binds a single seed;
// otherwise every live point is a candidate start (a full pattern sweep,
// since this store has no separate node-label concept to narrow `FromLabel`
// against — see DESIGN.md).
func (ex *Executor) graphMatchSeeds(node *velesql.PlanNode, seedFilter velesql.Expr, params map[string]any) ([]uint64, error) {
	if seedFilter != nil {
		if id, ok := seedValue(seedFilter, params); ok {
			return []uint64{id}, nil
		}
	}
	if ex.sources.ScanIDs == nil {
		return nil, fmt.Errorf("executor: no ScanIDs source wired to seed graph match on table %q", node.Table)
	}
	return ex.sources.ScanIDs(node.Table)
}

// splitSeedFilter pulls the single top-level equality predicate that pins
// fromVar's id (`a.id = $x`, `a = $x`) out of filters, returning it
// separately from the rest so the remaining predicates can be evaluated
// against the hydrated `b` rows without ever seeing an `a.*` field.
func splitSeedFilter(filters []velesql.Expr, fromVar string) (seed velesql.Expr, rest []velesql.Expr) {
	for _, f := range filters {
		if seed == nil {
			if bin, ok := f.(*velesql.BinaryExpr); ok && bin.Op == velesql.OpEq {
				if ref, ok := refOperand(bin); ok && refIsVar(ref, fromVar) {
					seed = f
					continue
				}
			}
		}
		rest = append(rest, f)
	}
	return seed, rest
}

func refOperand(b *velesql.BinaryExpr) (*velesql.ColumnRef, bool) {
	if ref, ok := b.Left.(*velesql.ColumnRef); ok {
		return ref, true
	}
	if ref, ok := b.Right.(*velesql.ColumnRef); ok {
		return ref, true
	}
	return nil, false
}

func refIsVar(ref *velesql.ColumnRef, fromVar string) bool {
	if ref.Table == fromVar && (ref.Name == "id" || ref.Name == "") {
		return true
	}
	return ref.Table == "" && ref.Name == fromVar
}

func seedValue(e velesql.Expr, params map[string]any) (uint64, bool) {
	bin, ok := e.(*velesql.BinaryExpr)
	if !ok {
		return 0, false
	}
	var other velesql.Expr
	if _, ok := bin.Left.(*velesql.ColumnRef); ok {
		other = bin.Right
	} else {
		other = bin.Left
	}
	var raw any
	switch v := other.(type) {
	case *velesql.Literal:
		raw = literalValue(v)
	case *velesql.Param:
		val, ok := params[v.Name]
		if !ok {
			return 0, false
		}
		raw = val
	default:
		return 0, false
	}
	return asUint64(raw)
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case float64:
		return uint64(n), true
	case float32:
		return uint64(n), true
	}
	return 0, false
}
