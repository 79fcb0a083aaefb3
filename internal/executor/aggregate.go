package executor

import (
	"fmt"

	"github.com/velesdb/velesdb/internal/veleserr"
	"github.com/velesdb/velesdb/internal/velesql"
)

// groupState accumulates one GROUP BY bucket's running aggregate values.
type groupState struct {
	count int
	sums  map[string]float64
	mins  map[string]float64
	maxs  map[string]float64
	first Row
}

// aggregate performs a streaming group-by over rows, guarded by
// node.MaxGroups (0 means unbounded). Exceeding the guard is a
// QuotaExceeded error, not a silent truncation.
func aggregate(rows []Row, node *velesql.PlanNode) ([]Row, error) {
	groups := make(map[string]*groupState)
	var order []string

	for _, row := range rows {
		key := groupKey(row, node.GroupBy)
		g, ok := groups[key]
		if !ok {
			if node.MaxGroups > 0 && len(groups) >= node.MaxGroups {
				return nil, veleserr.New(veleserr.QuotaExceeded, fmt.Sprintf("executor: aggregate exceeded max_groups=%d", node.MaxGroups))
			}
			g = &groupState{sums: map[string]float64{}, mins: map[string]float64{}, maxs: map[string]float64{}, first: row}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		for _, fc := range node.Aggregates {
			if fc.Star || fc.Arg == nil {
				continue
			}
			v, err := eval(fc.Arg, row, nil)
			if err != nil {
				continue // non-numeric / unbound arg contributes nothing to SUM/AVG/MIN/MAX
			}
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			name := fc.Name
			g.sums[name] += f
			if cur, ok := g.mins[name]; !ok || f < cur {
				g.mins[name] = f
			}
			if cur, ok := g.maxs[name]; !ok || f > cur {
				g.maxs[name] = f
			}
		}
	}

	out := make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := g.first.clone()
		for _, fc := range node.Aggregates {
			row.Values[aggregateAlias(fc)] = aggregateValue(fc, g)
		}
		out = append(out, row)
	}
	return out, nil
}

func aggregateValue(fc *velesql.FuncCall, g *groupState) float64 {
	switch fc.Name {
	case "COUNT":
		return float64(g.count)
	case "SUM":
		return g.sums[fc.Name]
	case "AVG":
		if g.count == 0 {
			return 0
		}
		return g.sums[fc.Name] / float64(g.count)
	case "MIN":
		return g.mins[fc.Name]
	case "MAX":
		return g.maxs[fc.Name]
	}
	return 0
}

func aggregateAlias(fc *velesql.FuncCall) string {
	if fc.Star {
		return fc.Name + "(*)"
	}
	return fc.Name + "(...)"
}

func groupKey(row Row, groupBy []string) string {
	if len(groupBy) == 0 {
		return ""
	}
	key := ""
	for _, col := range groupBy {
		v := rowField(row, columnRefFor(col))
		key += fmt.Sprintf("%v\x1f", v)
	}
	return key
}
