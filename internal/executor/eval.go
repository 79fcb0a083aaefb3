package executor

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/velesdb/velesdb/internal/veleserr"
	"github.com/velesdb/velesdb/internal/velesql"
)

// applyFilters evaluates every expr against every row, keeping only rows
// for which all filters evaluate true. This is the post-filter path; the
// planner only routes predicates here that IndexLookup couldn't push down.
func applyFilters(rows []Row, filters []velesql.Expr, params map[string]any) ([]Row, error) {
	if len(filters) == 0 {
		return rows, nil
	}
	out := rows[:0]
	for _, row := range rows {
		keep := true
		for _, f := range filters {
			v, err := evalBool(f, row, params)
			if err != nil {
				return nil, err
			}
			if !v {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func evalBool(e velesql.Expr, row Row, params map[string]any) (bool, error) {
	v, err := eval(e, row, params)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("executor: expression did not evaluate to a boolean: %T", v)
	}
	return b, nil
}

// eval evaluates any scalar or boolean expression node against one row.
// Cross-shape comparisons are rejected (the caller sees them as "false",
// matching the filter package's "incomparable, filter rejects" rule) rather
// than erroring.
func eval(e velesql.Expr, row Row, params map[string]any) (any, error) {
	switch v := e.(type) {
	case *velesql.Literal:
		return literalValue(v), nil

	case *velesql.Param:
		val, ok := params[v.Name]
		if !ok {
			return nil, veleserr.New(veleserr.NotFound, "executor: unbound parameter $"+v.Name)
		}
		return val, nil

	case *velesql.ColumnRef:
		return rowField(row, v), nil

	case *velesql.ScoreVar:
		switch v.Name {
		case "vector_score":
			return row.VectorScore, nil
		case "graph_score":
			return row.GraphScore, nil
		case "bm25_score":
			return row.Bm25Score, nil
		case "fused_score":
			return row.FusedScore, nil
		}
		return nil, fmt.Errorf("executor: unknown score variable %q", v.Name)

	case *velesql.NotExpr:
		b, err := evalBool(v.Expr, row, params)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case *velesql.BinaryExpr:
		return evalBinary(v, row, params)

	case *velesql.IsNullExpr:
		val, err := eval(v.Expr, row, params)
		if err != nil {
			return nil, err
		}
		isNull := val == nil
		if v.Not {
			return !isNull, nil
		}
		return isNull, nil

	case *velesql.InExpr:
		target, err := eval(v.Expr, row, params)
		if err != nil {
			return nil, err
		}
		found := false
		for _, cand := range v.Values {
			cv, err := eval(cand, row, params)
			if err != nil {
				return nil, err
			}
			if looseEquals(target, cv) {
				found = true
				break
			}
		}
		if v.Not {
			return !found, nil
		}
		return found, nil

	case *velesql.BetweenExpr:
		target, err := eval(v.Expr, row, params)
		if err != nil {
			return nil, err
		}
		lo, err := eval(v.Lo, row, params)
		if err != nil {
			return nil, err
		}
		hi, err := eval(v.Hi, row, params)
		if err != nil {
			return nil, err
		}
		tf, tok := asFloat(target)
		lof, lok := asFloat(lo)
		hif, hok := asFloat(hi)
		if !tok || !lok || !hok {
			return false, nil
		}
		result := tf >= lof && tf <= hif
		if v.Not {
			return !result, nil
		}
		return result, nil

	case *velesql.LikeExpr:
		target, err := eval(v.Expr, row, params)
		if err != nil {
			return nil, err
		}
		s, ok := target.(string)
		if !ok {
			return false, nil
		}
		matched, err := likeMatch(s, v.Pattern)
		if err != nil {
			return false, err
		}
		if v.Not {
			return !matched, nil
		}
		return matched, nil

	case *velesql.MatchTextExpr:
		// Post-filter fallback for a MATCH clause that the planner didn't
		// push into the BM25 stream directly (e.g. inside an OR); treated
		// as a substring containment test, not full BM25 ranking.
		val := rowField(row, &velesql.ColumnRef{Name: v.Field})
		s, ok := val.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(v.Query)), nil

	case *velesql.NearExpr:
		return nil, fmt.Errorf("executor: NEAR predicate reached post-filter evaluation; planner should have pushed it to VectorSearch")
	}
	return nil, fmt.Errorf("executor: unhandled expression type %T", e)
}

func evalBinary(v *velesql.BinaryExpr, row Row, params map[string]any) (any, error) {
	if v.Op == velesql.OpAnd {
		l, err := evalBool(v.Left, row, params)
		if err != nil {
			return nil, err
		}
		if !l {
			return false, nil
		}
		return evalBool(v.Right, row, params)
	}
	if v.Op == velesql.OpOr {
		l, err := evalBool(v.Left, row, params)
		if err != nil {
			return nil, err
		}
		if l {
			return true, nil
		}
		return evalBool(v.Right, row, params)
	}

	left, err := eval(v.Left, row, params)
	if err != nil {
		return nil, err
	}
	right, err := eval(v.Right, row, params)
	if err != nil {
		return nil, err
	}

	switch v.Op {
	case velesql.OpEq:
		return looseEquals(left, right), nil
	case velesql.OpNeq:
		return !looseEquals(left, right), nil
	case velesql.OpLt, velesql.OpLte, velesql.OpGt, velesql.OpGte:
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if !lok || !rok {
			return false, nil // incomparable shapes: filter rejects, per filter.Comparable
		}
		switch v.Op {
		case velesql.OpLt:
			return lf < rf, nil
		case velesql.OpLte:
			return lf <= rf, nil
		case velesql.OpGt:
			return lf > rf, nil
		case velesql.OpGte:
			return lf >= rf, nil
		}
	case velesql.OpAdd, velesql.OpSub, velesql.OpMul, velesql.OpDiv:
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if !lok || !rok {
			return nil, fmt.Errorf("executor: arithmetic on non-numeric operands")
		}
		switch v.Op {
		case velesql.OpAdd:
			return lf + rf, nil
		case velesql.OpSub:
			return lf - rf, nil
		case velesql.OpMul:
			return lf * rf, nil
		case velesql.OpDiv:
			return lf / rf, nil
		}
	}
	return nil, fmt.Errorf("executor: unhandled binary operator %v", v.Op)
}

func literalValue(l *velesql.Literal) any {
	switch l.Kind {
	case velesql.LitString:
		return l.Str
	case velesql.LitNumber:
		return l.Num
	case velesql.LitBool:
		return l.Bool
	case velesql.LitNull:
		return nil
	}
	return nil
}

func rowField(row Row, ref *velesql.ColumnRef) any {
	if ref.Table != "" {
		if v, ok := row.Values[ref.Table+"."+ref.Name]; ok {
			return v
		}
	}
	return row.Values[ref.Name]
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func looseEquals(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// likeMatch compiles pat (SQL LIKE syntax: % and _ wildcards) into an
// anchored regexp2 pattern, matched case-insensitively. A backslash makes
// the next rune, including % and _, an escaped literal; the pattern uses no
// lookaround.
func likeMatch(s, pat string) (bool, error) {
	var sb strings.Builder
	sb.WriteString("^")
	escaped := false
	for _, r := range pat {
		if escaped {
			sb.WriteString(regexp2EscapeRune(r))
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp2EscapeRune(r))
		}
	}
	sb.WriteString("$")

	re, err := regexp2.Compile(sb.String(), regexp2.IgnoreCase)
	if err != nil {
		return false, fmt.Errorf("executor: invalid LIKE pattern %q: %w", pat, err)
	}
	matched, err := re.MatchString(s)
	if err != nil {
		return false, err
	}
	return matched, nil
}

func regexp2EscapeRune(r rune) string {
	switch r {
	case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
		return "\\" + string(r)
	}
	return string(r)
}
