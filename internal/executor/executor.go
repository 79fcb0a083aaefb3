// Package executor walks a velesql plan tree and produces rows, generalized
// from internal/queryengine/query_engine.go's switch-over-operation-kind
// dispatch (there switching on a wire Query.Type string; here switching on a
// velesql.NodeKind) and its defensive type-assertion style at each store
// boundary.
package executor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/velesdb/velesdb/internal/veleserr"
	"github.com/velesdb/velesdb/internal/velesql"
)

// Row is one result tuple flowing through the plan. Values holds
// column-qualified and bare field bindings; the four score fields are
// populated by whichever upstream node computed them and are otherwise
// zero.
type Row struct {
	ID          uint64
	Values      map[string]any
	VectorScore float64
	GraphScore  float64
	Bm25Score   float64
	FusedScore  float64
}

func (r Row) clone() Row {
	v := make(map[string]any, len(r.Values))
	for k, val := range r.Values {
		v[k] = val
	}
	r.Values = v
	return r
}

// VectorHit is one HNSW search result handed to the executor by whatever
// owns the index (kept abstract here so this package never imports
// internal/hnsw directly).
type VectorHit struct {
	ID    uint64
	Score float64
}

// TextHit is one BM25 result.
type TextHit struct {
	ID    uint64
	Score float64
}

// Sources is the set of store callbacks the executor needs to run a plan.
// A Collection wires these to its owned HNSW index, graph, column store,
// and BM25 index; tests wire in fakes.
type Sources struct {
	// ScanIDs enumerates every live id in table, for a bare TableScan.
	ScanIDs func(table string) ([]uint64, error)
	// VectorSearch runs the vector index for table with the bound query
	// vector, requesting k results at the given quality/ef_search.
	VectorSearch func(table, metric string, query []float32, k int, quality string, efSearch int) ([]VectorHit, error)
	// IndexLookup evaluates one predicate directly against a graph
	// property index or column store bitmap, returning matching ids. If
	// candidateIDs is non-nil the lookup may restrict itself to that set.
	IndexLookup func(table string, predicate velesql.Expr, params map[string]any, candidateIDs []uint64) ([]uint64, error)
	// TextSearch runs a BM25 query.
	TextSearch func(field, query string, k int) ([]TextHit, error)
	// FetchRow hydrates a row's field values (payload + graph properties)
	// for an id in table.
	FetchRow func(table string, id uint64) (map[string]any, error)
	// GraphTraverse runs a bounded BFS from source over edges matching
	// relType (empty = any), returning every distinct node reached at a
	// hop count within [minHops, maxHops].
	GraphTraverse func(source uint64, relType string, minHops, maxHops int) ([]uint64, error)
}

// CancelToken is checked at every plan-node boundary; a timeout_ms WITH
// option installs a deadline via time.AfterFunc that flips it.
type CancelToken struct {
	flag atomic.Bool
}

func NewCancelToken() *CancelToken { return &CancelToken{} }

func (c *CancelToken) Cancel()         { c.flag.Store(true) }
func (c *CancelToken) Cancelled() bool { return c.flag.Load() }

// WithTimeout arms the token to flip after d; callers stop the returned
// timer once the query completes to release it early.
func (c *CancelToken) WithTimeout(d time.Duration) *time.Timer {
	return time.AfterFunc(d, c.Cancel)
}

// Executor walks plan trees against a fixed set of Sources.
type Executor struct {
	sources *Sources
}

func New(sources *Sources) *Executor {
	return &Executor{sources: sources}
}

// Execute runs plan to completion and returns the resulting rows. params
// binds every $name placeholder referenced by the plan's retained
// expressions; an unbound reference is a programmer error surfaced as
// NotFound rather than silently treated as NULL.
func (ex *Executor) Execute(plan *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if cancel == nil {
		cancel = NewCancelToken()
	}
	return ex.run(plan, params, cancel)
}

func (ex *Executor) run(node *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if cancel.Cancelled() {
		return nil, veleserr.New(veleserr.Cancelled, "executor: cancelled before plan node "+node.Kind.String())
	}

	switch node.Kind {
	case velesql.NodeTableScan:
		return ex.execTableScan(node)

	case velesql.NodeVectorSearch:
		return ex.execVectorSearch(node, params)

	case velesql.NodeIndexLookup:
		return ex.execIndexLookup(node, params, cancel)

	case velesql.NodeGraphMatch:
		return ex.execGraphMatch(node, params, cancel)

	case velesql.NodeFilter:
		rows, err := ex.childRows(node, params, cancel)
		if err != nil {
			return nil, err
		}
		return applyFilters(rows, node.Filters, params)

	case velesql.NodeJoin:
		return ex.execJoin(node, params, cancel)

	case velesql.NodeAggregate:
		rows, err := ex.childRows(node, params, cancel)
		if err != nil {
			return nil, err
		}
		return aggregate(rows, node)

	case velesql.NodeOffset:
		rows, err := ex.childRows(node, params, cancel)
		if err != nil {
			return nil, err
		}
		if node.Offset >= len(rows) {
			return nil, nil
		}
		return rows[node.Offset:], nil

	case velesql.NodeLimit:
		if node.Limit == 0 {
			return nil, nil // LIMIT 0: no index access, matches boundary rule
		}
		rows, err := ex.childRows(node, params, cancel)
		if err != nil {
			return nil, err
		}
		if node.Limit < len(rows) {
			rows = rows[:node.Limit]
		}
		return rows, nil
	}

	return nil, fmt.Errorf("executor: unhandled plan node kind %v", node.Kind)
}

func (ex *Executor) childRows(node *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if len(node.Children) == 0 {
		return nil, nil
	}
	return ex.run(node.Children[0], params, cancel)
}

func (ex *Executor) execTableScan(node *velesql.PlanNode) ([]Row, error) {
	if ex.sources.ScanIDs == nil {
		return nil, fmt.Errorf("executor: no ScanIDs source wired for table %q", node.Table)
	}
	ids, err := ex.sources.ScanIDs(node.Table)
	if err != nil {
		return nil, err
	}
	return ex.hydrate(node.Table, ids)
}

func (ex *Executor) execVectorSearch(node *velesql.PlanNode, params map[string]any) ([]Row, error) {
	if ex.sources.VectorSearch == nil {
		return nil, fmt.Errorf("executor: no VectorSearch source wired for table %q", node.Table)
	}
	raw, ok := params[node.NearParam]
	if !ok {
		return nil, veleserr.New(veleserr.NotFound, "executor: unbound parameter $"+node.NearParam)
	}
	vec, ok := raw.([]float32)
	if !ok {
		return nil, fmt.Errorf("executor: parameter $%s must be a vector, got %T", node.NearParam, raw)
	}
	hits, err := ex.sources.VectorSearch(node.Table, node.NearMetric, vec, node.K, node.Quality, node.EfSearch)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(hits))
	scores := make(map[uint64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}
	rows, err := ex.hydrate(node.Table, ids)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].VectorScore = scores[rows[i].ID]
	}
	return rows, nil
}

func (ex *Executor) execIndexLookup(node *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if ex.sources.IndexLookup == nil {
		return nil, fmt.Errorf("executor: no IndexLookup source wired for table %q", node.Table)
	}
	var candidateIDs []uint64
	byID := make(map[uint64]Row)
	if len(node.Children) > 0 {
		childRows, err := ex.run(node.Children[0], params, cancel)
		if err != nil {
			return nil, err
		}
		candidateIDs = make([]uint64, len(childRows))
		for i, r := range childRows {
			candidateIDs[i] = r.ID
			byID[r.ID] = r
		}
	}

	var filtered []uint64
	var err error
	if len(node.Filters) == 0 {
		filtered = candidateIDs
	} else {
		filtered, err = ex.sources.IndexLookup(node.Table, node.Filters[0], params, candidateIDs)
		if err != nil {
			return nil, err
		}
	}

	if len(byID) == 0 {
		return ex.hydrate(node.Table, filtered)
	}
	// Preserve upstream scores/values already attached to these rows
	// (e.g. a VectorSearch's per-row distance) instead of re-hydrating
	// from scratch and losing them.
	out := make([]Row, 0, len(filtered))
	for _, id := range filtered {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (ex *Executor) execJoin(node *velesql.PlanNode, params map[string]any, cancel *CancelToken) ([]Row, error) {
	if len(node.Children) != 2 {
		return nil, fmt.Errorf("executor: join node requires exactly 2 children, got %d", len(node.Children))
	}
	left, err := ex.run(node.Children[0], params, cancel)
	if err != nil {
		return nil, err
	}
	right, err := ex.run(node.Children[1], params, cancel)
	if err != nil {
		return nil, err
	}
	return hashJoin(left, right, node.JoinClause)
}

func (ex *Executor) hydrate(table string, ids []uint64) ([]Row, error) {
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		row := Row{ID: id, Values: map[string]any{}}
		if ex.sources.FetchRow != nil {
			vals, err := ex.sources.FetchRow(table, id)
			if err != nil {
				if k, ok := veleserr.KindOf(err); ok && k == veleserr.NotFound {
					continue // row vanished between index scan and hydration
				}
				return nil, err
			}
			row.Values = vals
		}
		rows = append(rows, row)
	}
	return rows, nil
}
