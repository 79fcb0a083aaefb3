package velesdb

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/velesdb/velesdb/internal/executor"
	"github.com/velesdb/velesdb/internal/filter"
	"github.com/velesdb/velesdb/internal/fusion"
	"github.com/velesdb/velesdb/internal/graph"
	"github.com/velesdb/velesdb/internal/hnsw"
	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/quant"
	"github.com/velesdb/velesdb/internal/storage"
	"github.com/velesdb/velesdb/internal/textindex"
	"github.com/velesdb/velesdb/internal/veleserr"
	"github.com/velesdb/velesdb/internal/velesql"
)

// IndexedColumn declares that one payload field is mirrored into the
// column store for planner pushdown, per spec.md §4.7.
type IndexedColumn struct {
	Field string
	Type  filter.ColumnType
}

// CollectionConfig is fixed at create_collection time (spec.md §3: "a
// collection's dim is fixed at creation").
type CollectionConfig struct {
	Dim            int
	Metric         kernel.Metric
	StorageMode    quant.Mode
	TextField      string
	IndexedColumns []IndexedColumn
	ShardCount     int
	Tuning         Tuning
}

// Collection owns every store layer for one named collection: the
// quantized vector arena, its HNSW graph, the durability engine (WAL +
// payload log), the BM25 text index, the property graph, and the column
// store — generalized from internal/spaces/space_manager.go's one
// engine-per-named-space map into a single struct that owns several
// engines together for the same name, per spec.md §3's Collection model.
type Collection struct {
	name string
	dir  string
	cfg  CollectionConfig

	points *quant.Store
	index  *hnsw.Index
	engine *storage.Engine
	text   *textindex.Index
	graph  *graph.Graph

	mu             sync.RWMutex
	columns        map[string]*filter.Column
	propIndexes    map[string]*graph.PropertyIndex
	payloads       map[uint64]map[string]any
	payloadOffsets map[uint64]int64

	cursorsMu sync.Mutex
	cursors   map[string]*graph.Cursor

	nextEdgeID uint64 // atomic

	// vectorCache is created at open and has id evicted on every upsert and
	// delete; no read path consults or fills it, so every read goes to
	// points and the payload map.
	vectorCache *ristretto.Cache[uint64, []float32]
}

// openCollection constructs a Collection rooted at dir and replays its WAL,
// the way internal/storage.Open replays into whatever RecordHandler it is
// given — here, the Collection itself.
func openCollection(dir, name string, cfg CollectionConfig) (*Collection, error) {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = graph.DefaultShardCount
	}

	c := &Collection{
		name:           name,
		dir:            dir,
		cfg:            cfg,
		points:         quant.New(cfg.StorageMode, cfg.Dim),
		text:           textindex.NewWithParams(cfg.Tuning.BM25.K1, cfg.Tuning.BM25.B),
		graph:          graph.New(cfg.ShardCount),
		columns:        make(map[string]*filter.Column),
		propIndexes:    make(map[string]*graph.PropertyIndex),
		payloads:       make(map[uint64]map[string]any),
		payloadOffsets: make(map[uint64]int64),
		cursors:        make(map[string]*graph.Cursor),
	}
	for _, ic := range cfg.IndexedColumns {
		c.columns[ic.Field] = filter.NewColumn(ic.Type)
	}

	// Restore whatever survived the last checkpoint before the WAL replay
	// inside storage.Open applies anything logged after it, per spec.md
	// §4.3's recovery order ("data region is mapped, then WAL records ...
	// are replayed in order").
	if loaded, err := quant.Load(c.vectorsPath(), cfg.StorageMode, cfg.Dim); err == nil {
		c.points = loaded
	} else if !os.IsNotExist(err) {
		logCheckpointWarning("vectors.dat", err)
	}
	c.restoreGraph()
	c.restorePayloads()

	if idx, _, err := hnsw.LoadSnapshot(c.snapshotPath(), cfg.Dim, cfg.Metric, cfg.Tuning.hnswConfig(), c.points); err == nil {
		c.index = idx
	} else {
		if !os.IsNotExist(err) {
			logCheckpointWarning("hnsw.snap", err)
		}
		c.index = hnsw.New(cfg.Dim, cfg.Metric, cfg.Tuning.hnswConfig(), c.points)
		// Rebuild the graph over every point restored from vectors.dat; the
		// WAL replay below only covers records logged after that checkpoint.
		for _, id := range c.points.IDs() {
			if vec, err := c.points.Get(id); err == nil {
				if err := c.index.Insert(id, vec); err != nil {
					logCheckpointWarning("hnsw.snap", err)
				}
			}
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []float32]{
		NumCounters: 100_000,
		MaxCost:     1 << 25,
		BufferItems: 64,
	})
	if err != nil {
		log.Printf("velesdb: vector cache disabled for %q: %v", name, err)
	} else {
		c.vectorCache = cache
	}

	engine, err := storage.Open(dir, c)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return c, nil
}

func (c *Collection) snapshotPath() string { return filepath.Join(c.dir, "hnsw.snap") }

// Flush checkpoints the collection: vectors.dat, the HNSW snapshot,
// graph.snap, and payloads.idx are all written before the payload log is
// fsynced and the WAL truncated, per spec.md §4.3. Every one of those
// writes must land before storage.Engine truncates the WAL — the
// checkpoint callback runs inside the engine's single write lock, so no
// concurrent Append can land between a partial snapshot write and the
// truncate that would orphan it.
func (c *Collection) Flush() error {
	return c.engine.Flush(func() error {
		if err := c.points.Save(c.vectorsPath()); err != nil {
			return err
		}
		if _, err := c.index.Save(c.snapshotPath()); err != nil {
			return err
		}
		if err := c.saveGraphSnapshot(); err != nil {
			return err
		}
		return c.savePayloadIndex()
	})
}

// Vacuum physically reclaims every tombstoned HNSW slot: neighbor edges
// pointing to a deleted point are rewired away and the slot itself is
// freed. Deletes already exclude tombstoned points from Search results;
// Vacuum is the explicit, engine-triggered reclamation spec.md §5 calls out
// ("vacuum and rebuild are triggered by explicit calls") rather than
// something that runs automatically in the background.
func (c *Collection) Vacuum() error {
	return c.index.Vacuum()
}

func (c *Collection) Close() error {
	if c.vectorCache != nil {
		c.vectorCache.Close()
	}
	return c.engine.Close()
}

// ---- mutation API (every mutation flows through the WAL) ----

// Upsert stores vec (and optional payload) under id, replacing any prior
// value (spec.md §3: "mutated only by full-value replacement"). The
// payload blob, if present, is appended to payloads.log before the WAL
// record referencing its offset is appended, so a crash between the two
// leaves neither durable (storage.Engine.AppendPayload is not itself
// logged; an orphaned payload blob from a crash mid-upsert is harmless
// dead space, never misattributed to another id).
func (c *Collection) Upsert(id uint64, vec []float32, payload map[string]any) error {
	if len(vec) != c.cfg.Dim {
		return veleserr.New(veleserr.DimensionMismatch, "velesdb: upsert vector length mismatch")
	}
	offset := int64(-1)
	if payload != nil {
		blob, err := marshalProps(payload)
		if err != nil {
			return err
		}
		off, err := c.engine.AppendPayload(blob)
		if err != nil {
			return err
		}
		offset = off
	}
	_, err := c.engine.Append(storage.OpUpsertPoint, encodeUpsertPoint(id, vec, offset))
	return err
}

func (c *Collection) Delete(id uint64) error {
	_, err := c.engine.Append(storage.OpDeletePoint, encodeDeletePoint(id))
	return err
}

func (c *Collection) Get(id uint64) (map[string]any, error) {
	if !c.points.Has(id) {
		return nil, veleserr.New(veleserr.NotFound, "velesdb: point not found")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payloads[id], nil
}

// AddEdge mints a fresh EdgeId up front (graph.Graph.AddEdge would mint its
// own, but ApplyAddEdge needs the id already fixed when it writes the WAL
// record, so the Collection owns edge-id allocation and replays edges by
// id via graph.ReplayEdge, never through graph.AddEdge).
func (c *Collection) AddEdge(src, dst graph.NodeID, label string, props map[string]any) (graph.EdgeID, error) {
	id := atomic.AddUint64(&c.nextEdgeID, 1) - 1
	payload, err := encodeAddEdge(id, src, dst, label, props)
	if err != nil {
		return 0, err
	}
	if _, err := c.engine.Append(storage.OpAddEdge, payload); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Collection) RemoveEdge(id graph.EdgeID) error {
	_, err := c.engine.Append(storage.OpRemoveEdge, encodeRemoveEdge(id))
	return err
}

func (c *Collection) CreateIndex(kind graph.IndexKind, label, property string) error {
	_, err := c.engine.Append(storage.OpCreateIndex, encodeCreateIndex(kind, label, property))
	return err
}

func (c *Collection) DropIndex(label, property string) error {
	_, err := c.engine.Append(storage.OpDropIndex, encodeDropIndex(label, property))
	return err
}

func (c *Collection) ListIndexes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.propIndexes))
	for k := range c.propIndexes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ---- storage.RecordHandler: the only place mutations actually apply ----

func (c *Collection) ApplyUpsertPoint(payload []byte) error {
	id, vec, offset, err := decodeUpsertPoint(payload)
	if err != nil {
		return err
	}
	existed := c.points.Has(id)
	if err := c.points.Insert(id, vec); err != nil {
		return err
	}
	if existed {
		if err := c.index.Delete(id); err != nil && !isNotFound(err) {
			return err
		}
	}
	if err := c.index.Insert(id, vec); err != nil {
		return err
	}
	c.graph.AddNode(id)
	if c.vectorCache != nil {
		c.vectorCache.Del(id)
	}

	var p map[string]any
	if offset >= 0 {
		blob, err := c.engine.ReadPayload(offset)
		if err != nil {
			return err
		}
		p, err = unmarshalProps(blob)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	oldPayload := c.payloads[id]
	c.payloadOffsets[id] = offset
	if p != nil {
		c.payloads[id] = p
	} else {
		delete(c.payloads, id)
	}
	c.mu.Unlock()

	c.indexPayload(id, oldPayload, p)
	return nil
}

func (c *Collection) ApplyDeletePoint(payload []byte) error {
	id, err := decodeDeletePoint(payload)
	if err != nil {
		return err
	}
	if err := c.index.Delete(id); err != nil && !isNotFound(err) {
		return err
	}
	if err := c.points.Delete(id); err != nil && !isNotFound(err) {
		return err
	}
	if err := c.graph.RemoveNode(id); err != nil && !isNotFound(err) {
		return err
	}
	c.text.Delete(id)
	if c.vectorCache != nil {
		c.vectorCache.Del(id)
	}
	c.mu.Lock()
	oldPayload := c.payloads[id]
	delete(c.payloads, id)
	delete(c.payloadOffsets, id)
	c.mu.Unlock()

	c.removeFromPropIndexes(id, oldPayload)
	return nil
}

func (c *Collection) ApplyAddEdge(payload []byte) error {
	id, src, dst, label, props, err := decodeAddEdge(payload)
	if err != nil {
		return err
	}
	bumpEdgeCounter(&c.nextEdgeID, id)
	return c.graph.ReplayEdge(id, src, dst, label, props)
}

func (c *Collection) ApplyRemoveEdge(payload []byte) error {
	id, err := decodeRemoveEdge(payload)
	if err != nil {
		return err
	}
	return c.graph.RemoveEdge(id)
}

// ApplyCreateIndex registers a new property index and backfills it from
// every already-upserted point whose payload carries the indexed field, so
// CREATE INDEX issued after data already exists still satisfies spec.md §3
// invariant 4 ("the id set for (value) contains exactly the live ids whose
// property equals that value") instead of only covering later upserts.
func (c *Collection) ApplyCreateIndex(payload []byte) error {
	kind, label, property, err := decodeCreateIndex(payload)
	if err != nil {
		return err
	}
	pi := graph.NewPropertyIndex(kind, label, property)

	c.mu.Lock()
	c.propIndexes[label+"."+property] = pi
	payloads := make(map[uint64]map[string]any, len(c.payloads))
	for id, p := range c.payloads {
		payloads[id] = p
	}
	c.mu.Unlock()

	for id, p := range payloads {
		if v, ok := p[property]; ok {
			pi.Add(graph.NodeID(id), v)
		}
	}
	return nil
}

func (c *Collection) ApplyDropIndex(payload []byte) error {
	label, property, err := decodeDropIndex(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.propIndexes, label+"."+property)
	c.mu.Unlock()
	return nil
}

// indexPayload mirrors p's declared text/column fields into the BM25 index
// and column store, and old/p's matching fields into every registered
// graph.PropertyIndex (spec.md §4.6). Property-index update failures are
// advisory per spec.md §7 ("do not fail the mutation"); this path never
// returns an error to its caller (ApplyUpsertPoint).
func (c *Collection) indexPayload(id uint64, old, p map[string]any) {
	if c.cfg.TextField != "" {
		if s, ok := p[c.cfg.TextField].(string); ok {
			c.text.Upsert(id, s)
		} else {
			c.text.Delete(id)
		}
	}
	c.mu.RLock()
	cols := make(map[string]*filter.Column, len(c.columns))
	for k, v := range c.columns {
		cols[k] = v
	}
	pis := make([]*graph.PropertyIndex, 0, len(c.propIndexes))
	for _, pi := range c.propIndexes {
		pis = append(pis, pi)
	}
	c.mu.RUnlock()

	for field, col := range cols {
		v, ok := p[field]
		if !ok {
			continue
		}
		printed, numeric, isNumeric := columnValueOf(v)
		if err := col.Set(id, printed, numeric, isNumeric); err != nil {
			log.Printf("velesdb: column %q needs rebuild for id %d: %v", field, id, err)
		}
	}

	nodeID := graph.NodeID(id)
	for _, pi := range pis {
		field := pi.Property()
		if oldVal, ok := old[field]; ok {
			pi.Remove(nodeID, oldVal)
		}
		if newVal, ok := p[field]; ok {
			pi.Add(nodeID, newVal)
		}
	}
}

// removeFromPropIndexes drops a deleted point's indexed property values
// from every registered graph.PropertyIndex so a later Equals/Between scan
// never returns a dead id (spec.md §3 invariant 4).
func (c *Collection) removeFromPropIndexes(id uint64, old map[string]any) {
	if len(old) == 0 {
		return
	}
	c.mu.RLock()
	pis := make([]*graph.PropertyIndex, 0, len(c.propIndexes))
	for _, pi := range c.propIndexes {
		pis = append(pis, pi)
	}
	c.mu.RUnlock()

	nodeID := graph.NodeID(id)
	for _, pi := range pis {
		if v, ok := old[pi.Property()]; ok {
			pi.Remove(nodeID, v)
		}
	}
}

func columnValueOf(v any) (printed string, numeric float64, isNumeric bool) {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%v", n), n, true
	case int:
		return fmt.Sprintf("%v", n), float64(n), true
	case int64:
		return fmt.Sprintf("%v", n), float64(n), true
	case bool:
		return fmt.Sprintf("%v", n), 0, false
	case string:
		return n, 0, false
	default:
		return fmt.Sprintf("%v", n), 0, false
	}
}

func bumpEdgeCounter(counter *uint64, id uint64) {
	for {
		cur := atomic.LoadUint64(counter)
		if id < cur {
			return
		}
		if atomic.CompareAndSwapUint64(counter, cur, id+1) {
			return
		}
	}
}

func isNotFound(err error) bool {
	k, ok := veleserr.KindOf(err)
	return ok && k == veleserr.NotFound
}

// ---- search API ----

// SearchResult is one hydrated hit returned by the Collection's search
// variants.
type SearchResult struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

func (c *Collection) hydrate(id uint64, score float32) SearchResult {
	c.mu.RLock()
	p := c.payloads[id]
	c.mu.RUnlock()
	return SearchResult{ID: id, Score: score, Payload: p}
}

// Search runs a nearest-neighbor query at Balanced quality.
func (c *Collection) Search(query []float32, k int) ([]SearchResult, error) {
	return c.SearchWithQuality(query, k, hnsw.Balanced)
}

// SearchWithQuality runs a nearest-neighbor query at the given quality
// profile (spec.md §4.4).
func (c *Collection) SearchWithQuality(query []float32, k int, quality hnsw.Quality) ([]SearchResult, error) {
	results, err := c.index.Search(query, k, quality)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = c.hydrate(r.ID, r.Distance)
	}
	return out, nil
}

// SearchBatchParallel runs len(queries) independent searches concurrently,
// returning results in the same order as queries.
func (c *Collection) SearchBatchParallel(queries [][]float32, k int, quality hnsw.Quality) ([][]SearchResult, error) {
	out := make([][]SearchResult, len(queries))
	errs := make([]error, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q []float32) {
			defer wg.Done()
			res, err := c.SearchWithQuality(q, k, quality)
			out[i], errs[i] = res, err
		}(i, q)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TextSearch runs a BM25 query over the collection's configured text
// field.
func (c *Collection) TextSearch(query string, k int) ([]SearchResult, error) {
	hits := c.text.Search(query, k)
	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = c.hydrate(h.ID, h.Score)
	}
	return out, nil
}

// HybridSearch fuses a vector search and a text search into one ranked
// list, per spec.md §4.8.
func (c *Collection) HybridSearch(query []float32, text string, k int, strategy fusion.Strategy, weighted fusion.WeightedParams) ([]SearchResult, error) {
	vecResults, err := c.index.Search(query, k, hnsw.Balanced)
	if err != nil {
		return nil, err
	}
	textHits := c.text.Search(text, k)

	streams := []fusion.Stream{
		{Name: "vector", Results: toStreamResults(vecResults)},
		{Name: "bm25", Results: toBM25StreamResults(textHits)},
	}
	fused := fusion.Fuse(streams, strategy, weighted, 0)
	return c.hydrateFused(fused, k), nil
}

// MultiQuerySearch runs several query vectors and fuses their result
// streams into one ranked list via RRF, for callers blending multiple
// representations of the same intent (e.g. query expansion).
func (c *Collection) MultiQuerySearch(queries [][]float32, k int, quality hnsw.Quality) ([]SearchResult, error) {
	batches, err := c.SearchBatchParallel(queries, k, quality)
	if err != nil {
		return nil, err
	}
	streams := make([]fusion.Stream, len(batches))
	for i, b := range batches {
		sr := make([]fusion.StreamResult, len(b))
		for j, r := range b {
			sr[j] = fusion.StreamResult{ID: r.ID, Score: r.Score}
		}
		streams[i] = fusion.Stream{Name: fmt.Sprintf("query_%d", i), Results: sr}
	}
	fused := fusion.Fuse(streams, fusion.RRF, fusion.WeightedParams{}, 0)
	return c.hydrateFused(fused, k), nil
}

func toStreamResults(results []hnsw.Result) []fusion.StreamResult {
	out := make([]fusion.StreamResult, len(results))
	for i, r := range results {
		// HNSW Distance is lower-is-closer; fusion streams are
		// higher-is-closer, so invert before handing scores to Fuse.
		out[i] = fusion.StreamResult{ID: r.ID, Score: -r.Distance}
	}
	return out
}

func toBM25StreamResults(hits []textindex.ScoredResult) []fusion.StreamResult {
	out := make([]fusion.StreamResult, len(hits))
	for i, h := range hits {
		out[i] = fusion.StreamResult{ID: h.ID, Score: h.Score}
	}
	return out
}

func (c *Collection) hydrateFused(fused []fusion.Fused, k int) []SearchResult {
	if k > 0 && k < len(fused) {
		fused = fused[:k]
	}
	out := make([]SearchResult, len(fused))
	for i, f := range fused {
		out[i] = c.hydrate(f.ID, f.Score)
	}
	return out
}

// ---- graph API ----

func (c *Collection) Outgoing(src graph.NodeID, label string) ([]graph.Edge, error) {
	return c.graph.Outgoing(src, label)
}

func (c *Collection) Incoming(dst graph.NodeID, label string) ([]graph.Edge, error) {
	return c.graph.Incoming(dst, label)
}

func (c *Collection) Degree(id graph.NodeID) (int, int, error) {
	return c.graph.Degree(id)
}

func (c *Collection) HasEdge(src, dst graph.NodeID, label string) (bool, error) {
	return c.graph.HasEdge(src, dst, label)
}

// Traverse runs (or resumes, via cursorToken) a paginated BFS/DFS from
// source, returning the next page and a cursor token to pass back for the
// following page. An empty returned token means the traversal is
// exhausted.
func (c *Collection) Traverse(source graph.NodeID, breadthFirst bool, opts graph.TraversalOptions, cursorToken string) ([]graph.TraversalHit, string, error) {
	c.cursorsMu.Lock()
	cur, ok := c.cursors[cursorToken]
	if !ok {
		var err error
		cur, err = c.graph.NewCursor(source, opts, breadthFirst)
		if err != nil {
			c.cursorsMu.Unlock()
			return nil, "", err
		}
		cursorToken = cur.Generation()
		c.cursors[cursorToken] = cur
	}
	c.cursorsMu.Unlock()

	pageSize := opts.Limit
	if pageSize <= 0 {
		pageSize = 100
	}
	hits, err := c.graph.Next(cur, pageSize)
	if err != nil {
		return nil, "", err
	}
	if len(hits) == 0 {
		c.cursorsMu.Lock()
		delete(c.cursors, cursorToken)
		c.cursorsMu.Unlock()
		return hits, "", nil
	}
	return hits, cursorToken, nil
}

// ---- query execution ----

// ExecuteQuery parses, plans, and runs a VelesQL statement against this
// collection's own stores, wiring internal/velesql and internal/executor
// together the way a Collection is the only thing that knows how to
// satisfy an executor.Sources (spec.md §4.9/§4.10).
func (c *Collection) ExecuteQuery(query string, params map[string]any) ([]executor.Row, error) {
	stmt, err := velesql.Parse(query)
	if err != nil {
		return nil, err
	}
	sel, ok := stmt.(*velesql.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("velesdb: compound statements are not yet executable directly")
	}

	var cancel *executor.CancelToken
	if raw, ok := sel.With["timeout_ms"]; ok {
		var ms int
		if _, err := fmt.Sscanf(raw, "%d", &ms); err == nil && ms > 0 {
			cancel = executor.NewCancelToken()
			timer := cancel.WithTimeout(timeMillis(ms))
			defer timer.Stop()
		}
	}

	plan, err := velesql.Plan(sel, c.selectivityEstimator())
	if err != nil {
		return nil, err
	}
	ex := executor.New(c.executorSources())
	return ex.Execute(plan, params, cancel)
}

func (c *Collection) selectivityEstimator() velesql.SelectivityEstimator {
	return selectivityFunc(func(table, column string) float64 {
		c.mu.RLock()
		col, ok := c.columns[column]
		c.mu.RUnlock()
		if !ok {
			return 0.01
		}
		_ = table // columns are not namespaced per table in this engine
		universe := c.points.Len()
		if universe == 0 {
			return 0.01
		}
		best := 1.0
		for _, v := range col.DistinctValues() {
			if sel := col.Selectivity(v); sel < best {
				best = sel
			}
		}
		return best
	})
}

type selectivityFunc func(table, column string) float64

func (f selectivityFunc) Estimate(table, column string) float64 { return f(table, column) }

func (c *Collection) executorSources() *executor.Sources {
	return &executor.Sources{
		ScanIDs: func(table string) ([]uint64, error) {
			return c.allPointIDs(), nil
		},
		VectorSearch: func(table, metric string, query []float32, k int, quality string, efSearch int) ([]executor.VectorHit, error) {
			q := parseQuality(quality)
			results, err := c.index.Search(query, k, q)
			if err != nil {
				return nil, err
			}
			hits := make([]executor.VectorHit, len(results))
			for i, r := range results {
				hits[i] = executor.VectorHit{ID: r.ID, Score: float64(r.Distance)}
			}
			return hits, nil
		},
		IndexLookup: func(table string, predicate velesql.Expr, params map[string]any, candidateIDs []uint64) ([]uint64, error) {
			return c.lookupPredicate(predicate, params, candidateIDs)
		},
		TextSearch: func(field, query string, k int) ([]executor.TextHit, error) {
			hits := c.text.Search(query, k)
			out := make([]executor.TextHit, len(hits))
			for i, h := range hits {
				out[i] = executor.TextHit{ID: h.ID, Score: float64(h.Score)}
			}
			return out, nil
		},
		GraphTraverse: func(source uint64, relType string, minHops, maxHops int) ([]uint64, error) {
			hits, err := c.graph.BFS(graph.NodeID(source), graph.TraversalOptions{
				MaxDepth: maxHops,
				Label:    relType,
			})
			if err != nil {
				return nil, err
			}
			out := make([]uint64, 0, len(hits))
			for _, h := range hits {
				if h.Depth < minHops {
					continue
				}
				out = append(out, uint64(h.Target))
			}
			return out, nil
		},
		FetchRow: func(table string, id uint64) (map[string]any, error) {
			c.mu.RLock()
			p, ok := c.payloads[id]
			c.mu.RUnlock()
			if !ok {
				if !c.points.Has(id) {
					return nil, veleserr.New(veleserr.NotFound, "velesdb: row not found")
				}
			}
			row := make(map[string]any, len(p))
			for k, v := range p {
				row[k] = v
				row[table+"."+k] = v
			}
			return row, nil
		},
	}
}

// allPointIDs enumerates every live point, independent of whether it
// carries a payload (a table scan must see points upserted with a nil
// payload too, not just the ones with indexable fields).
func (c *Collection) allPointIDs() []uint64 {
	return c.points.IDs()
}

// lookupPredicate evaluates one pushed-down predicate directly against the
// graph property index or the column store, restricting to candidateIDs
// when given (nil means "the whole collection").
func (c *Collection) lookupPredicate(predicate velesql.Expr, params map[string]any, candidateIDs []uint64) ([]uint64, error) {
	bin, ok := predicate.(*velesql.BinaryExpr)
	if !ok {
		return candidateIDs, nil
	}
	ref, value, ok := refAndLiteral(bin, params)
	if !ok {
		return candidateIDs, nil
	}

	c.mu.RLock()
	col, hasCol := c.columns[ref.Name]
	c.mu.RUnlock()
	if hasCol && bin.Op == velesql.OpEq {
		printed, _, _ := columnValueOf(value)
		bm := col.Equals(printed)
		return intersectBitmap(bm, candidateIDs), nil
	}

	c.mu.RLock()
	var pi *graph.PropertyIndex
	for _, cand := range c.propIndexes {
		if cand.Property() == ref.Name && cand.Kind() == graph.Hash {
			pi = cand
			break
		}
	}
	c.mu.RUnlock()
	if pi != nil && bin.Op == velesql.OpEq {
		return intersectIDs(pi.Equals(value), candidateIDs), nil
	}

	return candidateIDs, nil
}

func refAndLiteral(b *velesql.BinaryExpr, params map[string]any) (*velesql.ColumnRef, any, bool) {
	if ref, ok := b.Left.(*velesql.ColumnRef); ok {
		v, ok := literalOf(b.Right, params)
		return ref, v, ok
	}
	if ref, ok := b.Right.(*velesql.ColumnRef); ok {
		v, ok := literalOf(b.Left, params)
		return ref, v, ok
	}
	return nil, nil, false
}

func literalOf(e velesql.Expr, params map[string]any) (any, bool) {
	switch v := e.(type) {
	case *velesql.Literal:
		switch v.Kind {
		case velesql.LitString:
			return v.Str, true
		case velesql.LitNumber:
			return v.Num, true
		case velesql.LitBool:
			return v.Bool, true
		}
		return nil, false
	case *velesql.Param:
		val, ok := params[v.Name]
		return val, ok
	}
	return nil, false
}

func intersectBitmap(bm *filter.Bitmap, candidateIDs []uint64) []uint64 {
	if candidateIDs == nil {
		return bm.ToSorted()
	}
	out := make([]uint64, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if bm.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

func intersectIDs(ids []uint64, candidateIDs []uint64) []uint64 {
	if candidateIDs == nil {
		return ids
	}
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	out := make([]uint64, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

func parseQuality(s string) hnsw.Quality {
	switch s {
	case "Fast":
		return hnsw.Fast
	case "Accurate":
		return hnsw.Accurate
	case "HighRecall":
		return hnsw.HighRecall
	case "Perfect":
		return hnsw.Perfect
	default:
		return hnsw.Balanced
	}
}
