package velesdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/velesdb/velesdb/internal/filter"
	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/quant"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// collectionMeta is the persisted, self-describing record for one
// collection: everything metaToConfig needs to reopen it without the
// caller re-supplying dim/metric/storage mode, mirroring the teacher's
// spaceMeta in internal/spaces/space_manager.go.
type collectionMeta struct {
	Name           string              `yaml:"name"`
	Dim            int                 `yaml:"dim"`
	Metric         string              `yaml:"metric"`
	StorageMode    string              `yaml:"storage_mode"`
	TextField      string              `yaml:"text_field,omitempty"`
	GraphShardCount int                `yaml:"graph_shard_count,omitempty"`
	IndexedColumns []indexedColumnMeta `yaml:"indexed_columns,omitempty"`
}

type indexedColumnMeta struct {
	Field string `yaml:"field"`
	Type  string `yaml:"type"`
}

// Database owns a set of named Collections persisted under one base
// directory, mirroring internal/spaces/space_manager.go's
// named-engine-map-plus-metadata-file pattern (here collections.yaml via
// gopkg.in/yaml.v3 in place of the teacher's metadata.json) generalized
// from "one engine kind per space" to "one Collection — vector store,
// HNSW index, text index, graph, column store, all together — per name"
// (spec.md §9: "A Database owns a set of Collections keyed by name").
type Database struct {
	mu          sync.RWMutex
	baseDir     string
	metaPath    string
	tuning      Tuning
	collections map[string]*Collection
	metas       map[string]collectionMeta
}

// Open opens (or creates, if dir is empty or new) a Database rooted at dir:
// it loads collections.yaml and every velesdb.yaml tuning override, then
// reopens each listed collection in turn — replaying its WAL the same way
// NewSpaceManager eagerly reopens every space it finds in metadata.json.
func Open(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tuning, err := LoadTuning(dir)
	if err != nil {
		return nil, err
	}
	db := &Database{
		baseDir:     dir,
		metaPath:    filepath.Join(dir, "collections.yaml"),
		tuning:      tuning,
		collections: make(map[string]*Collection),
		metas:       make(map[string]collectionMeta),
	}
	if err := db.loadMetas(); err != nil {
		return nil, err
	}
	for name, meta := range db.metas {
		cfg, err := metaToConfig(meta, tuning)
		if err != nil {
			return nil, fmt.Errorf("velesdb: collection %q metadata: %w", name, err)
		}
		c, err := openCollection(filepath.Join(dir, name), name, cfg)
		if err != nil {
			return nil, fmt.Errorf("velesdb: reopening collection %q: %w", name, err)
		}
		db.collections[name] = c
	}
	return db, nil
}

// Create opens a Database the same way Open does. Both exist as named
// entry points (spec.md §6: "Database::open(path) / create / close") since
// this engine's on-disk layout is self-describing — collections.yaml lists
// what exists, so there is nothing a fresh "create" needs to do that
// reopening an empty directory doesn't already do.
func Create(dir string) (*Database, error) { return Open(dir) }

func (db *Database) loadMetas() error {
	data, err := os.ReadFile(db.metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var metas []collectionMeta
	if err := yaml.Unmarshal(data, &metas); err != nil {
		return err
	}
	for _, m := range metas {
		db.metas[m.Name] = m
	}
	return nil
}

// saveMetas must be called with db.mu held.
func (db *Database) saveMetas() error {
	metas := make([]collectionMeta, 0, len(db.metas))
	for _, m := range db.metas {
		metas = append(metas, m)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	data, err := yaml.Marshal(metas)
	if err != nil {
		return err
	}
	return os.WriteFile(db.metaPath, data, 0o644)
}

func metaToConfig(m collectionMeta, tuning Tuning) (CollectionConfig, error) {
	metric, ok := kernel.ParseMetric(m.Metric)
	if !ok {
		return CollectionConfig{}, fmt.Errorf("unknown metric %q", m.Metric)
	}
	mode, ok := quant.ParseMode(m.StorageMode)
	if !ok {
		return CollectionConfig{}, fmt.Errorf("unknown storage mode %q", m.StorageMode)
	}
	cols := make([]IndexedColumn, len(m.IndexedColumns))
	for i, ic := range m.IndexedColumns {
		ct, ok := filter.ParseColumnType(ic.Type)
		if !ok {
			return CollectionConfig{}, fmt.Errorf("unknown column type %q", ic.Type)
		}
		cols[i] = IndexedColumn{Field: ic.Field, Type: ct}
	}
	shardCount := m.GraphShardCount
	if shardCount <= 0 {
		shardCount = tuning.GraphShardCount
	}
	return CollectionConfig{
		Dim:            m.Dim,
		Metric:         metric,
		StorageMode:    mode,
		TextField:      m.TextField,
		IndexedColumns: cols,
		ShardCount:     shardCount,
		Tuning:         tuning,
	}, nil
}

func configToMeta(name string, cfg CollectionConfig) collectionMeta {
	cols := make([]indexedColumnMeta, len(cfg.IndexedColumns))
	for i, ic := range cfg.IndexedColumns {
		cols[i] = indexedColumnMeta{Field: ic.Field, Type: ic.Type.String()}
	}
	return collectionMeta{
		Name:            name,
		Dim:             cfg.Dim,
		Metric:          cfg.Metric.String(),
		StorageMode:     cfg.StorageMode.String(),
		TextField:       cfg.TextField,
		GraphShardCount: cfg.ShardCount,
		IndexedColumns:  cols,
	}
}

// CreateCollection creates, persists, and opens a new named collection with
// a fixed dim (spec.md §3: "a collection's dim is fixed at creation").
// Returns Conflict if a collection by that name already exists.
func (db *Database) CreateCollection(name string, dim int, metric kernel.Metric, mode quant.Mode, opts ...CollectionOption) (*Collection, error) {
	if dim <= 0 {
		return nil, veleserr.New(veleserr.DimensionMismatch, "velesdb: collection dim must be > 0")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[name]; exists {
		return nil, veleserr.New(veleserr.Conflict, fmt.Sprintf("velesdb: collection %q already exists", name))
	}

	cfg := CollectionConfig{Dim: dim, Metric: metric, StorageMode: mode, ShardCount: db.tuning.GraphShardCount, Tuning: db.tuning}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := openCollection(filepath.Join(db.baseDir, name), name, cfg)
	if err != nil {
		return nil, err
	}

	db.collections[name] = c
	db.metas[name] = configToMeta(name, cfg)
	if err := db.saveMetas(); err != nil {
		delete(db.collections, name)
		delete(db.metas, name)
		c.Close()
		return nil, err
	}
	return c, nil
}

// Collection looks up an already-open collection by name.
func (db *Database) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.collections[name]
	if !ok {
		return nil, veleserr.New(veleserr.NotFound, fmt.Sprintf("velesdb: collection %q not found", name))
	}
	return c, nil
}

// DeleteCollection closes and removes every file belonging to
// name. The metadata file is rewritten (dropping name) only after the
// collection directory is gone, so a crash mid-delete leaves, at worst, an
// orphaned empty directory with no entry in collections.yaml — never a
// collections.yaml entry pointing at files that no longer exist.
func (db *Database) DeleteCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.collections[name]
	if !ok {
		return veleserr.New(veleserr.NotFound, fmt.Sprintf("velesdb: collection %q not found", name))
	}
	if err := c.Close(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(db.baseDir, name)); err != nil {
		return err
	}
	delete(db.collections, name)
	delete(db.metas, name)
	return db.saveMetas()
}

// ListCollections returns every collection name, sorted.
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every open collection without writing a checkpoint (each
// mutation is already durable in its WAL). The first error, if any,
// is returned after every collection has had a chance to close; a failure
// closing one collection never leaves the others open.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	for name, c := range db.collections {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("velesdb: closing collection %q: %w", name, err)
		}
	}
	db.collections = make(map[string]*Collection)
	return firstErr
}
