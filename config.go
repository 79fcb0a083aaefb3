package velesdb

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/velesdb/velesdb/internal/filter"
	"github.com/velesdb/velesdb/internal/hnsw"
)

// Tuning holds the collection-defaults a Database may read from an optional
// velesdb.yaml in its base directory, mirroring the teacher's
// metadata.json idiom in internal/spaces/space_manager.go but for runtime
// tuning knobs rather than per-space identity (identity lives in
// collections.yaml, see database.go). Absence of the file means every
// field below falls back to its compiled-in default.
type Tuning struct {
	HNSW struct {
		M              int `yaml:"m"`
		EfConstruction int `yaml:"ef_construction"`
	} `yaml:"hnsw"`
	EfSearch struct {
		Fast       int `yaml:"fast"`
		Balanced   int `yaml:"balanced"`
		Accurate   int `yaml:"accurate"`
		HighRecall int `yaml:"high_recall"`
	} `yaml:"ef_search"`
	BM25 struct {
		K1 float64 `yaml:"k1"`
		B  float64 `yaml:"b"`
	} `yaml:"bm25"`
	GraphShardCount      int     `yaml:"graph_shard_count"`
	SelectivityThreshold float64 `yaml:"selectivity_threshold"`
}

// DefaultTuning returns the compiled-in defaults used when velesdb.yaml is
// absent: hnsw.ForDatasetSize's small-dataset preset, S=256 graph shards,
// BM25 k1=1.2/b=0.75, and the planner's 10% selectivity threshold.
func DefaultTuning() Tuning {
	var t Tuning
	preset := hnsw.ForDatasetSize(0)
	t.HNSW.M = preset.M
	t.HNSW.EfConstruction = preset.EfConstruction
	t.EfSearch.Fast = 64
	t.EfSearch.Balanced = 128
	t.EfSearch.Accurate = 256
	t.EfSearch.HighRecall = 1024
	t.BM25.K1 = 1.2
	t.BM25.B = 0.75
	t.GraphShardCount = 256
	t.SelectivityThreshold = 0.10
	return t
}

// LoadTuning reads velesdb.yaml from dir, overlaying it on DefaultTuning; a
// missing file is not an error.
func LoadTuning(dir string) (Tuning, error) {
	t := DefaultTuning()
	data, err := os.ReadFile(dir + "/velesdb.yaml")
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) hnswConfig() hnsw.Config {
	return hnsw.Config{M: t.HNSW.M, EfConstruction: t.HNSW.EfConstruction}
}

// CollectionOption customizes a CollectionConfig at Database.CreateCollection
// time, the way the teacher's CreateSpace takes a flat parameter list for
// the handful of knobs each engine kind needs — generalized here to
// optional knobs since a Collection has more of them than a bare
// key-value/vector space does.
type CollectionOption func(*CollectionConfig)

// WithTextField designates field as the payload field the BM25 index covers.
func WithTextField(field string) CollectionOption {
	return func(cfg *CollectionConfig) { cfg.TextField = field }
}

// WithIndexedColumn mirrors payload field name into the column store as
// typ, for planner pushdown.
func WithIndexedColumn(name string, typ filter.ColumnType) CollectionOption {
	return func(cfg *CollectionConfig) {
		cfg.IndexedColumns = append(cfg.IndexedColumns, IndexedColumn{Field: name, Type: typ})
	}
}

// WithGraphShardCount overrides the tuning default's graph shard count for
// one collection.
func WithGraphShardCount(n int) CollectionOption {
	return func(cfg *CollectionConfig) { cfg.ShardCount = n }
}
