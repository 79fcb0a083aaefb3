package hnsw

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/velesdb/velesdb/internal/kernel"
)

type memSource struct {
	dim int
	m   map[uint64][]float32
}

func newMemSource(dim int) *memSource { return &memSource{dim: dim, m: make(map[uint64][]float32)} }

func (s *memSource) Get(id uint64) ([]float32, error) {
	v, ok := s.m[id]
	if !ok {
		return nil, fmt.Errorf("no such id %d", id)
	}
	return v, nil
}

func (s *memSource) put(id uint64, v []float32) { s.m[id] = v }

func randVec(dim int, r *rand.Rand) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()
	}
	return v
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	dim := 8
	src := newMemSource(dim)
	idx := New(dim, kernel.Euclidean, Config{M: 8, EfConstruction: 50}, src)

	for i := uint64(0); i < 200; i++ {
		v := randVec(dim, r)
		src.put(i, v)
		if err := idx.Insert(i, v); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	query := src.m[42]
	results, err := idx.Search(query, 5, Accurate)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results")
	}
	if results[0].ID != 42 {
		t.Errorf("expected exact self-match as closest, got id=%d dist=%v", results[0].ID, results[0].Distance)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not sorted ascending: %v", results)
		}
	}
}

func TestPerfectQualityMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	dim := 6
	src := newMemSource(dim)
	idx := New(dim, kernel.Cosine, Config{M: 6, EfConstruction: 30}, src)

	for i := uint64(0); i < 50; i++ {
		v := randVec(dim, r)
		src.put(i, v)
		idx.Insert(i, v)
	}

	query := randVec(dim, r)
	got, err := idx.Search(query, 3, Perfect)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want, err := idx.bruteForce(query, 3)
	if err != nil {
		t.Fatalf("bruteForce failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if got[i].ID != want[i].ID {
			t.Errorf("index %d: got id=%d want id=%d", i, got[i].ID, want[i].ID)
		}
	}
}

func TestDeleteTombstonesUntilVacuum(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	dim := 4
	src := newMemSource(dim)
	idx := New(dim, kernel.Euclidean, Config{M: 4, EfConstruction: 20}, src)

	for i := uint64(0); i < 30; i++ {
		v := randVec(dim, r)
		src.put(i, v)
		idx.Insert(i, v)
	}
	if err := idx.Delete(15); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Tombstoned, not yet reclaimed: the node and its edges are still
	// present, but it never appears in search results.
	if idx.Len() != 30 {
		t.Errorf("expected 30 nodes still present before Vacuum, got %d", idx.Len())
	}
	results, err := idx.Search(src.m[15], 30, Balanced)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, res := range results {
		if res.ID == 15 {
			t.Errorf("expected tombstoned point 15 excluded from search results")
		}
	}

	if err := idx.Vacuum(); err != nil {
		t.Fatalf("Vacuum failed: %v", err)
	}
	if idx.Len() != 29 {
		t.Errorf("expected 29 nodes after Vacuum, got %d", idx.Len())
	}
	for _, n := range idx.nodes {
		for _, layer := range n.neighbors {
			for _, p := range layer {
				if p == 15 {
					t.Errorf("found dangling edge to vacuumed point 15")
				}
			}
		}
	}
}

func TestDeleteNotFound(t *testing.T) {
	src := newMemSource(4)
	idx := New(4, kernel.Euclidean, Config{M: 4, EfConstruction: 20}, src)
	if err := idx.Delete(1); err == nil {
		t.Errorf("expected NotFound error")
	}
}

func TestSnapshotSaveLoadRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	dim := 5
	src := newMemSource(dim)
	idx := New(dim, kernel.Dot, Config{M: 6, EfConstruction: 30}, src)
	for i := uint64(0); i < 40; i++ {
		v := randVec(dim, r)
		src.put(i, v)
		idx.Insert(i, v)
	}

	path := t.TempDir() + "/hnsw.snap"
	tag1, err := idx.Save(path)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, tag2, err := LoadSnapshot(path, dim, kernel.Dot, Config{M: 6, EfConstruction: 30}, src)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if tag1 != tag2 {
		t.Errorf("version tag mismatch: saved %q loaded %q", tag1, tag2)
	}
	if loaded.Len() != idx.Len() {
		t.Errorf("node count mismatch: got %d want %d", loaded.Len(), idx.Len())
	}
}

func TestSnapshotChecksumMismatchIsCorruption(t *testing.T) {
	dim := 3
	src := newMemSource(dim)
	idx := New(dim, kernel.Euclidean, Config{M: 4, EfConstruction: 10}, src)
	src.put(1, []float32{1, 2, 3})
	idx.Insert(1, []float32{1, 2, 3})

	path := t.TempDir() + "/hnsw.snap"
	if _, err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0xFF // corrupt the trailing CRC32 byte
	os.WriteFile(path, data, 0666)

	_, _, err := LoadSnapshot(path, dim, kernel.Euclidean, Config{M: 4, EfConstruction: 10}, src)
	if err == nil {
		t.Errorf("expected Corruption error for tampered snapshot")
	}
}
