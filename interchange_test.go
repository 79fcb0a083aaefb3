package velesdb

import (
	"bytes"
	"testing"

	"github.com/velesdb/velesdb/internal/kernel"
	"github.com/velesdb/velesdb/internal/quant"
)

func TestExportImportRoundTrip(t *testing.T) {
	src, err := openCollection(t.TempDir(), "src", CollectionConfig{Dim: 3, Metric: kernel.Euclidean, StorageMode: quant.Full, Tuning: DefaultTuning()})
	if err != nil {
		t.Fatalf("openCollection failed: %v", err)
	}
	defer src.Close()

	vectors := map[uint64][]float32{
		1: {1, 2, 3},
		2: {-1, 0, 4},
		3: {0, 0, 0},
	}
	for id, vec := range vectors {
		if err := src.Upsert(id, vec, nil); err != nil {
			t.Fatalf("Upsert %d failed: %v", id, err)
		}
	}

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst, err := openCollection(t.TempDir(), "dst", CollectionConfig{Dim: 3, Metric: kernel.Euclidean, StorageMode: quant.Full, Tuning: DefaultTuning()})
	if err != nil {
		t.Fatalf("openCollection failed: %v", err)
	}
	defer dst.Close()

	if err := dst.Import(&buf); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	for id, want := range vectors {
		got, err := dst.points.Get(id)
		if err != nil {
			t.Fatalf("Get %d failed: %v", id, err)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("id %d component %d: want %v got %v", id, i, want[i], got[i])
			}
		}
	}
}

func TestImportRejectsDimensionMismatch(t *testing.T) {
	src, err := openCollection(t.TempDir(), "src", CollectionConfig{Dim: 3, Metric: kernel.Cosine, StorageMode: quant.Full, Tuning: DefaultTuning()})
	if err != nil {
		t.Fatalf("openCollection failed: %v", err)
	}
	defer src.Close()
	if err := src.Upsert(1, []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst, err := openCollection(t.TempDir(), "dst", CollectionConfig{Dim: 4, Metric: kernel.Cosine, StorageMode: quant.Full, Tuning: DefaultTuning()})
	if err != nil {
		t.Fatalf("openCollection failed: %v", err)
	}
	defer dst.Close()

	if err := dst.Import(&buf); err == nil {
		t.Errorf("expected dimension mismatch error on import")
	}
}

func TestVectorsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := CollectionConfig{Dim: 2, Metric: kernel.Cosine, StorageMode: quant.SQ8, Tuning: DefaultTuning()}

	c, err := openCollection(dir, "c", cfg)
	if err != nil {
		t.Fatalf("openCollection failed: %v", err)
	}
	if err := c.Upsert(1, []float32{0.5, -0.5}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := openCollection(dir, "c", cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if !reopened.points.Has(1) {
		t.Fatalf("expected point 1 to survive checkpoint+reopen")
	}
	ids := reopened.allPointIDs()
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("expected allPointIDs to report [1], got %v", ids)
	}
}
