package quant

import (
	"math"
	"sync"
	"testing"
)

func TestFullRoundTrip(t *testing.T) {
	s := New(Full, 4)
	vec := []float32{1, -2, 3.5, 0}
	if err := s.Insert(1, vec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: want %v got %v", i, vec[i], got[i])
		}
	}
}

func TestSQ8QuantizationError(t *testing.T) {
	s := New(SQ8, 3)
	vec := []float32{-1, 0, 5}
	if err := s.Insert(1, vec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, _ := s.Get(1)
	maxErr := float32(5 - (-1)) / 255
	for i := range vec {
		if math.Abs(float64(got[i]-vec[i])) > float64(maxErr)+1e-5 {
			t.Errorf("component %d: |%v-%v| exceeds quantization bound %v", i, got[i], vec[i], maxErr)
		}
	}
}

func TestBinarySignPreserving(t *testing.T) {
	s := New(Binary, 8)
	vec := []float32{0.5, -0.1, 0.2, -0.3, 0.4, -0.5, 0.6, -0.7}
	if err := s.Insert(10, vec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	raw, err := s.GetBinary(10)
	if err != nil {
		t.Fatalf("GetBinary failed: %v", err)
	}
	if raw[0] != 0b10101010 {
		t.Errorf("expected bit pattern 10101010, got %08b", raw[0])
	}
	got, _ := s.Get(10)
	for i, v := range vec {
		wantPositive := v >= 0
		gotPositive := got[i] > 0
		if wantPositive != gotPositive {
			t.Errorf("component %d: sign not preserved, want positive=%v got=%v", i, wantPositive, gotPositive)
		}
	}
}

func TestDimensionMismatchRejected(t *testing.T) {
	s := New(Full, 4)
	if err := s.Insert(1, []float32{1, 2, 3}); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestDeleteAndFreelistReuse(t *testing.T) {
	s := New(Full, 2)
	s.Insert(1, []float32{1, 1})
	s.Insert(2, []float32{2, 2})
	if err := s.Delete(1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Has(1) {
		t.Errorf("expected id 1 to be gone")
	}
	if err := s.Insert(3, []float32{3, 3}); err != nil {
		t.Fatalf("Insert after delete failed: %v", err)
	}
	got, err := s.Get(3)
	if err != nil || got[0] != 3 {
		t.Errorf("expected freelist-reused slot to hold id 3's vector, got %v err=%v", got, err)
	}
	if s.Len() != 2 {
		t.Errorf("expected len 2 after delete+reinsert, got %d", s.Len())
	}
}

func TestDeleteNotFound(t *testing.T) {
	s := New(Full, 2)
	if err := s.Delete(999); err == nil {
		t.Errorf("expected NotFound error deleting unknown id")
	}
}

func TestCollectIntoRowMajor(t *testing.T) {
	s := New(Full, 2)
	s.Insert(1, []float32{1, 1})
	s.Insert(2, []float32{2, 2})
	buf := make([]float32, 4)
	n := s.CollectInto(buf, []PointID{1, 2})
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	if buf[0] != 1 || buf[1] != 1 || buf[2] != 2 || buf[3] != 2 {
		t.Errorf("unexpected row-major layout: %v", buf)
	}
}

func TestCollectMajorDimensionMajor(t *testing.T) {
	s := New(Full, 2)
	s.Insert(1, []float32{1, 10})
	s.Insert(2, []float32{2, 20})
	buf := make([]float32, 4)
	n := s.CollectMajor(buf, []PointID{1, 2})
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
	// dim 0 row: [1, 2], dim 1 row: [10, 20]
	if buf[0] != 1 || buf[1] != 2 || buf[2] != 10 || buf[3] != 20 {
		t.Errorf("unexpected dimension-major layout: %v", buf)
	}
}

// TestConcurrentInsertAndRead exercises the spec.md §5 "shared read,
// exclusive write per slot" contract: one goroutine keeps inserting (which
// may grow the slot table and backing arenas), while others concurrently
// call Get/Has/IDs/CollectInto/Len. Under `go test -race` this fails if
// Store's fields are ever touched without s.mu.
func TestConcurrentInsertAndRead(t *testing.T) {
	s := New(Full, 4)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for id := uint64(1); id <= n; id++ {
			if err := s.Insert(id, []float32{float32(id), 0, 0, 0}); err != nil {
				t.Errorf("Insert(%d) failed: %v", id, err)
			}
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]float32, 4)
			for i := 0; i < n; i++ {
				_ = s.Has(uint64(i%n + 1))
				_ = s.Len()
				_ = s.IDs()
				if v, err := s.Get(uint64(i%n + 1)); err == nil {
					_ = v
				}
				_ = s.CollectInto(buf, []PointID{uint64(i%n + 1)})
			}
		}()
	}
	wg.Wait()

	if s.Len() != n {
		t.Fatalf("expected %d live points, got %d", n, s.Len())
	}
}
