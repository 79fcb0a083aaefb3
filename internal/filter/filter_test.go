package filter

import "testing"

func TestBitmapSetHasClear(t *testing.T) {
	b := NewBitmap()
	b.Set(5)
	b.Set(130)
	if !b.Has(5) || !b.Has(130) {
		t.Fatalf("expected 5 and 130 set")
	}
	b.Clear(5)
	if b.Has(5) {
		t.Errorf("expected 5 cleared")
	}
	if b.Count() != 1 {
		t.Errorf("expected count 1, got %d", b.Count())
	}
}

func TestBitmapAndOrNot(t *testing.T) {
	a := NewBitmap()
	a.Set(1)
	a.Set(2)
	b := NewBitmap()
	b.Set(2)
	b.Set(3)

	and := a.And(b)
	if and.Count() != 1 || !and.Has(2) {
		t.Errorf("expected AND={2}, got %v", and.ToSorted())
	}
	or := a.Or(b)
	if or.Count() != 3 {
		t.Errorf("expected OR count 3, got %d", or.Count())
	}
	not := a.Not(4)
	if not.Has(1) || not.Has(2) || !not.Has(0) || !not.Has(3) {
		t.Errorf("expected NOT(a) over universe 4 = {0,3}, got %v", not.ToSorted())
	}
}

func TestBitmapSelectivity(t *testing.T) {
	b := NewBitmap()
	b.Set(1)
	b.Set(2)
	if got := b.Selectivity(10); got != 0.2 {
		t.Errorf("expected selectivity 0.2, got %v", got)
	}
}

func TestColumnEquality(t *testing.T) {
	c := NewColumn(String)
	c.Set(1, "nyc", 0, false)
	c.Set(2, "nyc", 0, false)
	c.Set(3, "sf", 0, false)

	got := c.Equals("nyc")
	if got.Count() != 2 || !got.Has(1) || !got.Has(2) {
		t.Errorf("expected {1,2} for nyc, got %v", got.ToSorted())
	}
}

func TestColumnRange(t *testing.T) {
	c := NewColumn(Int64)
	c.Set(1, "20", 20, true)
	c.Set(2, "30", 30, true)
	c.Set(3, "40", 40, true)

	got, err := c.Range(25, 35)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if got.Count() != 1 || !got.Has(2) {
		t.Errorf("expected only id 2 in [25,35], got %v", got.ToSorted())
	}
}

func TestColumnRangeOnNonNumericRejected(t *testing.T) {
	c := NewColumn(String)
	if _, err := c.Range(0, 1); err == nil {
		t.Errorf("expected error for range query on non-numeric column")
	}
}

func TestNarrowToInt32RejectsOverflow(t *testing.T) {
	if _, err := NarrowToInt32(1 << 40); err == nil {
		t.Errorf("expected IndexOverflow for value exceeding int32 range")
	}
	if v, err := NarrowToInt32(42); err != nil || v != 42 {
		t.Errorf("expected 42 to narrow cleanly, got %v %v", v, err)
	}
}

func TestComparableRejectsCrossShape(t *testing.T) {
	if Comparable([]any{1, 2}, "scalar") {
		t.Errorf("expected array vs scalar to be incomparable")
	}
	if !Comparable(1, 2) {
		t.Errorf("expected two scalars to be comparable")
	}
}
