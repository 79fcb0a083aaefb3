package filter

import (
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/velesdb/velesdb/internal/veleserr"
)

// ColumnType is the typed storage kind for a mirrored payload field.
type ColumnType uint8

const (
	Int64 ColumnType = iota
	Float64
	Bool
	String
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "Int64"
	case Float64:
		return "Float64"
	case Bool:
		return "Bool"
	case String:
		return "String"
	default:
		return "Unknown"
	}
}

// ParseColumnType maps a collection config's column type name to a
// ColumnType, mirroring kernel.ParseMetric/quant.ParseMode's allow-list
// pattern.
func ParseColumnType(name string) (ColumnType, bool) {
	switch name {
	case "Int64":
		return Int64, true
	case "Float64":
		return Float64, true
	case "Bool":
		return Bool, true
	case "String":
		return String, true
	}
	return 0, false
}

type rangeItem struct {
	value float64
	dict  int64
}

func (r rangeItem) Less(other btree.Item) bool {
	return r.value < other.(rangeItem).value
}

// Column mirrors one payload field into a typed, dictionary-encoded
// structure with one bitmap per distinct value, per spec.md §4.7.
type Column struct {
	typ ColumnType

	mu         sync.RWMutex
	dictionary map[string]int64 // interned string/printed-value -> dict id
	reverse    []string         // dict id -> printed value
	bitmaps    map[int64]*Bitmap
	rangeIdx   *btree.BTree // numeric columns only: value -> dict id, for range queries
	universe   int
}

func NewColumn(typ ColumnType) *Column {
	c := &Column{typ: typ, dictionary: make(map[string]int64), bitmaps: make(map[int64]*Bitmap)}
	if typ == Int64 || typ == Float64 {
		c.rangeIdx = btree.New(32)
	}
	return c
}

// Set records that id has printedValue (the string form of a typed
// value — callers normalize before calling), clearing id from the bitmap of
// any other value it held. Column stores print forms, not raw widths, and
// does no width check of its own; Set always returns nil.
func (c *Column) Set(id uint64, printedValue string, numeric float64, isNumeric bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dictID, ok := c.dictionary[printedValue]
	if !ok {
		dictID = int64(len(c.reverse))
		c.dictionary[printedValue] = dictID
		c.reverse = append(c.reverse, printedValue)
		c.bitmaps[dictID] = NewBitmap()
		if isNumeric && c.rangeIdx != nil {
			c.rangeIdx.ReplaceOrInsert(rangeItem{value: numeric, dict: dictID})
		}
	}
	present := false
	for d, bm := range c.bitmaps {
		if bm.Has(id) {
			present = true
			if d != dictID {
				bm.Clear(id)
			}
		}
	}
	c.bitmaps[dictID].Set(id)
	if !present {
		c.universe++
	}
	return nil
}

// Equals returns the bitmap of ids whose value equals printedValue
// (case-sensitive string compare, direct dictionary lookup).
func (c *Column) Equals(printedValue string) *Bitmap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dictID, ok := c.dictionary[printedValue]
	if !ok {
		return NewBitmap()
	}
	return c.bitmaps[dictID]
}

// Range returns the union of bitmaps for every distinct value within
// [lo, hi] (numeric columns only).
func (c *Column) Range(lo, hi float64) (*Bitmap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rangeIdx == nil {
		return nil, veleserr.New(veleserr.Corruption, "filter: range query on non-numeric column")
	}
	out := NewBitmap()
	c.rangeIdx.AscendRange(rangeItem{value: lo}, rangeItem{value: hi + smallEpsilon}, func(item btree.Item) bool {
		r := item.(rangeItem)
		out = out.Or(c.bitmaps[r.dict])
		return true
	})
	return out, nil
}

const smallEpsilon = 1e-9

// Selectivity reports the fraction of rows matching printedValue.
func (c *Column) Selectivity(printedValue string) float64 {
	c.mu.RLock()
	universe := c.universe
	c.mu.RUnlock()
	return c.Equals(printedValue).Selectivity(universe)
}

// DistinctValues returns every distinct printed value currently indexed,
// sorted for deterministic iteration (diagnostics/EXPLAIN output).
func (c *Column) DistinctValues() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := append([]string(nil), c.reverse...)
	sort.Strings(out)
	return out
}
