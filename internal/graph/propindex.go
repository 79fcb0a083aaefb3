package graph

import (
	"sync"

	"github.com/google/btree"
)

// IndexKind selects the structure backing a property index: Hash answers
// equality only; Range answers <, <=, >, >=, BETWEEN.
type IndexKind uint8

const (
	Hash IndexKind = iota
	Range
)

// propItem is a google/btree.Item ordering entries by their property value
// then by id, so BTree.AscendRange can return a stable, ordered scan.
type propItem struct {
	value float64
	id    NodeID
}

func (p propItem) Less(other btree.Item) bool {
	o := other.(propItem)
	if p.value != o.value {
		return p.value < o.value
	}
	return p.id < o.id
}

// PropertyIndex indexes one (label, property) pair for either node or edge
// ids. Hash-kind indexes use a plain map guarded by the index's own lock;
// Range-kind indexes use google/btree, the teacher's own dependency
// (already used for the key-value B-tree index).
type PropertyIndex struct {
	kind     IndexKind
	label    string
	property string

	mu           sync.RWMutex
	hashIdx      map[any][]NodeID
	rangeIdx     *btree.BTree
	needsRebuild bool
}

func NewPropertyIndex(kind IndexKind, label, property string) *PropertyIndex {
	pi := &PropertyIndex{kind: kind, label: label, property: property}
	switch kind {
	case Hash:
		pi.hashIdx = make(map[any][]NodeID)
	case Range:
		pi.rangeIdx = btree.New(32)
	}
	return pi
}

// Add indexes id under value. Range indexes require value to be numeric
// (float64-convertible); a non-numeric value on a Range index marks the
// index NeedsRebuild instead of panicking, since a single bad write
// shouldn't corrupt every future query against it.
func (pi *PropertyIndex) Add(id NodeID, value any) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	switch pi.kind {
	case Hash:
		pi.hashIdx[value] = append(pi.hashIdx[value], id)
	case Range:
		f, ok := asFloat64(value)
		if !ok {
			pi.needsRebuild = true
			return
		}
		pi.rangeIdx.ReplaceOrInsert(propItem{value: f, id: id})
	}
}

func (pi *PropertyIndex) Remove(id NodeID, value any) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	switch pi.kind {
	case Hash:
		ids := pi.hashIdx[value]
		out := ids[:0]
		for _, v := range ids {
			if v != id {
				out = append(out, v)
			}
		}
		if len(out) == 0 {
			delete(pi.hashIdx, value)
		} else {
			pi.hashIdx[value] = out
		}
	case Range:
		if f, ok := asFloat64(value); ok {
			pi.rangeIdx.Delete(propItem{value: f, id: id})
		}
	}
}

// Equals answers an equality query (Hash indexes only).
func (pi *PropertyIndex) Equals(value any) []NodeID {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return append([]NodeID(nil), pi.hashIdx[value]...)
}

// Range answers lo <= value <= hi (Range indexes only); either bound may be
// nil to leave it open-ended.
func (pi *PropertyIndex) Between(lo, hi *float64) []NodeID {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	var out []NodeID
	pi.rangeIdx.Ascend(func(item btree.Item) bool {
		p := item.(propItem)
		if lo != nil && p.value < *lo {
			return true
		}
		if hi != nil && p.value > *hi {
			return false
		}
		out = append(out, p.id)
		return true
	})
	return out
}

// NeedsRebuild reports whether a prior Add saw a value it could not index,
// leaving the structure incomplete until the caller rebuilds it from the
// underlying property store.
func (pi *PropertyIndex) NeedsRebuild() bool {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	return pi.needsRebuild
}

// Property, Label and Kind expose the (label, property, kind) triple an
// index was created with, so a caller mirroring payload writes into every
// registered index can match by property name without re-deriving the map
// key it was registered under.
func (pi *PropertyIndex) Property() string { return pi.property }
func (pi *PropertyIndex) Label() string    { return pi.label }
func (pi *PropertyIndex) Kind() IndexKind  { return pi.kind }

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
