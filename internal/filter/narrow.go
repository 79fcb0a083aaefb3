package filter

import "github.com/velesdb/velesdb/internal/veleserr"

// NarrowToInt32 checks that v fits in an int32 before truncating,
// returning IndexOverflow instead of silently wrapping — the rule applies
// anywhere a column or filter predicate narrows an integer width.
func NarrowToInt32(v int64) (int32, error) {
	n := int32(v)
	if int64(n) != v {
		return 0, veleserr.New(veleserr.IndexOverflow, "filter: int64 value does not fit in int32")
	}
	return n, nil
}

// NarrowToUint32 checks that v fits in a uint32 before truncating.
func NarrowToUint32(v int64) (uint32, error) {
	if v < 0 || v > int64(^uint32(0)) {
		return 0, veleserr.New(veleserr.IndexOverflow, "filter: int64 value does not fit in uint32")
	}
	return uint32(v), nil
}

// Comparable reports whether two JSON-ish values can be compared at all.
// Cross-shape comparisons (array vs scalar, object vs scalar) are defined
// as incomparable — the filter rejects the row rather than erroring.
func Comparable(a, b any) bool {
	return shapeOf(a) == shapeOf(b)
}

type shape uint8

const (
	shapeScalar shape = iota
	shapeArray
	shapeObject
	shapeNull
)

func shapeOf(v any) shape {
	switch v.(type) {
	case nil:
		return shapeNull
	case []any:
		return shapeArray
	case map[string]any:
		return shapeObject
	default:
		return shapeScalar
	}
}
