// Package order implements the engine-wide total-order comparison rule:
// NaN always sorts last regardless of ascending/descending direction, so
// that no ordering layer ever panics or misbehaves on a NaN score
// (spec.md §4.1, §8.5).
package order

import "math"

// CompareAsc returns -1, 0, 1 for a<b, a==b, a>b under ascending total
// order with NaN sorted last.
func CompareAsc(a, b float32) int {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareDesc is CompareAsc with the finite comparison reversed, but NaN
// still sorts last in both directions (spec requirement).
func CompareDesc(a, b float32) int {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// LessAscThenID orders by score ascending (NaN last), tie-broken by id
// ascending — the canonical tie-break rule used throughout the engine
// (HNSW search results, fusion, BM25).
func LessAscThenID(scoreA, scoreB float32, idA, idB uint64) bool {
	switch CompareAsc(scoreA, scoreB) {
	case -1:
		return true
	case 1:
		return false
	default:
		return idA < idB
	}
}

// LessDescThenID orders by score descending (NaN last), tie-broken by id
// ascending.
func LessDescThenID(scoreA, scoreB float32, idA, idB uint64) bool {
	switch CompareDesc(scoreA, scoreB) {
	case -1:
		return true
	case 1:
		return false
	default:
		return idA < idB
	}
}
