// Package fusion combines multiple ranked score streams (vector, BM25,
// graph) into a single ranked list, per spec.md §4.8. Pure arithmetic over
// already-computed scores; no external dependency fits this better than
// the standard library's own sort, matching the rest of the corpus's
// habit of reaching for stdlib where the operation is this simple.
package fusion

import (
	"sort"

	"github.com/velesdb/velesdb/internal/order"
)

// Strategy selects how per-stream scores are combined.
type Strategy uint8

const (
	RRF Strategy = iota
	Average
	Maximum
	Weighted
)

const defaultRRFK = 60

// WeightedParams holds the Weighted strategy's coefficients; server-side
// defaults (0.6, 0.3, 0.1) are applied only when the caller omits them —
// the caller decides whether to pass explicit weights or the zero value,
// this package doesn't second-guess that.
type WeightedParams struct {
	AvgWeight float64
	MaxWeight float64
	HitWeight float64
}

func DefaultWeightedParams() WeightedParams {
	return WeightedParams{AvgWeight: 0.6, MaxWeight: 0.3, HitWeight: 0.1}
}

// Stream is one ranked result stream (already sorted best-first) feeding
// into fusion; Score is the stream's own native score, not yet normalized.
type Stream struct {
	Name    string
	Results []StreamResult
}

type StreamResult struct {
	ID    uint64
	Score float32
}

// Fused is one point's combined ranking.
type Fused struct {
	ID    uint64
	Score float32
}

// Fuse combines streams under strategy and returns results ordered best
// first, tie-broken by PointId ascending.
func Fuse(streams []Stream, strategy Strategy, weighted WeightedParams, rrfK int) []Fused {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	type acc struct {
		sum      float64
		max      float64
		hitCount int
		seen     bool
	}
	perPoint := make(map[uint64]*acc)

	for _, s := range streams {
		normalized := normalize(s.Results)
		for rank, r := range s.Results {
			a, ok := perPoint[r.ID]
			if !ok {
				a = &acc{}
				perPoint[r.ID] = a
			}
			a.hitCount++
			a.seen = true

			switch strategy {
			case RRF:
				a.sum += 1.0 / float64(rrfK+rank+1)
			case Average, Weighted:
				n := normalized[r.ID]
				a.sum += n
				if n > a.max {
					a.max = n
				}
			case Maximum:
				n := normalized[r.ID]
				if n > a.max {
					a.max = n
				}
			}
		}
	}

	out := make([]Fused, 0, len(perPoint))
	for id, a := range perPoint {
		var score float64
		switch strategy {
		case RRF:
			score = a.sum
		case Average:
			score = a.sum / float64(len(streams))
		case Maximum:
			score = a.max
		case Weighted:
			avg := a.sum / float64(len(streams))
			score = weighted.AvgWeight*avg + weighted.MaxWeight*a.max + weighted.HitWeight*float64(a.hitCount)
		}
		out = append(out, Fused{ID: id, Score: float32(score)})
	}

	sort.Slice(out, func(i, j int) bool {
		return order.LessDescThenID(out[i].Score, out[j].Score, out[i].ID, out[j].ID)
	})
	return out
}

// normalize min-max scales a stream's scores into [0, 1], needed before
// Average/Maximum/Weighted combine scores from incompatible native scales
// (cosine similarity vs BM25 vs hop count).
func normalize(results []StreamResult) map[uint64]float64 {
	out := make(map[uint64]float64, len(results))
	if len(results) == 0 {
		return out
	}
	lo, hi := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results {
		v := float64(r.Score)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	for _, r := range results {
		if span == 0 {
			out[r.ID] = 1
			continue
		}
		out[r.ID] = (float64(r.Score) - lo) / span
	}
	return out
}
