// Package kernel implements the distance/similarity metrics used across the
// engine and a runtime dispatch table selecting the fastest measured
// implementation per (metric, dimension class).
package kernel

import "github.com/velesdb/velesdb/internal/veleserr"

// Metric identifies a distance/similarity function.
type Metric uint8

const (
	Cosine Metric = iota
	Euclidean
	Dot
	Hamming
	Jaccard
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "Cosine"
	case Euclidean:
		return "Euclidean"
	case Dot:
		return "Dot"
	case Hamming:
		return "Hamming"
	case Jaccard:
		return "Jaccard"
	default:
		return "Unknown"
	}
}

// ParseMetric maps a collection's metric name to a Metric, mirroring the
// allow-list pattern in the teacher's space_manager.go.
func ParseMetric(name string) (Metric, bool) {
	switch name {
	case "Cosine":
		return Cosine, true
	case "Euclidean":
		return Euclidean, true
	case "Dot":
		return Dot, true
	case "Hamming":
		return Hamming, true
	case "Jaccard":
		return Jaccard, true
	}
	return 0, false
}

// Similarity returns a "higher is closer" score for the metric over a and b.
// For Euclidean, prefer Distance; Similarity derives 1/(1+d) which is only
// meaningful inside fusion scoring (spec requirement).
func Similarity(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, veleserr.New(veleserr.DimensionMismatch, "kernel: vector length mismatch")
	}
	fn := dispatch.pick(m, len(a))
	return fn.similarity(a, b), nil
}

// Distance returns a "lower is closer" score for the metric over a and b.
func Distance(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, veleserr.New(veleserr.DimensionMismatch, "kernel: vector length mismatch")
	}
	fn := dispatch.pick(m, len(a))
	return fn.distance(a, b), nil
}

// backend is a pair of similarity/distance functions for one metric.
type backend struct {
	name       string
	similarity func(a, b []float32) float32
	distance   func(a, b []float32) float32
}
