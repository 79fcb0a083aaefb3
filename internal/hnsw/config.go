// Package hnsw implements the L2 hierarchical navigable small-world vector
// index: a stack of layers over the points in a quant.Store, with greedy
// descent to find an entry point and beam search to collect neighbor
// candidates, grounded in the teacher's vector_storage.go concurrency shape
// (per-entity locking, WAL-first mutation) but carrying a native Go graph
// instead of delegating to FAISS.
package hnsw

// Config holds the build-time parameters fixed at index creation: M (the
// per-layer out-degree ceiling) and EfConstruction (the beam width used
// while inserting).
type Config struct {
	M              int
	EfConstruction int
}

// ForDatasetSize picks sensible (M, ef_construction) pairs for the expected
// point count, favoring smaller graphs (cheaper memory, faster insert) for
// small datasets and wider graphs (better recall) as n grows.
func ForDatasetSize(n int) Config {
	switch {
	case n < 10_000:
		return Config{M: 16, EfConstruction: 100}
	case n < 1_000_000:
		return Config{M: 32, EfConstruction: 200}
	default:
		return MillionScale()
	}
}

// MillionScale is the preset tuned for collections in the million-point
// range and beyond.
func MillionScale() Config {
	return Config{M: 48, EfConstruction: 400}
}

// Quality selects the runtime beam width (ef_search) for Search. Perfect
// bypasses the graph entirely and falls back to a brute-force scan over
// every live point, guaranteeing 100% recall.
type Quality uint8

const (
	Fast Quality = iota
	Balanced
	Accurate
	HighRecall
	Perfect
)

func (q Quality) efSearch() int {
	switch q {
	case Fast:
		return 64
	case Balanced:
		return 128
	case Accurate:
		return 256
	case HighRecall:
		return 1024
	case Perfect:
		return 2048
	default:
		return 128
	}
}

func (q Quality) String() string {
	switch q {
	case Fast:
		return "Fast"
	case Balanced:
		return "Balanced"
	case Accurate:
		return "Accurate"
	case HighRecall:
		return "HighRecall"
	case Perfect:
		return "Perfect"
	default:
		return "Unknown"
	}
}
