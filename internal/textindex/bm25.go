package textindex

import (
	"math"
	"sort"
	"sync"

	"github.com/velesdb/velesdb/internal/order"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

type posting struct {
	id       uint64
	termFreq int
}

// Index is a per-collection BM25 postings index over one text field.
// Postings are built eagerly: every upsert/delete is applied synchronously
// under lock so the index never drifts behind the point store, and Search
// builds nothing on first use.
type Index struct {
	k1 float64
	b  float64

	mu       sync.RWMutex
	built    bool
	postings map[string][]posting // term -> postings list
	docLen   map[uint64]int       // PointId -> token count
	totalLen int
	docCount int
}

func New() *Index {
	return &Index{k1: defaultK1, b: defaultB, postings: make(map[string][]posting), docLen: make(map[uint64]int)}
}

// NewWithParams overrides the BM25 k1/b constants, e.g. from velesdb.yaml.
func NewWithParams(k1, b float64) *Index {
	idx := New()
	idx.k1, idx.b = k1, b
	return idx
}

// Upsert (re)indexes id's text, replacing any prior postings for it.
func (idx *Index) Upsert(id uint64, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.built = true
	idx.removeLocked(id)

	tokens := Tokenize(text)
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	for term, tf := range counts {
		idx.postings[term] = append(idx.postings[term], posting{id: id, termFreq: tf})
	}
	idx.docLen[id] = len(tokens)
	idx.totalLen += len(tokens)
	idx.docCount++
}

// Delete removes id's postings and adjusts the global stats.
func (idx *Index) Delete(id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

// removeLocked must be called with mu held for writing.
func (idx *Index) removeLocked(id uint64) {
	length, ok := idx.docLen[id]
	if !ok {
		return
	}
	delete(idx.docLen, id)
	idx.totalLen -= length
	idx.docCount--
	for term, plist := range idx.postings {
		out := plist[:0]
		for _, p := range plist {
			if p.id != id {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = out
		}
	}
}

// ScoredResult is a single BM25 match.
type ScoredResult struct {
	ID    uint64
	Score float32
}

// Search scores every document containing at least one query term and
// returns the top k by BM25 score descending, tie-broken by PointId
// ascending (the engine-wide ordering rule).
func (idx *Index) Search(query string, k int) []ScoredResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	if idx.docCount == 0 || len(terms) == 0 {
		return nil
	}
	avgDocLen := float64(idx.totalLen) / float64(idx.docCount)

	scores := make(map[uint64]float64)
	for _, term := range terms {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := len(plist)
		idf := bm25IDF(idx.docCount, df)
		for _, p := range plist {
			dl := float64(idx.docLen[p.id])
			tf := float64(p.termFreq)
			denom := tf + idx.k1*(1-idx.b+idx.b*dl/avgDocLen)
			scores[p.id] += idf * (tf * (idx.k1 + 1) / denom)
		}
	}

	results := make([]ScoredResult, 0, len(scores))
	for id, s := range scores {
		results = append(results, ScoredResult{ID: id, Score: float32(s)})
	}
	sort.Slice(results, func(i, j int) bool {
		return order.LessDescThenID(results[i].Score, results[j].Score, results[i].ID, results[j].ID)
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

func bm25IDF(n, df int) float64 {
	return math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
}
