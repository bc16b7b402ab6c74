// Package semantic implements in-memory similarity search over the corpus
// embedding matrix.
package semantic

import (
	"math"
	"sort"

	"github.com/ata243y/live-streamer-university-question-answering/engine/corpus"
)

// SearchResult is a single retrieval hit.
type SearchResult struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float32 `json:"score"`
}

// Index performs brute-force dot-product search over a corpus store.
// All embeddings must come from the one embedder shared with the store;
// mixing providers or dimensionalities is a caller bug.
type Index struct {
	store *corpus.Store
}

// NewIndex creates an index over the given store.
func NewIndex(store *corpus.Store) *Index {
	return &Index{store: store}
}

// Search returns up to topK chunks scored by dot product against query,
// descending, excluding scores at or below minScore. Ties go to the earlier
// corpus row. topK larger than the corpus is capped silently; an empty
// corpus yields an empty result.
func (ix *Index) Search(query []float32, topK int, minScore float32) []SearchResult {
	matrix, texts, sources := ix.store.Snapshot()
	if len(matrix) == 0 || topK <= 0 {
		return nil
	}

	type hit struct {
		row   int
		score float32
	}
	hits := make([]hit, 0, len(matrix))
	for i, vec := range matrix {
		s := Dot(query, vec)
		if s > minScore {
			hits = append(hits, hit{row: i, score: s})
		}
	}

	// Stable over row order, so equal scores keep insertion order.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if topK > len(hits) {
		topK = len(hits)
	}
	results := make([]SearchResult, topK)
	for i := 0; i < topK; i++ {
		h := hits[i]
		results[i] = SearchResult{Text: texts[h.row], Source: sources[h.row], Score: h.score}
	}
	return results
}

// Dot computes the dot product of two vectors. Shorter length wins; the
// shared-embedder contract makes mismatched lengths a non-issue in practice.
func Dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine computes cosine similarity. Used by the semantic cache tier, where
// cached query embeddings are not guaranteed unit-length.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float32
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}
