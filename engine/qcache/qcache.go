// Package qcache implements the two-tier retrieval result cache: an
// exact-key LRU tier in front of an embedding-similarity tier. Both tiers
// are emptied whenever the corpus gains a chunk, since new knowledge can
// change the correct answer set for queries already cached.
package qcache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ata243y/live-streamer-university-question-answering/engine/semantic"
)

// Result is a cached retrieval hit. Scores are not cached; the cache serves
// the {text, source} pairs handed downstream.
type Result struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Key identifies an exact-tier entry. Two equal keys map to the same cached
// value until invalidation.
type Key struct {
	Query string
	TopK  int
}

// NewKey normalizes the query text and builds a deterministic key.
func NewKey(query string, topK int) Key {
	return Key{Query: strings.ToLower(strings.TrimSpace(query)), TopK: topK}
}

// semanticEntry holds one semantic-tier record. OriginalQuery is kept for
// the hit log line only.
type semanticEntry struct {
	embedding     []float32
	results       []Result
	originalQuery string
}

// Stats is the cache observability snapshot.
type Stats struct {
	Enabled      bool    `json:"enabled"`
	ExactSize    int     `json:"exact_cache_size"`
	SemanticSize int     `json:"semantic_cache_size"`
	MaxSize      int     `json:"max_size"`
	Threshold    float32 `json:"semantic_threshold"`
}

// Cache is the two-tier result cache. Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	exact     *lru.Cache[Key, []Result]
	sem       []semanticEntry
	maxSize   int
	threshold float32
	enabled   bool
}

// New creates a cache with the given per-tier capacity and semantic-tier
// similarity threshold. The threshold default of 0.95 is configuration, not
// a derived constant.
func New(maxSize int, threshold float32, enabled bool) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	exact, _ := lru.New[Key, []Result](maxSize)
	return &Cache{
		exact:     exact,
		maxSize:   maxSize,
		threshold: threshold,
		enabled:   enabled,
	}
}

// Enabled reports whether lookups are served by default.
func (c *Cache) Enabled() bool { return c.enabled }

// GetExact checks the exact tier. A hit refreshes the entry's recency.
func (c *Cache) GetExact(key Key) ([]Result, bool) {
	return c.exact.Get(key)
}

// GetSemantic scans the semantic tier for a cached query embedding whose
// cosine similarity to embedding meets the threshold, returning the best
// match's results together with the query that produced them. Callers
// consult it only with embeddings of original, non-expanded query text.
func (c *Cache) GetSemantic(embedding []float32) ([]Result, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1
	var bestSim float32
	for i := range c.sem {
		sim := semantic.Cosine(embedding, c.sem[i].embedding)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	if best < 0 || bestSim < c.threshold {
		return nil, "", false
	}
	return c.sem[best].results, c.sem[best].originalQuery, true
}

// PutExact writes results into the exact tier only. Used for expanded
// queries, whose embeddings cover a rewritten search text and must not seed
// the semantic tier.
func (c *Cache) PutExact(key Key, results []Result) {
	c.exact.Add(key, results)
}

// Put writes results into both tiers after a fresh index search.
func (c *Cache) Put(key Key, embedding []float32, originalQuery string, results []Result) {
	c.exact.Add(key, results)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sem) >= c.maxSize {
		// Oldest-inserted-first eviction; the semantic tier is not LRU.
		c.sem = c.sem[1:]
	}
	c.sem = append(c.sem, semanticEntry{
		embedding:     embedding,
		results:       results,
		originalQuery: originalQuery,
	})
}

// Clear empties both tiers. Called on every corpus append.
func (c *Cache) Clear() {
	c.exact.Purge()
	c.mu.Lock()
	c.sem = nil
	c.mu.Unlock()
}

// Snapshot returns current cache statistics.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	semLen := len(c.sem)
	c.mu.Unlock()
	return Stats{
		Enabled:      c.enabled,
		ExactSize:    c.exact.Len(),
		SemanticSize: semLen,
		MaxSize:      c.maxSize,
		Threshold:    c.threshold,
	}
}
