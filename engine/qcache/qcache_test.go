package qcache

import (
	"fmt"
	"testing"
)

func TestNewKeyNormalizes(t *testing.T) {
	a := NewKey("  Mezuniyet Şartları  ", 3)
	b := NewKey("mezuniyet şartları", 3)
	if a != b {
		t.Errorf("keys differ: %v vs %v", a, b)
	}
	c := NewKey("mezuniyet şartları", 5)
	if a == c {
		t.Error("different topK produced equal keys")
	}
}

func TestExactTierLRUEviction(t *testing.T) {
	c := New(3, 0.95, true)
	for i := 0; i < 3; i++ {
		c.Put(NewKey(fmt.Sprintf("soru %d", i), 3), []float32{1, 0}, "q", []Result{{Text: fmt.Sprintf("r%d", i)}})
	}

	// Touch the oldest entry so it becomes most recent.
	if _, ok := c.GetExact(NewKey("soru 0", 3)); !ok {
		t.Fatal("expected hit for soru 0")
	}

	// Insert a fourth; soru 1 is now least recent and must go.
	c.Put(NewKey("soru 3", 3), []float32{1, 0}, "q", []Result{{Text: "r3"}})

	if _, ok := c.GetExact(NewKey("soru 1", 3)); ok {
		t.Error("expected soru 1 to be evicted")
	}
	if _, ok := c.GetExact(NewKey("soru 0", 3)); !ok {
		t.Error("expected refreshed soru 0 to survive eviction")
	}
}

func TestPutExactSkipsSemanticTier(t *testing.T) {
	c := New(10, 0.95, true)
	c.PutExact(NewKey("çap koşulları", 3), []Result{{Text: "cached"}})

	if _, ok := c.GetExact(NewKey("çap koşulları", 3)); !ok {
		t.Error("expected exact hit")
	}
	if _, _, ok := c.GetSemantic([]float32{1, 0}); ok {
		t.Error("PutExact seeded the semantic tier")
	}
	if stats := c.Snapshot(); stats.SemanticSize != 0 {
		t.Errorf("semantic tier size = %d, want 0", stats.SemanticSize)
	}
}

func TestSemanticTierThreshold(t *testing.T) {
	c := New(10, 0.95, true)
	c.Put(NewKey("çap koşulları", 3), []float32{1, 0, 0}, "çap koşulları", []Result{{Text: "cached"}})

	// Identical direction: similarity 1.0.
	if results, original, ok := c.GetSemantic([]float32{2, 0, 0}); !ok {
		t.Fatal("expected semantic hit for parallel embedding")
	} else {
		if results[0].Text != "cached" {
			t.Errorf("wrong results: %v", results)
		}
		if original != "çap koşulları" {
			t.Errorf("wrong original query: %q", original)
		}
	}

	// Orthogonal: similarity 0.
	if _, _, ok := c.GetSemantic([]float32{0, 1, 0}); ok {
		t.Error("expected miss for orthogonal embedding")
	}
}

func TestSemanticTierReturnsBestMatch(t *testing.T) {
	c := New(10, 0.9, true)
	c.Put(NewKey("a", 3), []float32{1, 0.2}, "a", []Result{{Text: "first"}})
	c.Put(NewKey("b", 3), []float32{1, 0}, "b", []Result{{Text: "second"}})

	results, _, ok := c.GetSemantic([]float32{1, 0})
	if !ok {
		t.Fatal("expected hit")
	}
	if results[0].Text != "second" {
		t.Errorf("expected best match second, got %q", results[0].Text)
	}
}

func TestSemanticTierFIFOEviction(t *testing.T) {
	c := New(2, 0.95, true)
	c.Put(NewKey("a", 3), []float32{1, 0, 0}, "a", []Result{{Text: "a"}})
	c.Put(NewKey("b", 3), []float32{0, 1, 0}, "b", []Result{{Text: "b"}})
	c.Put(NewKey("c", 3), []float32{0, 0, 1}, "c", []Result{{Text: "c"}})

	if _, _, ok := c.GetSemantic([]float32{1, 0, 0}); ok {
		t.Error("expected oldest semantic entry evicted")
	}
	if _, _, ok := c.GetSemantic([]float32{0, 0, 1}); !ok {
		t.Error("expected newest semantic entry present")
	}
}

func TestClearEmptiesBothTiers(t *testing.T) {
	c := New(10, 0.95, true)
	c.Put(NewKey("soru", 3), []float32{1, 0}, "soru", []Result{{Text: "r"}})
	c.Clear()

	if _, ok := c.GetExact(NewKey("soru", 3)); ok {
		t.Error("exact tier survived clear")
	}
	if _, _, ok := c.GetSemantic([]float32{1, 0}); ok {
		t.Error("semantic tier survived clear")
	}
	stats := c.Snapshot()
	if stats.ExactSize != 0 || stats.SemanticSize != 0 {
		t.Errorf("non-empty snapshot after clear: %+v", stats)
	}
}

func TestSnapshot(t *testing.T) {
	c := New(50, 0.9, true)
	c.Put(NewKey("soru", 3), []float32{1, 0}, "soru", nil)

	stats := c.Snapshot()
	if !stats.Enabled {
		t.Error("expected enabled")
	}
	if stats.ExactSize != 1 || stats.SemanticSize != 1 {
		t.Errorf("unexpected sizes: %+v", stats)
	}
	if stats.MaxSize != 50 || stats.Threshold != 0.9 {
		t.Errorf("unexpected config in snapshot: %+v", stats)
	}
}

func TestEmptyResultsAreCached(t *testing.T) {
	c := New(10, 0.95, true)
	c.Put(NewKey("bilinmeyen", 3), []float32{1, 0}, "bilinmeyen", []Result{})

	results, ok := c.GetExact(NewKey("bilinmeyen", 3))
	if !ok {
		t.Fatal("expected hit for cached empty result set")
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", results)
	}
}
