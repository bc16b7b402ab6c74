package router

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Category is one chitchat intent class: a normalized keyword set and the
// canned response returned when a query matches it. Categories are static
// configuration, built once at router construction.
type Category struct {
	Name     string
	Keywords []string
	Response string

	keywordSet map[string]bool
}

// Fuzzy-match tuning for short queries. Empirical knobs, not derived truths.
const (
	// FuzzyMatchRatio is the minimum edit-distance similarity for a fuzzy hit.
	FuzzyMatchRatio = 0.85
	// fuzzyLenWindow skips keywords whose length differs by more than this.
	fuzzyLenWindow = 3
	// shortQueryWords is the word-count ceiling for substring/fuzzy matching.
	// Longer queries are assumed to carry informational content and only ever
	// match exactly, so a question that happens to contain a greeting still
	// reaches retrieval.
	shortQueryWords = 3
)

// EmptyQueryResponse is returned for blank or sub-two-character input.
const EmptyQueryResponse = "Lütfen bir soru sorun."

// DefaultCategories returns the built-in chitchat classes for the Turkish
// university assistant, keywords listed in their surface form and folded at
// construction.
func DefaultCategories() []Category {
	return []Category{
		{
			Name: "greeting",
			Keywords: []string{
				"selam", "selamlar", "slm", "merhaba", "merhabalar", "mrb", "hey", "hi", "hello",
				"günaydın", "gunaydin", "iyi günler", "iyigünler", "iyi akşamlar", "iyiaksamlar",
				"naber", "naber canım", "nabersin", "selamun aleyküm", "selamun aleykum",
			},
			Response: "Merhaba! Ben GTU yönetmelikleri konusunda uzmanlaşmış yapay zeka asistanıyım. Sana nasıl yardımcı olabilirim?",
		},
		{
			Name: "wellbeing",
			Keywords: []string{
				"nasılsın", "nasilsin", "nasılsınız", "nasilsiniz", "nslsn",
				"ne haber", "nehaber", "nasıl gidiyor", "nasilgidiyor",
				"iyimisin", "iyi misin", "iyimisiniz", "ne var ne yok", "nevarne yok",
			},
			Response: "Harikayım, sorduğun için teşekkürler! Yönetmeliklerle ilgili bir sorun var mı?",
		},
		{
			Name: "thanks",
			Keywords: []string{
				"teşekkürler", "teşekkür ederim", "teşekkür", "tesekkurler", "tesekkür ederim",
				"çok teşekkürler", "çok teşekkür ederim", "cok tesekkurler",
				"tşk", "tsk", "tşkler", "thx", "thanks", "thank you", "ty", "tysm",
				"sağol", "sağolun", "sağolasın", "sagol", "sagolun", "sagolasın", "saol", "saolun",
				"sağ ol", "sağ olun", "sağ olasın", "sag ol",
				"eyvallah", "eyv", "eyw", "eyv allah", "eyvallah sağol",
				"allah razı olsun", "allah razi olsun", "allaha razı olsun", "rabbim razı olsun",
				"kralsın", "kralsin", "adamsın", "adamsin", "efsanesin", "süpersin", "harikasın",
				"canımsın", "canisin", "canısın", "tatlısın", "opuyorum", "seviyorum",
			},
			Response: "Rica ederim, yardımcı olabildiğime sevindim! Başka bir sorun var mı?",
		},
		{
			Name: "farewell",
			Keywords: []string{
				"görüşürüz", "gorusuruz", "hoşçakal", "hoscakal", "hoşça kal", "hosca kal",
				"bay", "bye", "bb", "güle güle", "gule gule", "iyi günler", "kendine iyi bak",
				"görüşmek üzere", "gorusmek uzere", "sonra görüşürüz",
			},
			Response: "Görüşmek üzere, başka bir sorun olursa yine beklerim!",
		},
		{
			Name: "identity",
			Keywords: []string{
				"kimsin", "kim", "sen kimsin", "sen nesin", "ne yapabilirsin", "neler yapabilirsin",
				"sen ne", "hangi konularda", "bana nasıl yardım edebilirsin",
				"ne iş yapıyorsun", "görevin ne",
			},
			Response: "Ben GTU öğrencilerine yönetmeliklerle ilgili sorularda yardımcı olan yapay zeka asistanıyım. Kayıt dondurma, ders ekleme-silme, mezuniyet şartları gibi konularda sorularını yanıtlayabilirim.",
		},
		{
			Name: "affirmative",
			Keywords: []string{
				"tamam", "ok", "okay", "oki", "olur", "anladım", "anladim", "peki", "tamamdır",
				"anlıyorum", "anliyorum", "güzel", "guzel", "iyi", "harika", "süper", "mükemmel",
			},
			Response: "Süper! Başka bir konuda yardımcı olabilir miyim?",
		},
		{
			Name: "negative",
			Keywords: []string{
				"hayır", "hayir", "yok", "değil", "degil", "olmaz", "istemiyorum", "gerek yok",
			},
			Response: "Tamam, anladım. Başka bir şey lazım olursa buradayım!",
		},
	}
}

// ChitchatResponse returns the canned response for a conversational query,
// or ok=false when the query should be routed to retrieval. Matching runs in
// tiers, cheapest first: whole-set exact lookup, then for short queries
// substring containment in either direction, then fuzzy edit-distance.
func (r *Router) ChitchatResponse(query string) (string, bool) {
	normalized := Normalize(query)
	if len(normalized) < 2 {
		return EmptyQueryResponse, true
	}

	words := wordCount(normalized)

	// Exact membership across all categories. One set lookup gates the
	// per-category scan, so the common miss costs O(1).
	if r.allKeywords[normalized] {
		for i := range r.categories {
			if r.categories[i].keywordSet[normalized] {
				r.logger.Info("chitchat match", "tier", "exact", "category", r.categories[i].Name)
				return r.categories[i].Response, true
			}
		}
	}

	if words > shortQueryWords {
		return "", false
	}

	for i := range r.categories {
		c := &r.categories[i]
		for _, kw := range c.Keywords {
			if containsEither(normalized, kw) {
				r.logger.Info("chitchat match", "tier", "substring", "category", c.Name)
				return c.Response, true
			}
		}
	}

	for i := range r.categories {
		c := &r.categories[i]
		for _, kw := range c.Keywords {
			if abs(len(normalized)-len(kw)) > fuzzyLenWindow {
				continue
			}
			if sim := similarityRatio(normalized, kw); sim >= FuzzyMatchRatio {
				r.logger.Info("chitchat match", "tier", "fuzzy", "category", c.Name, "similarity", sim)
				return c.Response, true
			}
		}
	}

	return "", false
}

// similarityRatio maps edit distance onto [0,1], 1 meaning identical.
func similarityRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
