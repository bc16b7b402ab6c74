package router

import (
	"regexp"
	"strings"
)

// Injection detection limits. Any single rule firing is enough to flag a
// query; the rules form a disjunction and evaluation stops at the first hit.
const (
	// MaxQueryLen is the raw-length ceiling above which a query is flagged.
	MaxQueryLen = 500
	// MaxSpecialCharRatio is the ceiling on structural characters per rune.
	MaxSpecialCharRatio = 0.15
	// dangerKeywordMin is how many danger keywords from one language set
	// must co-occur before a query is flagged.
	dangerKeywordMin = 2
)

// rule is one independent injection predicate. Word rules run against the
// normalized text; delimiter rules run against the raw text, since
// normalization strips the very characters they look for.
type rule struct {
	name  string
	match func(raw, normalized string) bool
}

// onNormalized flags when the pattern matches the folded text.
func onNormalized(name, pattern string) rule {
	re := regexp.MustCompile(pattern)
	return rule{name: name, match: func(_, normalized string) bool {
		return re.MatchString(normalized)
	}}
}

// onRaw flags when the pattern matches the raw text.
func onRaw(name, pattern string) rule {
	re := regexp.MustCompile(pattern)
	return rule{name: name, match: func(raw, _ string) bool {
		return re.MatchString(raw)
	}}
}

// coOccur flags when both patterns match the folded text. This replaces the
// lookahead conjunctions of the original pattern set, which RE2 does not
// support.
func coOccur(name, first, second string) rule {
	a, b := regexp.MustCompile(first), regexp.MustCompile(second)
	return rule{name: name, match: func(_, normalized string) bool {
		return a.MatchString(normalized) && b.MatchString(normalized)
	}}
}

// injectionRules are adversarial-intent patterns: role-override attempts,
// instruction-reset phrasing, system-prompt impersonation, and delimiter
// injection, in Turkish and English. Compiled once at package init.
var injectionRules = []rule{
	coOccur("tr-roleplay-reset",
		`\b(farz et|varsayalim|diyelim ki|hayal et|sanki|mis gibi yap)\b`,
		`\b(hafiza kaybi|yeni birisin|kurallarin yok|her sey serbest|sinirsizsin|filtresizsin|unuttun)\b`),
	coOccur("tr-history-invalidation",
		`\b(onceki|yukaridaki|gecmisteki|bu sohbetteki)\s+(konusma|talimat|bilgi|kural|direktif)\b`,
		`\b(gecersiz|yok say|unut|onemli degil|dikkate alma|hic yasanmadi|bir testti)\b`),
	onNormalized("tr-fresh-start",
		`\b(yeni bir sayfa acalim|temiz bir baslangic|sifirdan baslayalim|o konuyu kapatalim)\b`),
	coOccur("tr-forget-scope",
		`\b(unut|sil|yok say|gormezden gel|sifirla|hatirlama|dikkate alma|kaale alma)\b`,
		`\b(her sey|tum|onceki|talimat|kural|bilgi|konusma|hafiza|kimligin|gorevin|sinirlamalarin|protokollerin)\b`),
	coOccur("tr-task-override",
		`\b(asil|gercek|yeni|birincil)\s+(gorevin|amacin|onceligin)\b`,
		`\b(degil|artik su|olarak degisti)\b`),
	coOccur("tr-loyalty-override",
		`\b(artik|bundan sonra)\b`,
		`\b(bagli degilsin|uymak zorunda degilsin|senin icin gecerli degil)\b`),
	onNormalized("tr-roleplay", `\b(rol\s+yap|gibi\s+davran|olarak\s+davran|taklidi yap)\b`),
	coOccur("tr-safety-bypass",
		`\b(atla|bypass|ihlal et|devre disi birak|esnet)\b`,
		`\b(guvenlik|filtre|koruma|kural|sansur|etik kurallari)\b`),
	onRaw("system-prefix", `(?i)^(sistem|kullanici|kullanıcı|asistan|system|user|assistant)\s*[:>]`),
	onRaw("tag-injection",
		`(?i)\[(talimat|sistem|gizli|admin|root|komut)\].*\[/(talimat|sistem|gizli|admin|root|komut)\]`),
	coOccur("en-forget-scope",
		`\b(forget|ignore|disregard|erase|delete|reset)\b`,
		`\b(everything|all|previous|prior|instruction|command|rule|context|conversation)\b`),
	coOccur("en-role-override",
		`\b(you|your role|your task)\b`,
		`\b(are now|will act as|pretend to be)\b`),
	onNormalized("en-new-instruction",
		`\b(new|different|updated|secret|confidential)\s+(instruction|prompt|rule|system|context)\b`),
	onNormalized("en-act-as", `\b(act as|roleplay as|pretend to be)\b`),
	coOccur("en-safety-bypass",
		`\b(bypass|override|disable)\b`,
		`\b(security|filter|safety|rule|censorship)\b`),
	onRaw("angle-tag", `(?i)<\s*(system|prompt|instruction|admin|root)\s*>`),
	onRaw("fenced-role", "```(system|user|assistant|prompt)"),
}

// dangerKeywordsTR and dangerKeywordsEN are per-language keyword sets; two or
// more co-occurring terms from one set flag the query.
var dangerKeywordsTR = []string{
	"unut", "sil", "yoksay", "gormezden", "atla", "degistir",
	"yeni talimat", "sistem", "yetki", "bypass", "override",
}

var dangerKeywordsEN = []string{
	"ignore", "forget", "disregard", "pretend", "act as",
	"system:", "new instruction", "override", "bypass",
}

// codeMarkers are code-injection substrings checked case-insensitively.
var codeMarkers = []string{"```", "<script", "javascript:", "onclick=", "onerror="}

var specialChars = map[rune]bool{
	'{': true, '}': true, '(': true, ')': true, '<': true, '>': true,
	'[': true, ']': true, '|': true, '\\': true, '`': true,
}

// IsInjection reports whether the query looks like an attempt to subvert the
// generation step. It checks the compiled pattern set against both the raw
// and the folded text, then the cheap heuristics: length ceiling, structural
// character ratio, danger-keyword co-occurrence, and code markers.
func (r *Router) IsInjection(query string) bool {
	normalized := Normalize(query)

	for _, rule := range r.rules {
		if rule.match(query, normalized) {
			r.logger.Warn("injection detected", "rule", rule.name, "query_len", len(query))
			return true
		}
	}

	if len(query) > MaxQueryLen {
		r.logger.Warn("query too long", "len", len(query))
		return true
	}

	if ratio := specialCharRatio(query); ratio > MaxSpecialCharRatio {
		r.logger.Warn("too many structural characters", "ratio", ratio)
		return true
	}

	lower := strings.ToLower(query)
	if countDanger(lower, dangerKeywordsTR) >= dangerKeywordMin {
		r.logger.Warn("danger keyword co-occurrence", "lang", "tr")
		return true
	}
	if countDanger(lower, dangerKeywordsEN) >= dangerKeywordMin {
		r.logger.Warn("danger keyword co-occurrence", "lang", "en")
		return true
	}

	for _, marker := range codeMarkers {
		if strings.Contains(lower, marker) {
			r.logger.Warn("code injection marker", "marker", marker)
			return true
		}
	}

	return false
}

func specialCharRatio(query string) float64 {
	if len(query) == 0 {
		return 0
	}
	count, total := 0, 0
	for _, ch := range query {
		total++
		if specialChars[ch] {
			count++
		}
	}
	return float64(count) / float64(total)
}

func countDanger(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
