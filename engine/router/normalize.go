package router

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics decomposes text and drops combining marks, turning "ö" into
// "o" and "ş" into "s". Dotless ı needs an explicit mapping since it is a
// distinct letter, not a diacritic composition.
var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

var turkishReplacer = strings.NewReplacer(
	"ı", "i", "İ", "i", "I", "i",
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases text, folds Turkish diacritics to ASCII, strips
// punctuation, and collapses whitespace. All keyword sets and text-based
// injection patterns are written against this form.
func Normalize(text string) string {
	text = turkishReplacer.Replace(text)
	text = strings.ToLower(text)
	if folded, _, err := transform.String(foldDiacritics, text); err == nil {
		text = folded
	}
	text = nonWordRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
