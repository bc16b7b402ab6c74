package ingest

import (
	"regexp"
	"strings"
)

// Chunking tuned for regulation articles: big enough to hold a full Madde,
// with overlap so clauses split across chunks stay findable.
const (
	DefaultChunkSize   = 700
	DefaultOverlap     = 150
	MinChunkLen        = 100
	docSeparatorMinLen = 40
)

// separators ordered from strongest structural break to weakest. MADDE is
// the article marker in Turkish regulation text.
var separators = []string{"\n\n\n", "\n\n", "\nMadde ", "\nMADDE ", "\n", ". ", " "}

var (
	docSeparatorRe = regexp.MustCompile(`={40,}`)
	headerRe       = regexp.MustCompile(`(?i)T\.C\..*?ÜNİVERSİTESİ.*?\n`)
	pageBarRe      = regexp.MustCompile(`\d+\s*\|\s*.*`)
	pageFracRe     = regexp.MustCompile(`\d+\s*/\s*\d+`)
	docCodeRe      = regexp.MustCompile(`\b0356\b`)
	splitUniRe     = regexp.MustCompile(`(?i)ÜN\s+İVERS\s+İTES\s+İ`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	spaceTabRe     = regexp.MustCompile(`[ \t]+`)
	titleRevRe     = regexp.MustCompile(`(?i)\s+R\d+`)
	titleCodeRe    = regexp.MustCompile(`YÖ-\d+`)
	titlePDFRe     = regexp.MustCompile(`(?i)\.pdf$`)
	titleDateRe    = regexp.MustCompile(`(?i)\s*Tarihi\s+\d{2}\.\d{2}\.\d{4}.*$`)
	titleTCRe      = regexp.MustCompile(`(?i)T\.\s*C\.`)
	wsRunRe        = regexp.MustCompile(`\s+`)
)

// cleanText strips scanner artifacts from scraped regulation text: letter
// headers, page numbers, document codes, and broken-up words.
func cleanText(text string) string {
	text = headerRe.ReplaceAllString(text, "")
	text = pageBarRe.ReplaceAllString(text, "")
	text = pageFracRe.ReplaceAllString(text, "")
	text = docCodeRe.ReplaceAllString(text, "")
	text = splitUniRe.ReplaceAllString(text, "ÜNİVERSİTESİ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = spaceTabRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, " \n ", "\n")
	return strings.TrimSpace(text)
}

// normalizeTitle cleans a document title for use as the source label.
func normalizeTitle(title string) string {
	title = docCodeRe.ReplaceAllString(title, "")
	title = titleCodeRe.ReplaceAllString(title, "")
	title = titlePDFRe.ReplaceAllString(title, "")
	title = titleRevRe.ReplaceAllString(title, "")
	title = titleTCRe.ReplaceAllString(title, "T.C.")
	title = splitUniRe.ReplaceAllString(title, "ÜNİVERSİTESİ")
	title = titleDateRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(wsRunRe.ReplaceAllString(title, " "))
	if len(title) < 3 {
		title = "GENEL YÖNERGE"
	}
	return title
}

// splitText breaks text into pieces of at most size characters, preferring
// the strongest separator that applies, then merges pieces back together
// with overlap carried between neighboring chunks.
func splitText(text string, size, overlap int) []string {
	pieces := splitBySeparators(text, size, separators)
	return mergePieces(pieces, size, overlap)
}

func splitBySeparators(text string, size int, seps []string) []string {
	if len(text) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		// Hard split as the last resort, on rune boundaries.
		runes := []rune(text)
		var out []string
		for len(runes) > size {
			out = append(out, string(runes[:size]))
			runes = runes[size:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
		return out
	}

	parts := strings.SplitAfter(text, seps[0])
	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, splitBySeparators(p, size, seps[1:])...)
	}
	return out
}

func mergePieces(pieces []string, size, overlap int) []string {
	var chunks []string
	var cur strings.Builder
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > size {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			if overlap > 0 {
				runes := []rune(chunk)
				if len(runes) > overlap {
					cur.WriteString(string(runes[len(runes)-overlap:]))
				}
			}
		}
		cur.WriteString(p)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
