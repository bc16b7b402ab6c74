// Package provider defines the capability interfaces the pipeline consumes:
// text embedding, streamed answer generation, web-search fallback, and
// provider-backed intent classification. One implementation per backend is
// selected at startup by configuration; the core never inspects which one it
// holds.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// NoContextSentinel is the reserved strict-mode output meaning the retrieved
// context was insufficient to answer.
const NoContextSentinel = "NO_CONTEXT"

// Mode selects the generation prompt contract.
type Mode int

const (
	// ModeStrict answers only from the given context and must emit the
	// sentinel (or nothing) when the context is insufficient.
	ModeStrict Mode = iota
	// ModeWeb synthesizes the best available answer from web-search context
	// and never emits the sentinel.
	ModeWeb
)

func (m Mode) String() string {
	if m == ModeWeb {
		return "web"
	}
	return "strict"
}

// ContextChunk is one retrieved passage handed to generation.
type ContextChunk struct {
	Text   string
	Source string
}

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Consumers must read to io.EOF or call Close to abandon the stream; nothing
// beyond the next fragment is buffered.
type Stream interface {
	// Recv returns the next fragment, or io.EOF after the last one.
	Recv() (string, error)
	// Close releases the underlying connection. Safe to call twice.
	Close() error
}

// Embedder maps text to a fixed-length vector, deterministically for
// identical input within one provider instance.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a streamed answer for a query over retrieved context.
type Generator interface {
	Generate(ctx context.Context, query string, contextChunks []ContextChunk, mode Mode) (Stream, error)
}

// WebSearcher is the best-effort external lookup used when strict generation
// yields the sentinel.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// IntentClassifier asks a model whether text is small talk rather than an
// informational query. Callers must treat an error as "not chitchat" so a
// classifier outage never swallows genuine questions.
type IntentClassifier interface {
	IsChitchat(ctx context.Context, text string) (bool, error)
}

// BuildPrompt renders the generation prompt for a mode. The exact wording is
// provider-facing plumbing; the binding part of the contract is the sentinel
// behavior per mode.
func BuildPrompt(query string, chunks []ContextChunk, mode Mode) string {
	var ctxStr strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&ctxStr, "Kaynak: %s\nMetin: %s\n\n", c.Source, c.Text)
	}

	if mode == ModeWeb {
		return fmt.Sprintf(`Sen bir yardımcı asistansın. Web arama sonuçlarından elde edilen aşağıdaki Context bilgisini kullanarak soruya cevap ver.

Context:
%s
Soru: %s

KURALLAR:
1. Webden gelen bilgiyi kullanarak kullanıcıya en iyi cevabı ver.
2. Context içindeki bilgiyi sentezle ve özetle.
3. "%s" DEME. Elindeki bilgiyle yardımcı olmaya çalış.
4. Tek paragraf, Türkçe, net ve anlaşılır özetle.
5. Cevabı DOĞRUDAN başlat.`, ctxStr.String(), query, NoContextSentinel)
	}

	return fmt.Sprintf(`Sen bir üniversite yönetmelik uzmanısın. SADECE aşağıdaki Context bilgisini kullanarak soruya cevap ver.

Context:
%s
Soru: %s

ÖNEMLİ KURALLAR:
1. SADECE Context içinde verilen bilgiyi kullan. Kendinden bilgi ekleme.
2. Eğer Context içinde sorunun cevabı KESİN OLARAK yoksa, SADECE "%s" yaz. Başka hiçbir şey yazma.
3. "Bu metinde bilgi yok" veya "Bilmiyorum" deme, sadece "%s" çıktısı ver.
4. Cevabı DOĞRUDAN başlat - "Cevap:", "Yanıt:" gibi başlık KULLANMA.
5. Tek paragraf, Türkçe, net ve kısa cevap ver.`, ctxStr.String(), query, NoContextSentinel, NoContextSentinel)
}

// IntentPrompt is the classification prompt for IsChitchat implementations.
func IntentPrompt(text string) string {
	return fmt.Sprintf(`You are a classifier. Determine if the following user input is "Chitchat" (greetings, small talk, compliments, general conversation) or a "Knowledge Query" (questions about regulations, facts, specific information).

Input: %q

Reply ONLY with "YES" if it is chitchat, or "NO" if it is a knowledge query. Do not add any punctuation.`, text)
}
