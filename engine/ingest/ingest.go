// Package ingest builds the regulation corpus: it reads scraped text files,
// splits them into per-regulation documents, chunks and embeds the text,
// and writes the durable corpus table.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ata243y/live-streamer-university-question-answering/engine/corpus"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/fn"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
)

// EmbedWorkers bounds concurrent embedding requests.
const EmbedWorkers = 4

// Document is one regulation extracted from a scraped file.
type Document struct {
	Source  string
	Content string
}

// TextChunk is a chunk of a document awaiting embedding. The source title
// is prepended twice to the embedded text so source-name queries rank the
// document's chunks higher.
type TextChunk struct {
	Text   string
	Source string
	Index  int
}

// Deps holds the pipeline collaborators.
type Deps struct {
	Embedder provider.Embedder
	Logger   *slog.Logger
}

// LoadDir reads every .txt and .md file under dir and splits each into
// documents on long `====` separator lines. The first line of each section
// becomes the normalized source title.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dir: %w", err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("ingest: read %s: %w", e.Name(), err)
		}
		docs = append(docs, splitFile(e.Name(), string(data))...)
	}
	return docs, nil
}

func splitFile(filename, text string) []Document {
	var docs []Document
	for _, section := range docSeparatorRe.Split(text, -1) {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		lines := strings.SplitN(section, "\n", 2)
		title := strings.TrimSpace(lines[0])
		if title == "" {
			title = strings.TrimSuffix(filename, filepath.Ext(filename))
		}
		content := ""
		if len(lines) > 1 {
			content = lines[1]
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, Document{Source: normalizeTitle(title), Content: content})
	}
	return docs
}

// ChunkDocument cleans a document and splits it into chunks, dropping
// fragments too short to carry meaning.
func ChunkDocument(doc Document) []TextChunk {
	cleaned := cleanText(doc.Content)
	var chunks []TextChunk
	for i, text := range splitText(cleaned, DefaultChunkSize, DefaultOverlap) {
		text = strings.TrimSpace(text)
		if len(text) < MinChunkLen {
			continue
		}
		chunks = append(chunks, TextChunk{
			Text:   fmt.Sprintf("%s\n%s\n%s", doc.Source, doc.Source, text),
			Source: doc.Source,
			Index:  i,
		})
	}
	return chunks
}

// NewEmbedStage embeds one chunk with retry.
func NewEmbedStage(embedder provider.Embedder) fn.Stage[TextChunk, corpus.Chunk] {
	embed := func(ctx context.Context, tc TextChunk) fn.Result[corpus.Chunk] {
		emb, err := embedder.Embed(ctx, tc.Text)
		if err != nil {
			return fn.Errf[corpus.Chunk]("ingest: embed chunk %d of %s: %w", tc.Index, tc.Source, err)
		}
		return fn.Ok(corpus.Chunk{Text: tc.Text, Source: tc.Source, Embedding: emb})
	}
	return fn.RetryStage(fn.DefaultRetry, embed)
}

// NewPipeline composes chunking and embedding into one traced stage from
// documents to corpus chunks.
func NewPipeline(deps Deps) fn.Stage[[]Document, []corpus.Chunk] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	chunkAll := fn.MapStage(func(docs []Document) []TextChunk {
		var all []TextChunk
		for _, d := range docs {
			all = append(all, ChunkDocument(d)...)
		}
		return all
	})

	logged := fn.TapStage(func(_ context.Context, chunks []TextChunk) {
		log.Info("documents chunked", "chunks", len(chunks))
	})

	embedAll := fn.BatchStage(EmbedWorkers, NewEmbedStage(deps.Embedder))

	return fn.TracedStage("ingest.pipeline",
		fn.Then(fn.Then(fn.TracedStage("ingest.chunk", chunkAll), logged),
			fn.TracedStage("ingest.embed", embedAll)))
}

// Run ingests every document under dataDir and writes the corpus table to
// outPath.
func Run(ctx context.Context, deps Deps, dataDir, outPath string) (int, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	docs, err := LoadDir(dataDir)
	if err != nil {
		return 0, err
	}
	log.Info("documents loaded", "dir", dataDir, "documents", len(docs))
	if len(docs) == 0 {
		return 0, fmt.Errorf("ingest: no documents under %s", dataDir)
	}

	chunks, err := NewPipeline(deps)(ctx, docs).Unwrap()
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("ingest: all chunks filtered out")
	}

	if err := corpus.WriteTable(outPath, chunks); err != nil {
		return 0, fmt.Errorf("ingest: write corpus: %w", err)
	}
	log.Info("corpus written", "path", outPath, "chunks", len(chunks))
	return len(chunks), nil
}
