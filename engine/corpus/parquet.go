package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// row is the parquet schema of the persisted corpus. Field names match the
// table written by the ingestion pipeline.
type row struct {
	TextChunk      string    `parquet:"text_chunk"`
	SourceDocument string    `parquet:"source_document"`
	Embedding      []float32 `parquet:"embedding,list"`
}

func readRows(path string) ([]row, error) {
	rows, err := parquet.ReadFile[row](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// writeRows rewrites the table wholesale. Written to a temp file in the same
// directory first so a crash mid-write never leaves a truncated corpus.
func writeRows(path string, rows []row) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".corpus-*.parquet")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := parquet.WriteFile(tmpName, rows); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// WriteTable writes a fresh corpus table from chunks. Used by the ingestion
// pipeline to produce the initial corpus.
func WriteTable(path string, chunks []Chunk) error {
	rows := make([]row, len(chunks))
	for i, c := range chunks {
		rows[i] = row{TextChunk: c.Text, SourceDocument: c.Source, Embedding: c.Embedding}
	}
	if err := writeRows(path, rows); err != nil {
		return fmt.Errorf("corpus: write table %s: %w", path, err)
	}
	return nil
}
