// Package corpus owns the retrievable knowledge base: an ordered sequence of
// text chunks with their source labels and embeddings, kept row-aligned with
// an in-memory embedding matrix and persisted as a parquet table.
package corpus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Chunk is one retrievable unit of text. Chunks are immutable once created;
// the store only ever appends.
type Chunk struct {
	Text      string
	Source    string
	Embedding []float32
}

var (
	// ErrEmptyCorpus is returned when a store is loaded from a file with no rows.
	ErrEmptyCorpus = errors.New("corpus: no chunks in store")
	// ErrDimensionMismatch is returned when an appended embedding does not
	// match the dimensionality fixed at load time.
	ErrDimensionMismatch = errors.New("corpus: embedding dimension mismatch")
)

// Store holds the chunk sequence and the row-aligned embedding matrix.
// Insertion order is the row index used by the vector index. All mutation
// happens under one exclusive lock so readers never observe a matrix that
// is out of step with the chunk sequence.
type Store struct {
	mu     sync.RWMutex
	path   string
	dims   int
	texts  []string
	srcs   []string
	matrix [][]float32

	logger *slog.Logger
}

// Open loads the parquet table at path fully into memory. A missing or
// unreadable file is fatal to the caller: the service must not start with an
// undefined index.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	rows, err := readRows(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("corpus: load %s: %w", path, ErrEmptyCorpus)
	}
	s.dims = len(rows[0].Embedding)
	for i, r := range rows {
		if len(r.Embedding) != s.dims {
			return nil, fmt.Errorf("corpus: load %s: row %d has %d dims, want %d",
				path, i, len(r.Embedding), s.dims)
		}
		s.texts = append(s.texts, r.TextChunk)
		s.srcs = append(s.srcs, r.SourceDocument)
		s.matrix = append(s.matrix, r.Embedding)
	}
	logger.Info("corpus loaded", "path", path, "chunks", len(s.texts), "dims", s.dims)
	return s, nil
}

// NewInMemory creates a store that is not backed by a file. Appends skip
// persistence. Used by tests and the ingestion pipeline.
func NewInMemory(dims int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dims: dims, logger: logger}
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Dims returns the embedding dimensionality fixed for this store instance.
func (s *Store) Dims() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Chunk returns the chunk at row i.
func (s *Store) Chunk(i int) Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Chunk{Text: s.texts[i], Source: s.srcs[i], Embedding: s.matrix[i]}
}

// Snapshot returns the current matrix together with the aligned text and
// source slices. The returned slices share backing arrays with the store and
// must be treated as read-only; appends never mutate existing rows, so a
// snapshot stays internally consistent after release of the lock.
func (s *Store) Snapshot() (matrix [][]float32, texts []string, sources []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matrix, s.texts, s.srcs
}

// Append adds a chunk to the in-memory sequence and rewrites the durable
// copy. The whole append, including the re-read-union-rewrite of the table,
// runs under the exclusive lock: concurrent appends serialize, so each
// rewrite sees every earlier row and the file never loses an append that
// already succeeded in memory. A persistence failure keeps the in-memory
// addition and is reported to the caller, which logs it and continues in
// degraded mode.
func (s *Store) Append(c Chunk) error {
	if len(c.Embedding) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(c.Embedding), s.dims)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.texts = append(s.texts, c.Text)
	s.srcs = append(s.srcs, c.Source)
	s.matrix = append(s.matrix, c.Embedding)

	s.logger.Info("corpus append", "source", c.Source, "chunks", len(s.texts))

	if s.path == "" {
		return nil
	}
	if err := s.persist(c); err != nil {
		return fmt.Errorf("corpus: persist append: %w", err)
	}
	return nil
}

// persist re-reads the durable table, unions the new row, and rewrites the
// whole file. The format has no partial-write mode, so the rewrite goes
// through a temp file and a rename. Must hold mu.
func (s *Store) persist(c Chunk) error {
	rows, err := readRows(s.path)
	if err != nil {
		return err
	}
	rows = append(rows, row{
		TextChunk:      c.Text,
		SourceDocument: c.Source,
		Embedding:      c.Embedding,
	})
	return writeRows(s.path, rows)
}
