// Package main builds the regulation corpus from scraped text files.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ata243y/live-streamer-university-question-answering/engine/ingest"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/ollama"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/openai"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	dataDir := flag.String("data", envOr("RAW_DATA_DIR", "data/raw"), "directory of scraped .txt files")
	outPath := flag.String("out", envOr("PROCESSED_DATA_PATH", "data/processed/embeddings.parquet"), "output corpus path")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var embedder provider.Embedder
	if envOr("LLM_PROVIDER", "openai") == "openai" {
		embedder = openai.New(openai.Config{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			EmbedModel: envOr("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		})
	} else {
		embedder = ollama.New(
			envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
			envOr("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
			envOr("LLM_MODEL_NAME", "llama3"),
		)
	}

	n, err := ingest.Run(ctx, ingest.Deps{Embedder: embedder, Logger: logger}, *dataDir, *outPath)
	if err != nil {
		logger.Error("ingestion failed", "err", err)
		os.Exit(1)
	}
	logger.Info("ingestion complete", "chunks", n, "out", *outPath)
}
