// Package main implements the question answering API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ata243y/live-streamer-university-question-answering/engine/corpus"
	"github.com/ata243y/live-streamer-university-question-answering/engine/rag"
	"github.com/ata243y/live-streamer-university-question-answering/engine/router"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/metrics"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/mid"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/ollama"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/openai"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	DataPath     string
	CORSOrigin   string
	LLMProvider  string // openai or ollama
	OpenAIKey    string
	OpenAIModel  string
	SearchModel  string
	EmbedModel   string
	IntentModel  string
	OllamaURL    string
	OllamaModel  string
	DisableCache bool
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "5001"),
		DataPath:     envOr("PROCESSED_DATA_PATH", "data/processed/embeddings.parquet"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		LLMProvider:  envOr("LLM_PROVIDER", "openai"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  envOr("OPENAI_MODEL_NAME", "gpt-4o"),
		SearchModel:  envOr("OPENAI_SEARCH_MODEL", "gpt-4o-search-preview"),
		EmbedModel:   envOr("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
		IntentModel:  envOr("CHITCHAT_CHECK_MODEL", "gpt-4o-mini"),
		OllamaURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:  envOr("LLM_MODEL_NAME", "llama3"),
		DisableCache: os.Getenv("DISABLE_CACHE") == "1",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// buildService wires the providers and the pipeline from config.
func buildService(cfg Config, reg *metrics.Registry, logger *slog.Logger) (*rag.Service, error) {
	store, err := corpus.Open(cfg.DataPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}

	if cfg.OpenAIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, web search and intent checks will fail")
	}
	oa := openai.New(openai.Config{
		APIKey:      cfg.OpenAIKey,
		ChatModel:   cfg.OpenAIModel,
		EmbedModel:  cfg.EmbedModel,
		SearchModel: cfg.SearchModel,
	})
	ol := ollama.New(cfg.OllamaURL, cfg.EmbedModel, cfg.OllamaModel)

	var embedder provider.Embedder = ol
	var generator provider.Generator = ol
	var intent provider.IntentClassifier = ol
	if cfg.LLMProvider == "openai" {
		embedder = oa
		generator = oa
		intent = openai.New(openai.Config{APIKey: cfg.OpenAIKey, ChatModel: cfg.IntentModel})
	}

	opts := rag.DefaultOptions()
	opts.DisableCache = cfg.DisableCache

	return rag.New(rag.Deps{
		Store:     store,
		Router:    router.New(router.DefaultCategories(), logger),
		Embedder:  embedder,
		Generator: generator,
		Web:       oa,
		Intent:    intent,
		Metrics:   reg,
		Logger:    logger,
	}, opts), nil
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	svc, err := buildService(cfg, reg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(svc))
	mux.HandleFunc("POST /api/ask", handleAsk(svc, logger))
	mux.HandleFunc("POST /api/retrieve", handleRetrieve(svc, logger))
	mux.HandleFunc("POST /api/knowledge", handleKnowledge(svc, logger))
	mux.HandleFunc("GET /api/cache/stats", handleCacheStats(svc))
	mux.HandleFunc("DELETE /api/cache", handleCacheClear(svc))
	mux.HandleFunc("POST /api/debug/query", handleDebugQuery(svc))
	mux.HandleFunc("GET /api/router/stats", handleRouterStats(svc))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("qa-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // answers stream
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"chunks": svc.CorpusLen(),
		})
	}
}

// AskRequest is the JSON body for POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// handleAsk streams the answer as plain text. Chitchat the pipeline decides
// to ignore yields 204 with no body.
func handleAsk(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			http.Error(w, router.EmptyQueryResponse, http.StatusBadRequest)
			return
		}

		resp, err := svc.Process(r.Context(), req.Question)
		if err != nil {
			logger.Error("question processing failed", "err", err)
			http.Error(w, rag.ErrorResponse, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch resp.Kind {
		case rag.KindSilent:
			w.WriteHeader(http.StatusNoContent)
		case rag.KindBlocked, rag.KindCanned, rag.KindError:
			io.WriteString(w, resp.Text)
		case rag.KindAnswer:
			streamAnswer(w, resp.Stream, logger)
		}
	}
}

// streamAnswer copies answer segments to the client, flushing per segment.
// The stream converts its own failures into a final user-facing segment, so
// a non-EOF error here is unexpected and only logged.
func streamAnswer(w http.ResponseWriter, stream *rag.AnswerStream, logger *slog.Logger) {
	defer stream.Close()
	flusher, _ := w.(http.Flusher)
	for {
		seg, err := stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			logger.Error("answer stream failed", "err", err)
			return
		}
		io.WriteString(w, seg)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// RetrieveRequest is the JSON body for POST /api/retrieve.
type RetrieveRequest struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k"`
	MinScore *float32 `json:"min_score"`
	UseCache *bool    `json:"use_cache"`
}

func handleRetrieve(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		opts := rag.DefaultOptions()
		if req.TopK <= 0 {
			req.TopK = opts.TopK
		}
		minScore := opts.ScoreThreshold
		if req.MinScore != nil {
			minScore = *req.MinScore
		}
		useCache := true
		if req.UseCache != nil {
			useCache = *req.UseCache
		}

		results, err := svc.Retrieve(r.Context(), req.Query, req.TopK, minScore, useCache)
		if err != nil {
			logger.Error("retrieve failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

// KnowledgeRequest is the JSON body for POST /api/knowledge.
type KnowledgeRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func handleKnowledge(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KnowledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Text == "" || req.Source == "" {
			http.Error(w, `{"error":"text and source are required"}`, http.StatusBadRequest)
			return
		}

		if err := svc.AddKnowledge(r.Context(), req.Text, req.Source); err != nil {
			logger.Error("add knowledge failed", "err", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "chunks": svc.CorpusLen()})
	}
}

func handleCacheStats(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.CacheStats())
	}
}

func handleCacheClear(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		svc.ClearCache()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

func handleRouterStats(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.RouterStats())
	}
}

// DebugRequest is the JSON body for POST /api/debug/query.
type DebugRequest struct {
	Query string `json:"query"`
}

func handleDebugQuery(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DebugRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(svc.DebugQuery(req.Query))
	}
}
