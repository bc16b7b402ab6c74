// Package main implements the live-chat listener: it consumes viewer
// questions from NATS, runs them through the answering pipeline, and
// publishes the answers for the overlay to speak.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/ata243y/live-streamer-university-question-answering/engine/corpus"
	"github.com/ata243y/live-streamer-university-question-answering/engine/rag"
	"github.com/ata243y/live-streamer-university-question-answering/engine/router"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/metrics"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/natsutil"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/ollama"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider/openai"
)

const (
	// QuestionsSubject carries incoming viewer questions.
	QuestionsSubject = "chat.questions"
	// AnswersSubject carries pipeline answers for the overlay.
	AnswersSubject = "chat.answers"
	// ListenerQueue spreads the load across listener instances.
	ListenerQueue = "qa-listener"
)

// Question is one viewer message from the chat relay.
type Question struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Answer is the pipeline's reply to a question.
type Answer struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Text     string `json:"text"`
	Kind     string `json:"kind"`
}

// Config holds all environment-based configuration.
type Config struct {
	NATSURL     string
	DataPath    string
	LLMProvider string
	OpenAIKey   string
	OpenAIModel string
	SearchModel string
	EmbedModel  string
	IntentModel string
	OllamaURL   string
	OllamaModel string
	RatePerMin  int
	MetricsPort string
}

func loadConfig() Config {
	ratePerMin, _ := strconv.Atoi(envOr("QUESTIONS_PER_MINUTE", "6"))
	if ratePerMin <= 0 {
		ratePerMin = 6
	}
	return Config{
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		DataPath:    envOr("PROCESSED_DATA_PATH", "data/processed/embeddings.parquet"),
		LLMProvider: envOr("LLM_PROVIDER", "openai"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: envOr("OPENAI_MODEL_NAME", "gpt-4o"),
		SearchModel: envOr("OPENAI_SEARCH_MODEL", "gpt-4o-search-preview"),
		EmbedModel:  envOr("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
		IntentModel: envOr("CHITCHAT_CHECK_MODEL", "gpt-4o-mini"),
		OllamaURL:   envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel: envOr("LLM_MODEL_NAME", "llama3"),
		RatePerMin:  ratePerMin,
		MetricsPort: envOr("METRICS_PORT", "9091"),
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
		logger.Error("listener exited with error", "err", err)
		os.Exit(1)
	}
}

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

	return rag.New(rag.Deps{
		Store:     store,
		Router:    router.New(router.DefaultCategories(), logger),
		Embedder:  embedder,
		Generator: generator,
		Web:       oa,
		Intent:    intent,
		Metrics:   reg,
		Logger:    logger,
	}, rag.DefaultOptions()), nil
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	dropped := reg.Counter("qa_questions_dropped_total", "Questions dropped by the chat rate limit.")

	svc, err := buildService(cfg, reg, logger)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("qa-listener"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	// A live chat floods during streams; answering every message would
	// queue minutes of TTS. Tokens refill per minute with a small burst.
	limiter := rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), 2)

	handler := func(ctx context.Context, q Question) {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if !limiter.Allow() {
			dropped.Inc()
			logger.Info("question dropped by rate limit", "author", q.Author)
			return
		}

		logger.Info("question received", "id", q.ID, "author", q.Author)
		resp, err := svc.Process(ctx, q.Text)
		if err != nil {
			logger.Error("question processing failed", "id", q.ID, "err", err)
			publish(ctx, nc, Answer{ID: q.ID, Question: q.Text, Text: rag.ErrorResponse, Kind: "error"}, logger)
			return
		}

		switch resp.Kind {
		case rag.KindSilent:
			logger.Info("staying silent", "id", q.ID)
		case rag.KindBlocked:
			publish(ctx, nc, Answer{ID: q.ID, Question: q.Text, Text: resp.Text, Kind: "blocked"}, logger)
		case rag.KindCanned:
			publish(ctx, nc, Answer{ID: q.ID, Question: q.Text, Text: resp.Text, Kind: "canned"}, logger)
		case rag.KindError:
			publish(ctx, nc, Answer{ID: q.ID, Question: q.Text, Text: resp.Text, Kind: "error"}, logger)
		case rag.KindAnswer:
			text, err := collect(resp.Stream)
			if err != nil {
				logger.Error("answer stream failed", "id", q.ID, "err", err)
				return
			}
			publish(ctx, nc, Answer{ID: q.ID, Question: q.Text, Text: text, Kind: "answer"}, logger)
		}
	}

	sub, err := natsutil.QueueSubscribe(nc, QuestionsSubject, ListenerQueue, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", QuestionsSubject, err)
	}
	defer sub.Unsubscribe()

	go func() {
		logger.Info("metrics server starting", "port", cfg.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("listener running", "subject", QuestionsSubject, "rate_per_min", cfg.RatePerMin)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// collect drains an answer stream into a single string for TTS. The stream
// reports its own failures as a final user-facing segment, so errors here
// are unexpected.
func collect(stream *rag.AnswerStream) (string, error) {
	defer stream.Close()
	var b []byte
	for {
		seg, err := stream.Recv()
		if err == io.EOF {
			return string(b), nil
		}
		if err != nil {
			return "", err
		}
		b = append(b, seg...)
	}
}

func publish(ctx context.Context, nc *nats.Conn, a Answer, logger *slog.Logger) {
	if err := natsutil.Publish(ctx, nc, AnswersSubject, a); err != nil {
		logger.Error("answer publish failed", "id", a.ID, "err", err)
	}
}
