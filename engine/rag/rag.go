// Package rag orchestrates the question answering pipeline: safety routing,
// cached retrieval over the regulation corpus, streamed generation, and the
// web-search fallback that feeds answers back into the corpus.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ata243y/live-streamer-university-question-answering/engine/corpus"
	"github.com/ata243y/live-streamer-university-question-answering/engine/qcache"
	"github.com/ata243y/live-streamer-university-question-answering/engine/router"
	"github.com/ata243y/live-streamer-university-question-answering/engine/semantic"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/metrics"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
	"github.com/ata243y/live-streamer-university-question-answering/pkg/resilience"
)

// User-facing responses. The viewers are Turkish students, so these stay in
// Turkish regardless of deployment locale.
const (
	BlockedResponse = "Sorunuz güvenlik nedeniyle yanıtlanamadı."
	ErrorResponse   = "Cevap üretilirken bir sorun oluştu. Lütfen tekrar deneyin."
)

// Options tune retrieval and caching.
type Options struct {
	TopK                   int
	ScoreThreshold         float32
	CacheSize              int
	SemanticCacheThreshold float32
	DisableCache           bool
	FallbackSource         string
}

// DefaultOptions mirror the tuning the pipeline ships with.
func DefaultOptions() Options {
	return Options{
		TopK:                   3,
		ScoreThreshold:         0.3,
		CacheSize:              100,
		SemanticCacheThreshold: 0.95,
		FallbackSource:         "web_search_fallback",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if o.ScoreThreshold == 0 {
		o.ScoreThreshold = def.ScoreThreshold
	}
	if o.CacheSize <= 0 {
		o.CacheSize = def.CacheSize
	}
	if o.SemanticCacheThreshold == 0 {
		o.SemanticCacheThreshold = def.SemanticCacheThreshold
	}
	if o.FallbackSource == "" {
		o.FallbackSource = def.FallbackSource
	}
	return o
}

// Deps are the collaborators a Service needs. Intent and Metrics are
// optional; a nil intent classifier skips the model-backed chitchat check.
type Deps struct {
	Store     *corpus.Store
	Router    *router.Router
	Embedder  provider.Embedder
	Generator provider.Generator
	Web       provider.WebSearcher
	Intent    provider.IntentClassifier
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Service is the question answering pipeline.
type Service struct {
	store      *corpus.Store
	index      *semantic.Index
	cache      *qcache.Cache
	router     *router.Router
	embedder   provider.Embedder
	generator  provider.Generator
	web        provider.WebSearcher
	intent     provider.IntentClassifier
	genBreaker *resilience.Breaker
	webBreaker *resilience.Breaker
	opts       Options
	log        *slog.Logger
	met        *serviceMetrics
}

// New wires the pipeline.
func New(deps Deps, opts Options) *Service {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		store:      deps.Store,
		index:      semantic.NewIndex(deps.Store),
		cache:      qcache.New(opts.CacheSize, opts.SemanticCacheThreshold, !opts.DisableCache),
		router:     deps.Router,
		embedder:   deps.Embedder,
		generator:  deps.Generator,
		web:        deps.Web,
		intent:     deps.Intent,
		genBreaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		webBreaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:       opts,
		log:        deps.Logger,
		met:        newServiceMetrics(deps.Metrics),
	}
}

// Kind classifies a pipeline outcome.
type Kind int

const (
	KindBlocked Kind = iota // injection attempt, fixed refusal
	KindSilent              // chitchat, no response at all
	KindCanned              // chitchat with a canned response
	KindAnswer              // streamed model answer
	KindError               // pipeline failure, fixed error message
)

// Response is the outcome of processing one incoming question.
type Response struct {
	Kind   Kind
	Text   string        // KindBlocked, KindCanned, KindError
	Stream *AnswerStream // KindAnswer, caller must Close
}

// Process runs the full decision tree for one question: safety check,
// model-backed chitchat check, keyword chitchat check, then retrieval and
// generation. Pipeline failures surface as KindError carrying the fixed
// user-facing error message, never as a raw error.
func (s *Service) Process(ctx context.Context, question string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{Kind: KindCanned, Text: router.EmptyQueryResponse}, nil
	}

	if s.router.IsInjection(question) {
		s.met.blocked.Inc()
		return Response{Kind: KindBlocked, Text: BlockedResponse}, nil
	}

	if s.intent != nil {
		chitchat, err := s.intent.IsChitchat(ctx, question)
		if err != nil {
			s.log.Warn("intent check failed, continuing", "error", err)
		} else if chitchat {
			s.met.chitchat.Inc()
			s.log.Info("model flagged chitchat, staying silent", "question", question)
			return Response{Kind: KindSilent}, nil
		}
	}

	if canned, ok := s.router.ChitchatResponse(question); ok {
		s.met.chitchat.Inc()
		return Response{Kind: KindCanned, Text: canned}, nil
	}

	stream, err := s.Answer(ctx, question)
	if err != nil {
		s.log.Error("answer failed", "question", question, "error", err)
		return Response{Kind: KindError, Text: ErrorResponse}, nil
	}
	return Response{Kind: KindAnswer, Stream: stream}, nil
}

// Answer retrieves context for the question and opens an answer stream.
// With no context above the score threshold the stream starts directly in
// web-fallback mode.
func (s *Service) Answer(ctx context.Context, question string) (*AnswerStream, error) {
	results, err := s.Retrieve(ctx, question, s.opts.TopK, s.opts.ScoreThreshold, !s.opts.DisableCache)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		s.log.Info("no context above threshold, going straight to web fallback", "question", question)
		stream, err := s.fallbackStream(ctx, question)
		if err != nil {
			return nil, err
		}
		return &AnswerStream{svc: s, ctx: ctx, query: question, inner: stream, mode: provider.ModeWeb}, nil
	}

	chunks := make([]provider.ContextChunk, len(results))
	for i, r := range results {
		chunks[i] = provider.ContextChunk{Text: r.Text, Source: r.Source}
	}

	stream, err := resilience.Do(s.genBreaker, ctx, func(ctx context.Context) (provider.Stream, error) {
		return s.generator.Generate(ctx, question, chunks, provider.ModeStrict)
	})
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}
	return &AnswerStream{svc: s, ctx: ctx, query: question, inner: stream, mode: provider.ModeStrict}, nil
}

// Retrieve returns the corpus chunks most similar to the query. Exact cache
// hits skip embedding entirely; semantic hits skip the search.
func (s *Service) Retrieve(ctx context.Context, query string, topK int, minScore float32, useCache bool) ([]qcache.Result, error) {
	start := time.Now()
	defer s.met.retrieve.Since(start)

	useCache = useCache && s.cache.Enabled()
	key := qcache.NewKey(query, topK)

	if useCache {
		if results, ok := s.cache.GetExact(key); ok {
			s.met.hitsExact.Inc()
			s.log.Info("exact cache hit", "query", query)
			return results, nil
		}
	}

	searchQuery := expandQuery(query)
	expanded := searchQuery != query
	if expanded {
		s.log.Info("query expanded", "query", query)
	}

	embedding, err := s.embedder.Embed(ctx, searchQuery)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	// The semantic tier holds embeddings of original query text. An expanded
	// query's embedding covers the rewritten search text instead, so it
	// neither consults nor seeds that tier.
	if useCache && !expanded {
		if results, original, ok := s.cache.GetSemantic(embedding); ok {
			s.met.hitsSemantic.Inc()
			s.log.Info("semantic cache hit", "query", query, "cached_query", original)
			return results, nil
		}
	}

	found := s.index.Search(embedding, topK, minScore)
	results := make([]qcache.Result, len(found))
	for i, f := range found {
		results[i] = qcache.Result{Text: f.Text, Source: f.Source}
	}

	if useCache {
		if expanded {
			s.cache.PutExact(key, results)
		} else {
			s.cache.Put(key, embedding, query, results)
		}
	}
	s.met.misses.Inc()
	return results, nil
}

// fallbackStream runs the web search, generates a web-mode answer over the
// result, and only after that succeeds appends the answer together with the
// raw search text to the corpus. A failed search or generation leaves the
// corpus and both cache tiers untouched.
func (s *Service) fallbackStream(ctx context.Context, question string) (provider.Stream, error) {
	s.met.fallbacks.Inc()
	s.log.Info("web search fallback", "question", question)

	text, err := resilience.Do(s.webBreaker, ctx, func(ctx context.Context) (string, error) {
		return s.web.Search(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("rag: web search: %w", err)
	}

	chunks := []provider.ContextChunk{{Text: text, Source: s.opts.FallbackSource}}
	stream, err := resilience.Do(s.genBreaker, ctx, func(ctx context.Context) (provider.Stream, error) {
		return s.generator.Generate(ctx, question, chunks, provider.ModeWeb)
	})
	if err != nil {
		return nil, fmt.Errorf("rag: fallback generate: %w", err)
	}

	answer, err := drain(stream)
	if err != nil {
		return nil, fmt.Errorf("rag: fallback generate: %w", err)
	}

	knowledge := text
	if answer != "" {
		knowledge = answer + "\n\n" + text
	}
	if err := s.AddKnowledge(ctx, knowledge, s.opts.FallbackSource); err != nil {
		s.log.Error("fallback answer not added to corpus", "error", err)
	}
	return &textStream{text: answer}, nil
}

// AddKnowledge embeds text and appends it to the corpus. The cache is
// cleared only when the append fully persisted; a partial append keeps
// serving from memory and leaves the cache alone.
func (s *Service) AddKnowledge(ctx context.Context, text, source string) error {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("rag: embed knowledge: %w", err)
	}

	err = s.store.Append(corpus.Chunk{Text: text, Source: source, Embedding: embedding})
	if err != nil {
		if errors.Is(err, corpus.ErrDimensionMismatch) {
			return err
		}
		s.log.Error("knowledge kept in memory only", "source", source, "error", err)
		return nil
	}

	s.cache.Clear()
	s.met.invalidations.Inc()
	s.log.Info("knowledge added, cache cleared", "source", source)
	return nil
}

// CacheStats exposes the retrieval cache state.
func (s *Service) CacheStats() qcache.Stats {
	return s.cache.Snapshot()
}

// ClearCache drops both cache tiers.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.met.invalidations.Inc()
}

// DebugQuery exposes the router's view of a query.
func (s *Service) DebugQuery(query string) router.Debug {
	return s.router.DebugQuery(query)
}

// RouterStats exposes the router's pattern counts.
func (s *Service) RouterStats() router.Stats {
	return s.router.Stats()
}

// CorpusLen reports the number of chunks currently searchable.
func (s *Service) CorpusLen() int {
	return s.store.Len()
}

type serviceMetrics struct {
	hitsExact     *metrics.Counter
	hitsSemantic  *metrics.Counter
	misses        *metrics.Counter
	invalidations *metrics.Counter
	fallbacks     *metrics.Counter
	blocked       *metrics.Counter
	chitchat      *metrics.Counter
	retrieve      *metrics.Histogram
}

func newServiceMetrics(reg *metrics.Registry) *serviceMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	return &serviceMetrics{
		hitsExact:     reg.Counter(metrics.WithLabels("qa_cache_hits_total", "tier", "exact"), "Retrieval cache hits by tier."),
		hitsSemantic:  reg.Counter(metrics.WithLabels("qa_cache_hits_total", "tier", "semantic"), "Retrieval cache hits by tier."),
		misses:        reg.Counter("qa_cache_misses_total", "Retrievals that went to the index."),
		invalidations: reg.Counter("qa_cache_invalidations_total", "Cache clears after corpus changes."),
		fallbacks:     reg.Counter("qa_web_fallbacks_total", "Questions answered via web search."),
		blocked:       reg.Counter("qa_injections_blocked_total", "Questions refused by the safety check."),
		chitchat:      reg.Counter("qa_chitchat_total", "Questions short-circuited as chitchat."),
		retrieve:      reg.Histogram("qa_retrieval_seconds", "Retrieval latency including cache lookups.", nil),
	}
}
