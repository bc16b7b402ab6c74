// Package openai implements the provider capabilities on the official
// OpenAI Go SDK: embeddings, streamed chat generation, the web-search model
// used by the fallback path, and intent classification.
package openai

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
)

const systemMessage = "Sen bir üniversite yönetmelik uzmanısın."

// Config selects the models used per capability.
type Config struct {
	APIKey      string
	ChatModel   string // answer generation and intent checks
	EmbedModel  string
	SearchModel string // web-search capable model for the fallback
}

// Client implements provider.Embedder, provider.Generator,
// provider.WebSearcher, and provider.IntentClassifier.
type Client struct {
	api openai.Client
	cfg Config
}

// New creates a client. Missing model names fall back to current defaults.
func New(cfg Config) *Client {
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.SearchModel == "" {
		cfg.SearchModel = "gpt-4o-search-preview"
	}
	return &Client{
		api: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg: cfg,
	}
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.cfg.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Generate streams a chat completion for the mode's prompt.
func (c *Client) Generate(ctx context.Context, query string, chunks []provider.ContextChunk, mode provider.Mode) (provider.Stream, error) {
	prompt := provider.BuildPrompt(query, chunks, mode)
	stream := c.api.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemMessage),
			openai.UserMessage(prompt),
		},
	})
	return &chatStream{inner: stream}, nil
}

// chatStream adapts the SDK's SSE stream to provider.Stream, skipping
// fragments with no delta content.
type chatStream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *chatStream) Recv() (string, error) {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	if err := s.inner.Err(); err != nil {
		return "", fmt.Errorf("openai stream: %w", err)
	}
	return "", io.EOF
}

func (s *chatStream) Close() error {
	return s.inner.Close()
}

// Search runs the query through the web-search model and returns its answer
// text. The model performs the lookup natively.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.SearchModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai web search: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai web search: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// IsChitchat asks the chat model for a YES/NO intent verdict.
func (c *Client) IsChitchat(ctx context.Context, text string) (bool, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a helpful assistant."),
			openai.UserMessage(provider.IntentPrompt(text)),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(5),
	})
	if err != nil {
		return false, fmt.Errorf("openai intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("openai intent: empty response")
	}
	return strings.Contains(strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content)), "YES"), nil
}
