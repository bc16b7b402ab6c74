// Package ollama implements the provider capabilities against a local
// Ollama server's HTTP API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
)

// Client talks to one Ollama instance. It implements provider.Embedder,
// provider.Generator, and provider.IntentClassifier.
type Client struct {
	baseURL    string
	embedModel string
	genModel   string
	http       *http.Client
}

// New creates a client. genModel is used for generation and intent checks,
// embedModel for embeddings.
func New(baseURL, embedModel, genModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		genModel:   genModel,
		http:       &http.Client{Timeout: 5 * time.Minute},
	}
}

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, _ := json.Marshal(embedReq{Model: c.embedModel, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

type generateReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate streams a completion as NDJSON lines from /api/generate.
func (c *Client) Generate(ctx context.Context, query string, chunks []provider.ContextChunk, mode provider.Mode) (provider.Stream, error) {
	prompt := provider.BuildPrompt(query, chunks, mode)
	body, _ := json.Marshal(generateReq{Model: c.genModel, Prompt: prompt, Stream: true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama generate: status %d", resp.StatusCode)
	}

	return &ndjsonStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// ndjsonStream reads one generateResp per line until done.
type ndjsonStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ndjsonStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateResp
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("ollama stream decode: %w", err)
		}
		if chunk.Done && chunk.Response == "" {
			s.done = true
			return "", io.EOF
		}
		if chunk.Done {
			s.done = true
		}
		return chunk.Response, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *ndjsonStream) Close() error {
	s.done = true
	return s.body.Close()
}

// IsChitchat asks the generation model for a YES/NO intent verdict.
func (c *Client) IsChitchat(ctx context.Context, text string) (bool, error) {
	body, _ := json.Marshal(generateReq{Model: c.genModel, Prompt: provider.IntentPrompt(text), Stream: false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama intent: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama intent: status %d", resp.StatusCode)
	}

	var result generateResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("ollama intent decode: %w", err)
	}
	return strings.Contains(strings.ToUpper(strings.TrimSpace(result.Response)), "YES"), nil
}
