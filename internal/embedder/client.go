// Package embedder converts chunks into fixed-dimension vectors through an
// OpenAI-compatible embeddings API, in batches with rate-limit backoff.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sskim91/bookbrain/internal/chunker"
	"github.com/sskim91/bookbrain/internal/errs"
)

// EmbeddedChunk pairs a chunk with its vector.
type EmbeddedChunk struct {
	Chunk  chunker.Chunk `json:"chunk"`
	Vector []float32     `json:"vector"`
}

// Result is the outcome of embedding one document's chunks. ModelVersion is
// what the provider actually reported for the last successful batch.
type Result struct {
	EmbeddedChunks []EmbeddedChunk `json:"embedded_chunks"`
	ModelVersion   string          `json:"model_version"`
	TotalTokens    int             `json:"total_tokens"`
}

var errRateLimited = errors.New("rate limited")

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	maxRetries int
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(apiKey, baseURL, model string, dimensions, batchSize, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions == 0 {
		dimensions = 1536
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay == 0 {
		baseDelay = 1 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// embeddingRequest is the OpenAI embedding API request body.
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// embeddingResponse is the OpenAI embedding API response body.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates vectors for chunks in batches, preserving input order.
// Empty input returns an empty result without a network call.
func (c *Client) Embed(ctx context.Context, chunks []chunker.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{EmbeddedChunks: []EmbeddedChunk{}, ModelVersion: c.model}, nil
	}

	result := &Result{
		EmbeddedChunks: make([]EmbeddedChunk, 0, len(chunks)),
		ModelVersion:   c.model,
	}

	for start := 0; start < len(chunks); start += c.batchSize {
		end := start + c.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, model, tokens, err := c.callWithRetry(ctx, texts)
		if err != nil {
			return nil, err
		}
		result.TotalTokens += tokens
		result.ModelVersion = model

		for i, chunk := range batch {
			if c.dimensions > 0 && len(vectors[i]) != c.dimensions {
				return nil, &errs.EmbeddingError{
					Message: fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(vectors[i]), c.dimensions),
				}
			}
			result.EmbeddedChunks = append(result.EmbeddedChunks, EmbeddedChunk{
				Chunk:  chunk,
				Vector: vectors[i],
			})
		}
	}

	return result, nil
}

// EmbedQuery embeds a single text, used for search queries.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, _, _, err := c.callWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &errs.EmbeddingError{Message: "no embedding returned"}
	}
	return vectors[0], nil
}

// callWithRetry retries rate-limited calls with exponential backoff
// (baseDelay * 2^attempt). Any other provider error fails immediately.
func (c *Client) callWithRetry(ctx context.Context, texts []string) ([][]float32, string, int, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vectors, model, tokens, err := c.call(ctx, texts)
		if err == nil {
			return vectors, model, tokens, nil
		}
		if !errors.Is(err, errRateLimited) {
			return nil, "", 0, &errs.EmbeddingError{Message: "embedding API error: " + err.Error(), Err: err}
		}
		lastErr = err

		if attempt < c.maxRetries-1 {
			delay := c.baseDelay * (1 << attempt)
			c.logger.Warn("embedding API rate limited, retrying",
				zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, "", 0, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, "", 0, &errs.EmbeddingError{
		Message: fmt.Sprintf("rate limit exceeded after %d retries", c.maxRetries),
		Retries: c.maxRetries,
		Err:     lastErr,
	}
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, string, int, error) {
	body, err := json.Marshal(embeddingRequest{
		Input:          texts,
		Model:          c.model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", 0, fmt.Errorf("%w: %s", errRateLimited, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", 0, fmt.Errorf("API error (status %d): %s", resp.StatusCode, respBody)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, "", 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, "", 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range parsed.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, "", 0, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}

	return vectors, parsed.Model, parsed.Usage.TotalTokens, nil
}
