package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// Head truncation limit. Embedding models cap input around 8k tokens;
	// ~4 chars per token gives a deterministic character bound.
	embeddingMaxTokens     = 8000
	embeddingCharsPerToken = 4
	embeddingMaxChars      = embeddingMaxTokens * embeddingCharsPerToken

	// EmbedBatch splits inputs into chunks of this size.
	embeddingBatchSize = 100

	// Pause between consecutive batch requests.
	embeddingBatchDelay = 200 * time.Millisecond

	// 429 backoff. Single calls retry once after the short delay; batch
	// calls retry the same batch after the longer delay.
	embeddingRetryDelay      = 1 * time.Second
	embeddingBatchRetryDelay = 5 * time.Second
)

// EmbeddingService calls an OpenAI-compatible embeddings endpoint.
type EmbeddingService struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	cache      *gocache.Cache
	metrics    *Metrics
}

// NewEmbeddingService creates an embedding client. An empty apiKey is
// allowed; calls then fail with ErrEmbeddingUnavailable and callers degrade.
func NewEmbeddingService(apiKey, baseURL, model string) *EmbeddingService {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &EmbeddingService{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      gocache.New(15*time.Minute, 30*time.Minute),
	}
}

// WithMetrics attaches request/error counters. Returns the service for
// chaining at startup.
func (s *EmbeddingService) WithMetrics(metrics *Metrics) *EmbeddingService {
	s.metrics = metrics
	return s
}

// Available reports whether the embedding capability is configured.
func (s *EmbeddingService) Available() bool {
	return s.apiKey != ""
}

// truncate applies the deterministic head truncation. Long input is never
// rejected. The cut backs up to a rune boundary so a multi-byte character
// is never split.
func truncate(text string) string {
	if len(text) <= embeddingMaxChars {
		return text
	}
	cut := embeddingMaxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Embed returns the embedding vector for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if !s.Available() {
		return nil, ErrEmbeddingUnavailable
	}

	text = truncate(text)

	if cached, found := s.cache.Get(text); found {
		return cached.([]float32), nil
	}

	vectors, status, err := s.request(ctx, []string{text})
	if status == http.StatusTooManyRequests {
		// Retry once after a short delay
		select {
		case <-time.After(embeddingRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		vectors, status, err = s.request(ctx, []string{text})
		if status == http.StatusTooManyRequests {
			return nil, ErrRateLimited
		}
	}
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	s.cache.Set(text, vectors[0], gocache.DefaultExpiration)
	return vectors[0], nil
}

// EmbedBatch returns embeddings for all texts, preserving input order.
// Inputs are processed in batches; a rate-limited batch is retried whole so
// no input is skipped.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !s.Available() {
		return nil, ErrEmbeddingUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncate(t)
	}

	out := make([][]float32, 0, len(truncated))
	for start := 0; start < len(truncated); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(truncated) {
			end = len(truncated)
		}
		batch := truncated[start:end]

		if start > 0 {
			select {
			case <-time.After(embeddingBatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vectors, status, err := s.request(ctx, batch)
		if status == http.StatusTooManyRequests {
			log.Printf("⚠️ [EMBEDDING] Rate limited on batch %d-%d, retrying after %s", start, end, embeddingBatchRetryDelay)
			select {
			case <-time.After(embeddingBatchRetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			vectors, status, err = s.request(ctx, batch)
			if status == http.StatusTooManyRequests {
				return nil, ErrRateLimited
			}
		}
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
		}

		out = append(out, vectors...)
	}

	return out, nil
}

// request performs one embeddings API call. The HTTP status is returned so
// callers can implement 429 retry policies.
func (s *EmbeddingService) request(ctx context.Context, inputs []string) ([][]float32, int, error) {
	if s.metrics != nil {
		s.metrics.RecordEmbeddingRequest()
	}

	requestBody := map[string]interface{}{
		"model": s.model,
		"input": inputs,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordEmbeddingError("transport")
		}
		return nil, 0, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if s.metrics != nil {
			s.metrics.RecordEmbeddingError("rate_limited")
		}
		return nil, resp.StatusCode, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		if s.metrics != nil {
			s.metrics.RecordEmbeddingError("upstream")
		}
		return nil, resp.StatusCode, &UpstreamError{Provider: "embeddings", Status: resp.StatusCode}
	}

	var apiResponse struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse embeddings response: %w", err)
	}

	// The API may return data out of order; respect the index field.
	vectors := make([][]float32, len(inputs))
	for _, d := range apiResponse.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, resp.StatusCode, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, resp.StatusCode, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return vectors, resp.StatusCode, nil
}
