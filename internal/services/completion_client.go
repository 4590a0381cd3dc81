package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CompletionClient calls an OpenAI-compatible chat completions endpoint.
// Shared by memory extraction and session summarization.
type CompletionClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// CompletionMessage is one chat turn sent to the model.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries the per-call options.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Temperature float64
	MaxTokens   int
	// JSONSchema, when set, requests structured output with this schema
	// under the given SchemaName.
	SchemaName string
	JSONSchema map[string]interface{}
}

// NewCompletionClient creates a chat completions client. An empty apiKey or
// model is allowed; callers must check Available and skip the call.
func NewCompletionClient(apiKey, baseURL, model string) *CompletionClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &CompletionClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Available reports whether the completion capability is configured.
func (c *CompletionClient) Available() bool {
	return c.apiKey != "" && c.model != ""
}

// Complete sends the messages and returns the assistant's reply content.
func (c *CompletionClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	requestBody := map[string]interface{}{
		"model":    c.model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Temperature > 0 {
		requestBody["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}
	if req.JSONSchema != nil {
		requestBody["response_format"] = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   req.SchemaName,
				"strict": true,
				"schema": req.JSONSchema,
			},
		}
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Provider: "completions", Status: resp.StatusCode}
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}

	return apiResponse.Choices[0].Message.Content, nil
}
