package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"chatnil/internal/models"
)

// Trigger rules in precedence order. The classifier is deliberately
// conservative: most educational queries must not trigger a live search.
var (
	recencyWordsRe = regexp.MustCompile(`\b(latest|today|yesterday|this week|breaking|recent|recently|right now|currently|news)\b`)

	ruleVerificationRe = regexp.MustCompile(`\b((current|new|updated?) (nil )?(rules?|laws?|regulations?|policy|policies)|(is|are) (it|this|that) (still )?(legal|allowed|permitted)|did the (rules?|laws?) change)\b`)

	brandLegitimacyRe = regexp.MustCompile(`\b((is|are) [\w .&'-]+ (legit|legitimate|a scam|trustworthy|real)|should i trust)\b`)

	dealValuationRe = regexp.MustCompile(`\b(how much (is|was|did)[\w .&'-]* (deal|contract|worth|paid?|cost)|deal (value|worth|size)|(biggest|largest|highest.paid) (nil )?deals?)\b`)

	marketDataRe = regexp.MustCompile(`\b(market (rate|value|data)|going rate|average (nil )?(earnings|compensation|pay)|valuation)\b`)
)

// RealtimeSearchService decides whether a query needs live information and
// fetches it from a Perplexity-style search API.
type RealtimeSearchService struct {
	apiKey        string
	baseURL       string
	model         string
	recencyWindow string
	maxTokens     int
	httpClient    *http.Client
	metrics       *Metrics
}

// NewRealtimeSearchService creates a real-time search client. An empty
// apiKey disables fetching; ShouldTrigger still works and Fetch degrades to
// no result.
func NewRealtimeSearchService(apiKey, baseURL, model string, metrics *Metrics) *RealtimeSearchService {
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if model == "" {
		model = "sonar"
	}

	return &RealtimeSearchService{
		apiKey:        apiKey,
		baseURL:       baseURL,
		model:         model,
		recencyWindow: "week",
		maxTokens:     500,
		httpClient:    &http.Client{Timeout: 20 * time.Second},
		metrics:       metrics,
	}
}

// ShouldTrigger classifies whether a query needs live external information.
// Rules are evaluated in fixed precedence; no rule matching means no live
// search.
func (s *RealtimeSearchService) ShouldTrigger(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}

	switch {
	case recencyWordsRe.MatchString(q):
		return true
	case ruleVerificationRe.MatchString(q):
		return true
	case brandLegitimacyRe.MatchString(q):
		return true
	case dealValuationRe.MatchString(q):
		return true
	case marketDataRe.MatchString(q):
		return true
	}
	return false
}

// Fetch runs a scoped live search. A missing provider, upstream failure, or
// empty content all yield (nil, nil): the pipeline carries on without
// real-time context.
func (s *RealtimeSearchService) Fetch(ctx context.Context, query string) (*models.RealtimeResult, error) {
	if s.apiKey == "" {
		return nil, nil
	}

	requestBody := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": "Answer concisely with current, factual information about the NIL (name, image, likeness) landscape for student-athletes. Cite sources."},
			{"role": "user", "content": query},
		},
		"max_tokens":            s.maxTokens,
		"search_recency_filter": s.recencyWindow,
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("⚠️ [REALTIME-SEARCH] Request failed: %v", err)
		return nil, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("⚠️ [REALTIME-SEARCH] Failed to read response: %v", err)
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [REALTIME-SEARCH] API error (status %d)", resp.StatusCode)
		return nil, nil
	}

	var apiResponse struct {
		Citations []string `json:"citations"`
		Choices   []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		log.Printf("⚠️ [REALTIME-SEARCH] Failed to parse response: %v", err)
		return nil, nil
	}
	if len(apiResponse.Choices) == 0 {
		return nil, nil
	}

	content := strings.TrimSpace(apiResponse.Choices[0].Message.Content)
	if content == "" {
		return nil, nil
	}

	citations := make([]models.Citation, 0, len(apiResponse.Citations))
	for _, url := range apiResponse.Citations {
		citations = append(citations, models.Citation{URL: url})
	}

	if s.metrics != nil {
		s.metrics.RecordRealtimeSearch()
	}
	log.Printf("🔍 [REALTIME-SEARCH] Fetched live context (%d chars, %d citations)", len(content), len(citations))

	return &models.RealtimeResult{
		Content:   content,
		Citations: citations,
	}, nil
}
