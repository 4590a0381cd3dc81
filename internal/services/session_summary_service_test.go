package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatnil/internal/models"
)

func TestSummarizeGates(t *testing.T) {
	t.Run("missing identifiers", func(t *testing.T) {
		svc := &SessionSummaryService{completion: NewCompletionClient("key", "http://unreachable.invalid", "model")}
		if _, err := svc.Summarize(context.Background(), "", "session-1", nil); err == nil {
			t.Error("expected error for missing user ID")
		}
		if _, err := svc.Summarize(context.Background(), "user-1", "", nil); err == nil {
			t.Error("expected error for missing session ID")
		}
	})

	t.Run("short session produces no summary", func(t *testing.T) {
		svc := &SessionSummaryService{completion: NewCompletionClient("key", "http://unreachable.invalid", "model")}
		messages := []models.ChatMessage{
			userMsg("hi"),
			assistantMsg("hello"),
			userMsg("thanks"),
		}
		summary, err := svc.Summarize(context.Background(), "user-1", "session-1", messages)
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}
		if summary != nil {
			t.Errorf("expected no summary for a %d message session", len(messages))
		}
	})

	t.Run("no summarizer model configured", func(t *testing.T) {
		svc := &SessionSummaryService{completion: NewCompletionClient("", "", "")}
		messages := []models.ChatMessage{
			userMsg("a"), assistantMsg("b"), userMsg("c"), assistantMsg("d"),
		}
		summary, err := svc.Summarize(context.Background(), "user-1", "session-1", messages)
		if err != nil {
			t.Fatalf("Summarize failed: %v", err)
		}
		if summary != nil {
			t.Error("expected no summary without a summarizer model")
		}
	})
}

// TestSummaryWindow verifies that only the tail of a long session reaches
// the summarizer prompt.
func TestSummaryWindow(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}
		// An empty reply makes Summarize bail out before persistence
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": ""}},
			},
		})
	}))
	defer server.Close()

	svc := &SessionSummaryService{completion: NewCompletionClient("test-key", server.URL, "test-model")}

	messages := make([]models.ChatMessage, 0, 14)
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			messages = append(messages, userMsg(fmt.Sprintf("user turn %d", i)))
		} else {
			messages = append(messages, assistantMsg(fmt.Sprintf("assistant turn %d", i)))
		}
	}

	summary, err := svc.Summarize(context.Background(), "user-1", "session-1", messages)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary != nil {
		t.Error("blank summarizer output should produce no summary")
	}

	if strings.Contains(prompt, "user turn 2") {
		t.Error("prompt contains messages outside the summary window")
	}
	if !strings.Contains(prompt, "user turn 4") || !strings.Contains(prompt, "assistant turn 13") {
		t.Errorf("prompt missing expected window messages: %q", prompt)
	}
}
