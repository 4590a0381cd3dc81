package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatnil/internal/models"
)

func userMsg(content string) models.ChatMessage {
	return models.ChatMessage{Role: "user", Content: content}
}

func assistantMsg(content string) models.ChatMessage {
	return models.ChatMessage{Role: "assistant", Content: content}
}

// completionTestServer wraps the given reply content in a chat completions
// response.
func completionTestServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
}

func TestCountUserMessages(t *testing.T) {
	messages := []models.ChatMessage{
		userMsg("hi"),
		assistantMsg("hello"),
		userMsg("I play soccer"),
		{Role: "system", Content: "prompt"},
	}
	if got := countUserMessages(messages); got != 2 {
		t.Errorf("countUserMessages = %d, want 2", got)
	}
}

func TestHasFirstPersonStatement(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.ChatMessage
		expected bool
	}{
		{
			name:     "first person user message",
			messages: []models.ChatMessage{userMsg("I'm a sophomore at State")},
			expected: true,
		},
		{
			name:     "possessive",
			messages: []models.ChatMessage{userMsg("my coach wants me to post more")},
			expected: true,
		},
		{
			name:     "purely educational questions",
			messages: []models.ChatMessage{userMsg("what is an NIL collective?"), userMsg("how do disclosure rules work?")},
			expected: false,
		},
		{
			name:     "first person only in assistant turn",
			messages: []models.ChatMessage{assistantMsg("I can help with that"), userMsg("explain NIL rules")},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasFirstPersonStatement(tt.messages); got != tt.expected {
				t.Errorf("hasFirstPersonStatement = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateCandidates(t *testing.T) {
	t.Run("drops invalid type and empty content", func(t *testing.T) {
		candidates := []models.MemoryCandidate{
			{Type: "rumor", Content: "something", Importance: 0.8},
			{Type: models.MemoryTypeFact, Content: "   ", Importance: 0.8},
			{Type: models.MemoryTypeFact, Content: "plays soccer", Importance: 0.8},
		}
		valid := validateCandidates(candidates)
		if len(valid) != 1 {
			t.Fatalf("expected 1 valid candidate, got %d", len(valid))
		}
		if valid[0].Content != "plays soccer" {
			t.Errorf("kept the wrong candidate: %+v", valid[0])
		}
	})

	t.Run("caps at five", func(t *testing.T) {
		candidates := make([]models.MemoryCandidate, 8)
		for i := range candidates {
			candidates[i] = models.MemoryCandidate{Type: models.MemoryTypeFact, Content: "fact", Importance: 0.7}
		}
		if got := len(validateCandidates(candidates)); got != maxMemoriesPerExtraction {
			t.Errorf("expected %d candidates, got %d", maxMemoriesPerExtraction, got)
		}
	})

	t.Run("clamps importance", func(t *testing.T) {
		candidates := []models.MemoryCandidate{
			{Type: models.MemoryTypeFact, Content: "a", Importance: 0.1},
			{Type: models.MemoryTypeFact, Content: "b", Importance: 1.5},
			{Type: models.MemoryTypeFact, Content: "c", Importance: 0},
		}
		valid := validateCandidates(candidates)
		if valid[0].Importance != 0.5 {
			t.Errorf("low importance not raised: %f", valid[0].Importance)
		}
		if valid[1].Importance != 1.0 {
			t.Errorf("high importance not lowered: %f", valid[1].Importance)
		}
		if valid[2].Importance != 0.7 {
			t.Errorf("missing importance not defaulted: %f", valid[2].Importance)
		}
	})
}

func TestBuildTranscript(t *testing.T) {
	messages := []models.ChatMessage{
		userMsg("I play soccer"),
		assistantMsg("Nice!"),
	}
	got := buildTranscript(messages)
	want := "USER: I play soccer\nASSISTANT: Nice!\n"
	if got != want {
		t.Errorf("buildTranscript = %q, want %q", got, want)
	}
}

func TestExtractGates(t *testing.T) {
	// No server: the gates must return before any HTTP call
	svc := &MemoryExtractionService{
		completion: NewCompletionClient("test-key", "http://unreachable.invalid", "test-model"),
	}

	t.Run("too few user messages", func(t *testing.T) {
		candidates, err := svc.extract(context.Background(), []models.ChatMessage{
			userMsg("I'm a junior"),
			assistantMsg("Got it"),
		})
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		if candidates != nil {
			t.Errorf("expected no candidates, got %v", candidates)
		}
	})

	t.Run("no first person statements", func(t *testing.T) {
		candidates, err := svc.extract(context.Background(), []models.ChatMessage{
			userMsg("what is an NIL collective?"),
			userMsg("how do disclosure rules work?"),
		})
		if err != nil {
			t.Fatalf("extract failed: %v", err)
		}
		if candidates != nil {
			t.Errorf("expected no candidates, got %v", candidates)
		}
	})
}

func TestExtractParsesAndValidates(t *testing.T) {
	server := completionTestServer(t, `{"memories": [
		{"type": "context", "content": "Plays soccer at State University", "importance": 0.9},
		{"type": "invalid", "content": "dropped", "importance": 0.9},
		{"type": "goal", "content": "Wants a local restaurant deal", "importance": 2.0}
	]}`)
	defer server.Close()

	svc := &MemoryExtractionService{
		completion: NewCompletionClient("test-key", server.URL, "test-model"),
	}

	candidates, err := svc.extract(context.Background(), []models.ChatMessage{
		userMsg("I play soccer at State University"),
		userMsg("I want a deal with a local restaurant"),
	})
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Type != models.MemoryTypeContext {
		t.Errorf("unexpected type %q", candidates[0].Type)
	}
	if candidates[1].Importance != 1.0 {
		t.Errorf("importance not clamped: %f", candidates[1].Importance)
	}
}

func TestExtractMalformedOutput(t *testing.T) {
	server := completionTestServer(t, "I could not produce JSON, sorry.")
	defer server.Close()

	svc := &MemoryExtractionService{
		completion: NewCompletionClient("test-key", server.URL, "test-model"),
	}

	_, err := svc.extract(context.Background(), []models.ChatMessage{
		userMsg("I play soccer"),
		userMsg("I'm a junior"),
	})
	if !errors.Is(err, ErrInvalidExtraction) {
		t.Errorf("expected ErrInvalidExtraction, got %v", err)
	}
}

func TestExtractionSystemPromptMentionsTypes(t *testing.T) {
	// The schema enum and prompt must agree on the memory type vocabulary
	for _, typ := range []string{"preference", "context", "fact", "goal"} {
		if !strings.Contains(MemoryExtractionSystemPrompt, typ) {
			t.Errorf("system prompt missing type %q", typ)
		}
	}
}
