package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestShouldTrigger covers the trigger rules and, more importantly, the
// default: educational queries must not cause a live search.
func TestShouldTrigger(t *testing.T) {
	svc := NewRealtimeSearchService("", "", "", nil)

	tests := []struct {
		name    string
		query   string
		trigger bool
	}{
		{
			name:    "recency word",
			query:   "what happened with NIL today?",
			trigger: true,
		},
		{
			name:    "latest news",
			query:   "latest NIL news for basketball",
			trigger: true,
		},
		{
			name:    "rule verification",
			query:   "what are the current NIL rules in Texas?",
			trigger: true,
		},
		{
			name:    "still legal",
			query:   "is it still legal to sign deals before enrolling?",
			trigger: true,
		},
		{
			name:    "brand legitimacy",
			query:   "is Sideline Sports Agency legit?",
			trigger: true,
		},
		{
			name:    "deal valuation",
			query:   "how much is a typical freshman NIL deal worth?",
			trigger: true,
		},
		{
			name:    "biggest deals",
			query:   "what are the biggest NIL deals this year?",
			trigger: true,
		},
		{
			name:    "market data",
			query:   "what is the going rate for a sponsored post?",
			trigger: true,
		},
		{
			name:    "general education does not trigger",
			query:   "what does NIL stand for?",
			trigger: false,
		},
		{
			name:    "tax question does not trigger",
			query:   "do I owe taxes on NIL income?",
			trigger: false,
		},
		{
			name:    "contract basics do not trigger",
			query:   "what should a NIL contract include?",
			trigger: false,
		},
		{
			name:    "empty query",
			query:   "",
			trigger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.ShouldTrigger(tt.query); got != tt.trigger {
				t.Errorf("ShouldTrigger(%q) = %v, want %v", tt.query, got, tt.trigger)
			}
		})
	}
}

func TestFetchWithoutProvider(t *testing.T) {
	svc := NewRealtimeSearchService("", "", "", nil)

	result, err := svc.Fetch(context.Background(), "latest NIL news")
	if err != nil {
		t.Fatalf("Fetch returned error without provider: %v", err)
	}
	if result != nil {
		t.Error("expected nil result without provider")
	}
}

func TestFetchParsesContentAndCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"citations": ["https://example.com/a", "https://example.com/b"],
			"choices": [{"message": {"content": "  NCAA updated its guidance this week.  "}}]
		}`))
	}))
	defer server.Close()

	svc := NewRealtimeSearchService("test-key", server.URL, "sonar", nil)

	result, err := svc.Fetch(context.Background(), "latest NIL news")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Content != "NCAA updated its guidance this week." {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(result.Citations))
	}
	if result.Citations[0].URL != "https://example.com/a" {
		t.Errorf("unexpected citation: %q", result.Citations[0].URL)
	}
}

// TestFetchDegradesOnFailure verifies that upstream problems never surface
// as errors; the pipeline continues without live context.
func TestFetchDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			},
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": [{"message": {"content": "   "}}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			svc := NewRealtimeSearchService("test-key", server.URL, "sonar", nil)

			result, err := svc.Fetch(context.Background(), "latest NIL news")
			if err != nil {
				t.Fatalf("Fetch returned error: %v", err)
			}
			if result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
		})
	}
}
