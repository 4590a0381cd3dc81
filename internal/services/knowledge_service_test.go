package services

import (
	"testing"
	"time"

	"chatnil/internal/models"
)

func TestSortEntries(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	entries := []models.KnowledgeEntry{
		{Title: "low", Similarity: 0.3, UpdatedAt: newer},
		{Title: "tie-old", Similarity: 0.8, UpdatedAt: older},
		{Title: "high", Similarity: 0.9, UpdatedAt: older},
		{Title: "tie-new", Similarity: 0.8, UpdatedAt: newer},
	}

	sortEntries(entries)

	want := []string{"high", "tie-new", "tie-old", "low"}
	for i, title := range want {
		if entries[i].Title != title {
			t.Errorf("position %d: got %q, want %q (full order: %v)", i, entries[i].Title, title, titles(entries))
		}
	}
}

func titles(entries []models.KnowledgeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

func TestNormalizeTextScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected float64
	}{
		{name: "zero", score: 0, expected: 0},
		{name: "negative clamps to zero", score: -3, expected: 0},
		{name: "one maps to a half", score: 1, expected: 0.5},
		{name: "three maps to three quarters", score: 3, expected: 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTextScore(tt.score); got != tt.expected {
				t.Errorf("normalizeTextScore(%f) = %f, want %f", tt.score, got, tt.expected)
			}
		})
	}

	// Monotonic and bounded: higher raw scores rank higher but never reach 1
	prev := 0.0
	for _, score := range []float64{0.5, 1, 2, 5, 50, 5000} {
		n := normalizeTextScore(score)
		if n <= prev {
			t.Errorf("normalizeTextScore not monotonic at %f", score)
		}
		if n >= 1 {
			t.Errorf("normalizeTextScore(%f) = %f, should stay below 1", score, n)
		}
		prev = n
	}
}

// TestHybridWeights guards the blend ratio: vector similarity must dominate.
func TestHybridWeights(t *testing.T) {
	if hybridVectorWeight+hybridLexicalWeight != 1.0 {
		t.Errorf("hybrid weights sum to %f, want 1.0", hybridVectorWeight+hybridLexicalWeight)
	}
	if hybridVectorWeight <= hybridLexicalWeight {
		t.Error("vector weight should dominate the lexical weight")
	}
}
