package vectorindex

import (
	"context"
	"testing"
)

func TestCollectionNames(t *testing.T) {
	if got := MemoryCollection("user-1"); got != "memories_user-1" {
		t.Errorf("MemoryCollection = %q", got)
	}
	if got := SessionCollection("user-1"); got != "sessions_user-1" {
		t.Errorf("SessionCollection = %q", got)
	}
	if got := KnowledgeCollection(); got != "knowledge" {
		t.Errorf("KnowledgeCollection = %q", got)
	}

	// Characters outside chromem's charset are replaced, not rejected
	if got := MemoryCollection("user@example.com"); got != "memories_user_example_com" {
		t.Errorf("sanitized name = %q", got)
	}
}

func TestQueryEmptyCollection(t *testing.T) {
	idx := New()

	hits, err := idx.Query(context.Background(), "empty", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query on empty collection failed: %v", err)
	}
	if hits != nil {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestAddAndQuery(t *testing.T) {
	idx := New()
	ctx := context.Background()

	docs := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}
	for id, emb := range docs {
		if err := idx.Add(ctx, "test", id, "content "+id, emb, map[string]string{"k": id}); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	if got := idx.Count("test"); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}

	hits, err := idx.Query(ctx, "test", []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].ID != "a" {
		t.Errorf("nearest neighbor = %q, want a", hits[0].ID)
	}
	if hits[0].Metadata["k"] != "a" {
		t.Errorf("metadata lost: %v", hits[0].Metadata)
	}
}

// TestQueryClampsK verifies that asking for more results than the collection
// holds succeeds instead of erroring.
func TestQueryClampsK(t *testing.T) {
	idx := New()
	ctx := context.Background()

	if err := idx.Add(ctx, "test", "only", "content", []float32{1, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	hits, err := idx.Query(ctx, "test", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestAddReplacesByID(t *testing.T) {
	idx := New()
	ctx := context.Background()

	if err := idx.Add(ctx, "test", "doc", "old", []float32{1, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Add(ctx, "test", "doc", "new", []float32{0, 1}, nil); err != nil {
		t.Fatalf("re-Add failed: %v", err)
	}

	if got := idx.Count("test"); got != 1 {
		t.Errorf("Count = %d after replace, want 1", got)
	}

	hits, err := idx.Query(ctx, "test", []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "new" {
		t.Errorf("replacement not effective: %+v", hits)
	}
}

func TestRemove(t *testing.T) {
	idx := New()
	ctx := context.Background()

	if err := idx.Add(ctx, "test", "doc", "content", []float32{1, 0}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := idx.Remove(ctx, "test", "doc"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got := idx.Count("test"); got != 0 {
		t.Errorf("Count = %d after remove, want 0", got)
	}

	// Removing an absent ID is a no-op
	if err := idx.Remove(ctx, "test", "doc"); err != nil {
		t.Errorf("Remove of absent ID failed: %v", err)
	}
	if err := idx.Remove(ctx, "never-created", "doc"); err != nil {
		t.Errorf("Remove on missing collection failed: %v", err)
	}
}
