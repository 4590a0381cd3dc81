package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"chatnil/internal/models"
)

func newTestRedis(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisServiceFromClient(client), mr
}

// TestNormalizeQuery verifies that trivially different phrasings map to the
// same normalized form
func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase and trim",
			input:    "  What Is NIL?  ",
			expected: "what is nil?",
		},
		{
			name:     "collapse whitespace",
			input:    "what   is\tNIL?",
			expected: "what is nil?",
		},
		{
			name:     "strip punctuation except question mark",
			input:    "what is N.I.L., exactly?",
			expected: "what is nil exactly?",
		},
		{
			name:     "collapse repeated question marks",
			input:    "what are the rules in California??",
			expected: "what are the rules in california?",
		},
		{
			name:     "contraction loses apostrophe",
			input:    "I'm eligible, right?",
			expected: "im eligible right?",
		},
		{
			name:     "stray punctuation leaves no double space",
			input:    "what - is nil?",
			expected: "what is nil?",
		},
		{
			name:     "already normalized",
			input:    "what is nil?",
			expected: "what is nil?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeQuery(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestCacheKeyEquivalence verifies that queries normalizing identically hit
// the same key, and that role is part of the key
func TestCacheKeyEquivalence(t *testing.T) {
	a := CacheKey("What is NIL?", models.RoleAthlete)
	b := CacheKey("  what   is nil?  ", models.RoleAthlete)
	if a != b {
		t.Errorf("equivalent queries produced different keys: %s vs %s", a, b)
	}

	c := CacheKey("What is NIL?", models.RoleParent)
	if a == c {
		t.Error("different roles produced the same key")
	}
}

func TestIsCacheable(t *testing.T) {
	svc := NewResponseCacheService(nil, time.Hour, nil)

	tests := []struct {
		name      string
		query     string
		cacheable bool
	}{
		{
			name:      "general educational question",
			query:     "what are the NIL disclosure rules in California?",
			cacheable: true,
		},
		{
			name:      "too short",
			query:     "nil rules?",
			cacheable: false,
		},
		{
			name:      "first person possessive",
			query:     "can my school block my NIL deal?",
			cacheable: false,
		},
		{
			name:      "first person statement",
			query:     "I'm a sophomore, what deals can I sign?",
			cacheable: false,
		},
		{
			name:      "first person have",
			query:     "I have a deal offer from a local brand, is it good?",
			cacheable: false,
		},
		{
			name:      "first person contraction ive",
			query:     "I've signed a deal already, what disclosures do I owe?",
			cacheable: false,
		},
		{
			name:      "bare first person pronoun",
			query:     "what deals can I sign as a freshman?",
			cacheable: false,
		},
		{
			name:      "named third party coach",
			query:     "what did coach smith say about endorsements?",
			cacheable: false,
		},
		{
			name:      "who is question about a person",
			query:     "who is Nick Saban?",
			cacheable: false,
		},
		{
			name:      "tell me about a named brand",
			query:     "tell me about Gatorade sponsorships?",
			cacheable: false,
		},
		{
			name:      "empty query",
			query:     "",
			cacheable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.IsCacheable(tt.query); got != tt.cacheable {
				t.Errorf("IsCacheable(%q) = %v, want %v", tt.query, got, tt.cacheable)
			}
		})
	}
}

func TestResponseCacheStoreAndLookup(t *testing.T) {
	redisService, _ := newTestRedis(t)
	svc := NewResponseCacheService(redisService, time.Hour, nil)
	ctx := context.Background()

	query := "what are the NIL disclosure rules in California?"

	// Miss before store
	entry, err := svc.Lookup(ctx, query, models.RoleAthlete)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Fatal("expected miss before store")
	}

	if err := svc.Store(ctx, query, models.RoleAthlete, "California requires disclosure within 72 hours.", 0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Hit after store, including for an equivalent phrasing
	entry, err = svc.Lookup(ctx, "  What ARE the nil disclosure rules in California?? ", models.RoleAthlete)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected hit for equivalent phrasing")
	}
	if entry.ResponseText != "California requires disclosure within 72 hours." {
		t.Errorf("unexpected response text: %q", entry.ResponseText)
	}

	// Same query from a different role must miss
	entry, err = svc.Lookup(ctx, query, models.RoleParent)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Error("expected miss for different role")
	}
}

func TestResponseCachePersonalQueryNeverStored(t *testing.T) {
	redisService, mr := newTestRedis(t)
	svc := NewResponseCacheService(redisService, time.Hour, nil)
	ctx := context.Background()

	query := "can my school block my NIL deal?"
	if err := svc.Store(ctx, query, models.RoleAthlete, "answer", 0); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if len(mr.Keys()) != 0 {
		t.Errorf("personal query was stored: keys %v", mr.Keys())
	}

	entry, err := svc.Lookup(ctx, query, models.RoleAthlete)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Error("personal query returned a cache hit")
	}
}

func TestResponseCacheExpiredEntryFiltered(t *testing.T) {
	redisService, _ := newTestRedis(t)
	svc := NewResponseCacheService(redisService, time.Hour, nil)
	ctx := context.Background()

	query := "what are the NIL disclosure rules in California?"

	// Store with a logical lifetime that is already over by the time we
	// look it up
	if err := svc.Store(ctx, query, models.RoleAthlete, "stale answer", time.Nanosecond); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	entry, err := svc.Lookup(ctx, query, models.RoleAthlete)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry != nil {
		t.Error("expired entry returned from lookup")
	}
}

func TestSweepExpired(t *testing.T) {
	redisService, _ := newTestRedis(t)
	svc := NewResponseCacheService(redisService, time.Hour, nil)
	ctx := context.Background()

	if err := svc.Store(ctx, "what are the NIL disclosure rules in California?", models.RoleAthlete, "a", time.Nanosecond); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := svc.Store(ctx, "how do NIL collectives work at public universities?", models.RoleAthlete, "b", time.Hour); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	removed, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed entry, got %d", removed)
	}

	// The live entry must survive the sweep
	entry, err := svc.Lookup(ctx, "how do NIL collectives work at public universities?", models.RoleAthlete)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if entry == nil {
		t.Error("live entry was swept")
	}
}
