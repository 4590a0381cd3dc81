package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chatnil/internal/models"
)

const (
	responseCachePrefix     = "respcache:"
	responseCacheHitsPrefix = "respcache:hits:"

	// Queries shorter than this (after normalization) are too ambiguous to
	// reuse safely.
	minCacheableQueryLen = 12
)

// ResponseCacheService is a Redis-backed exact-match cache for full LLM
// answers to common, non-personal questions. The cache key is derived from
// the normalized query plus the requester's role, so reuse never crosses
// role boundaries.
type ResponseCacheService struct {
	redis      *RedisService
	defaultTTL time.Duration
	metrics    *Metrics
}

// NewResponseCacheService creates the response cache.
func NewResponseCacheService(redisService *RedisService, defaultTTL time.Duration, metrics *Metrics) *ResponseCacheService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &ResponseCacheService{
		redis:      redisService,
		defaultTTL: defaultTTL,
		metrics:    metrics,
	}
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Everything except letters, digits, spaces and question marks is
	// stripped during normalization. The question mark stays because it
	// distinguishes questions from statements.
	punctuationRe = regexp.MustCompile(`[^a-z0-9? ]`)
	questionRunRe = regexp.MustCompile(`\?+`)

	// Personal or account-specific phrasing, written against normalized
	// text where apostrophes are already stripped ("i'm" becomes "im").
	// Answers to these depend on who is asking and must never be served
	// from the shared cache.
	personalPatternsRe = regexp.MustCompile(`\b(i|im|ive|id|my|mine|me|myself|our|ours|we|weve)\b`)

	// Questions naming a specific third party (coach, person, brand) tend
	// to need fresh or personal context.
	namedPartyPatternsRe = regexp.MustCompile(`\b(who (is|was|are)|tell me about|coach [a-z]+)\b`)
)

// NormalizeQuery lowercases, trims, collapses whitespace, then strips
// punctuation except question marks, so trivially different phrasings of the
// same question map to one cache key. Runs of question marks collapse to one.
func NormalizeQuery(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = whitespaceRe.ReplaceAllString(q, " ")
	q = punctuationRe.ReplaceAllString(q, "")
	q = questionRunRe.ReplaceAllString(q, "?")
	q = whitespaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// CacheKey derives the Redis key for a query and role.
func CacheKey(query string, role models.Role) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query) + "|" + string(role)))
	return responseCachePrefix + hex.EncodeToString(sum[:])
}

// IsCacheable reports whether a query is safe to serve from the shared
// cache. The policy is deliberately conservative: ambiguous queries are not
// cacheable. This is a reuse heuristic, not a security boundary; the role in
// the key bounds the blast radius of a wrong call.
func (s *ResponseCacheService) IsCacheable(query string) bool {
	normalized := NormalizeQuery(query)

	if len(normalized) < minCacheableQueryLen {
		return false
	}
	if personalPatternsRe.MatchString(normalized) {
		return false
	}
	if namedPartyPatternsRe.MatchString(normalized) {
		return false
	}
	return true
}

// Lookup returns the cached entry for the query and role, or nil on a miss.
// Entries past their expiresAt are treated as misses even if Redis has not
// evicted them yet.
func (s *ResponseCacheService) Lookup(ctx context.Context, query string, role models.Role) (*models.CacheEntry, error) {
	if !s.IsCacheable(query) {
		if s.metrics != nil {
			s.metrics.RecordCacheLookup("bypass")
		}
		return nil, nil
	}

	key := CacheKey(query, role)
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if s.metrics != nil {
				s.metrics.RecordCacheLookup("miss")
			}
			return nil, nil
		}
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Corrupt entry; drop it and treat as a miss
		log.Printf("⚠️ [RESPONSE-CACHE] Dropping corrupt entry %s: %v", key, err)
		_ = s.redis.Delete(ctx, key)
		return nil, nil
	}

	if entry.Expired(time.Now()) {
		if s.metrics != nil {
			s.metrics.RecordCacheLookup("miss")
		}
		_ = s.redis.Delete(ctx, key)
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.RecordCacheLookup("hit")
	}

	// Hit counting is best-effort and must never block the caller
	go s.recordHit(key)

	return &entry, nil
}

// recordHit increments the hit counter on a side key.
func (s *ResponseCacheService) recordHit(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hitsKey := responseCacheHitsPrefix + strings.TrimPrefix(key, responseCachePrefix)
	if _, err := s.redis.Incr(ctx, hitsKey); err != nil {
		log.Printf("⚠️ [RESPONSE-CACHE] Failed to record hit for %s: %v", key, err)
		return
	}
	_ = s.redis.Expire(ctx, hitsKey, s.defaultTTL)
}

// Store writes a response to the cache. Non-cacheable queries are silently
// skipped. A zero ttl uses the configured default.
func (s *ResponseCacheService) Store(ctx context.Context, query string, role models.Role, responseText string, ttl time.Duration) error {
	if !s.IsCacheable(query) {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	key := CacheKey(query, role)
	now := time.Now()
	entry := models.CacheEntry{
		Key:             key,
		NormalizedQuery: NormalizeQuery(query),
		ResponseText:    responseText,
		Scope:           role,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, key, raw, ttl)
}

// Invalidate removes the cached answer for a query/role pair.
func (s *ResponseCacheService) Invalidate(ctx context.Context, query string, role models.Role) error {
	key := CacheKey(query, role)
	hitsKey := responseCacheHitsPrefix + strings.TrimPrefix(key, responseCachePrefix)
	return s.redis.Delete(ctx, key, hitsKey)
}

// SweepExpired removes entries whose payload expiresAt has passed but whose
// Redis TTL has not fired, typically because the entry was stored with a
// longer TTL than its logical lifetime. Lookup correctness never depends on
// this running; it only reclaims space. Returns the number of removed keys.
func (s *ResponseCacheService) SweepExpired(ctx context.Context) (int, error) {
	keys, err := s.redis.Keys(ctx, responseCachePrefix+"*")
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, key := range keys {
		if strings.HasPrefix(key, responseCacheHitsPrefix) {
			continue
		}

		raw, err := s.redis.Get(ctx, key)
		if err != nil {
			continue
		}

		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Expired(now) {
			if delErr := s.redis.Delete(ctx, key); delErr == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		log.Printf("🧹 [RESPONSE-CACHE] Swept %d expired entries", removed)
	}
	return removed, nil
}
