package models

import "time"

// CacheEntry is a cached full answer for a normalized query + role. At most
// one live entry exists per key; expired entries are filtered on lookup and
// swept in bulk by a background job.
type CacheEntry struct {
	Key             string    `json:"key"` // sha256(normalizedQuery | role)
	NormalizedQuery string    `json:"normalized_query"`
	ResponseText    string    `json:"response_text"`
	Scope           Role      `json:"scope"`
	HitCount        int64     `json:"hit_count"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
