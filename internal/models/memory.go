package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryType classifies what kind of information a memory holds.
type MemoryType string

const (
	MemoryTypePreference MemoryType = "preference" // likes/dislikes ("prefers simple explanations")
	MemoryTypeContext    MemoryType = "context"    // situation ("plays D1 basketball at Duke")
	MemoryTypeFact       MemoryType = "fact"       // stated information ("signed with Nike last month")
	MemoryTypeGoal       MemoryType = "goal"       // objectives ("wants to maximize NIL earnings")
)

// ValidMemoryType reports whether t is one of the four known memory types.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case MemoryTypePreference, MemoryTypeContext, MemoryTypeFact, MemoryTypeGoal:
		return true
	}
	return false
}

// Memory is a single durable per-user memory, created by conversation
// extraction or profile seeding.
type Memory struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`

	Type    MemoryType `bson:"memoryType" json:"memory_type"`
	Content string     `bson:"content" json:"content"`

	// ContentHash is the SHA-256 of the normalized content. It backs the
	// exact-duplicate check used when embeddings are unavailable.
	ContentHash string `bson:"contentHash" json:"content_hash"`

	// Importance is a relevance prior in [0,1] assigned at creation.
	Importance float64 `bson:"importance" json:"importance"`

	// UsageCount is incremented on every retrieval and feeds the decay job.
	UsageCount     int64      `bson:"usageCount" json:"usage_count"`
	LastAccessedAt *time.Time `bson:"lastAccessedAt,omitempty" json:"last_accessed_at,omitempty"`

	SourceSessionID string `bson:"sourceSessionId,omitempty" json:"source_session_id,omitempty"`

	// Active is the soft-delete flag. Memories are deactivated, never hard
	// deleted during normal operation.
	Active    bool       `bson:"active" json:"active"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty" json:"expires_at,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// MemorySearchResult is a memory hydrated from a similarity query.
type MemorySearchResult struct {
	Memory
	Similarity float64 `json:"similarity"`
}

// ExtractedMemoriesFromLLM is the strict shape the extraction model must
// return. Anything that fails to unmarshal into this is discarded.
type ExtractedMemoriesFromLLM struct {
	Memories []MemoryCandidate `json:"memories"`
}

// MemoryCandidate is one proposed memory from the extraction model.
type MemoryCandidate struct {
	Type       MemoryType `json:"type"`
	Content    string     `json:"content"`
	Importance float64    `json:"importance"`
}
