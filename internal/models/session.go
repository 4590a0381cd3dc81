package models

import "time"

// ChatMessage is one turn in a conversation, as handed to the pipeline by
// the chat layer.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant" or "system"
	Content string `json:"content"`
}

// SessionSummary is the condensed, embedded record of a chat session. One
// per session; re-summarizing replaces the previous row.
type SessionSummary struct {
	SessionID string `bson:"sessionId" json:"session_id"`
	UserID    string `bson:"userId" json:"user_id"`
	Title     string `bson:"title,omitempty" json:"title,omitempty"`
	Summary   string `bson:"summary" json:"summary"`

	// MessageCountAtSummary records how long the session was when last
	// summarized. Sessions below the minimum length are never summarized.
	MessageCountAtSummary int `bson:"messageCountAtSummary" json:"message_count_at_summary"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`

	// Similarity is populated on search results only.
	Similarity float64 `bson:"-" json:"similarity,omitempty"`
}
