package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Extraction job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// MemoryExtractionJob queues a finished conversation for background memory
// extraction. Jobs are drained by the scheduler, never on the request path.
type MemoryExtractionJob struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"user_id"`
	SessionID string             `bson:"sessionId" json:"session_id"`

	Messages     []ChatMessage `bson:"messages" json:"messages"`
	MessageCount int           `bson:"messageCount" json:"message_count"`

	Status       string `bson:"status" json:"status"`
	AttemptCount int    `bson:"attemptCount" json:"attempt_count"`
	ErrorMessage string `bson:"errorMessage,omitempty" json:"error_message,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	ProcessedAt *time.Time `bson:"processedAt,omitempty" json:"processed_at,omitempty"`
}
