package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatnil/internal/database"
	"chatnil/internal/models"
)

const (
	// Minimum user-authored messages before a conversation is worth
	// extracting from.
	minUserMessagesForExtraction = 2

	// Hard cap on memories extracted from one conversation.
	maxMemoriesPerExtraction = 5

	// Jobs that failed this many times stay failed.
	maxExtractionAttempts = 3
)

// MemoryExtractionSystemPrompt instructs the model to mine a conversation
// for durable facts about the user.
const MemoryExtractionSystemPrompt = `You analyze conversations between a student-athlete support assistant and its users, and extract durable facts about the USER that would help personalize future conversations.

Extract ONLY information the user stated about themselves in the first person. Never extract:
- Facts about other people (coaches, teammates, parents of others)
- Information the assistant said
- Hypotheticals or questions
- Anything time-sensitive that will be stale in a week

Each memory must be a single, self-contained sentence about the user.

Memory types:
- "preference": likes, dislikes, communication preferences
- "context": the user's situation (sport, school, position, year)
- "fact": concrete stated information (deals signed, follower counts)
- "goal": objectives the user wants to achieve

Rate importance 0.5-1.0: 1.0 for identity-level facts, 0.7 for typical facts, 0.5 for minor preferences.

Return JSON: {"memories": [{"type": "...", "content": "...", "importance": 0.7}]}
Return {"memories": []} if there is nothing worth remembering.`

// memoryExtractionSchema is the strict structured-output schema.
var memoryExtractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"memories": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"type": map[string]interface{}{
						"type": "string",
						"enum": []string{"preference", "context", "fact", "goal"},
					},
					"content": map[string]interface{}{
						"type": "string",
					},
					"importance": map[string]interface{}{
						"type": "number",
					},
				},
				"required":             []string{"type", "content", "importance"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"memories"},
	"additionalProperties": false,
}

// firstPersonRe is the lexical gate backing up the prompt: a conversation
// with no first-person user statements yields no candidates.
var firstPersonRe = regexp.MustCompile(`(?i)\b(i|i'm|i've|i'll|i'd|my|mine|me|we|our)\b`)

// MemoryExtractionService mines finished conversations for memories. Work
// arrives through a Mongo-backed job queue so extraction never runs on the
// request path.
type MemoryExtractionService struct {
	mongodb    *database.MongoDB
	jobs       *mongo.Collection
	completion *CompletionClient
	storage    *MemoryStorageService
	metrics    *Metrics
}

// NewMemoryExtractionService creates a new extraction service
func NewMemoryExtractionService(mongodb *database.MongoDB, completion *CompletionClient, storage *MemoryStorageService, metrics *Metrics) *MemoryExtractionService {
	return &MemoryExtractionService{
		mongodb:    mongodb,
		jobs:       mongodb.Collection(database.CollectionMemoryExtractionJobs),
		completion: completion,
		storage:    storage,
		metrics:    metrics,
	}
}

// countUserMessages counts user-authored turns.
func countUserMessages(messages []models.ChatMessage) int {
	n := 0
	for _, m := range messages {
		if m.Role == "user" {
			n++
		}
	}
	return n
}

// hasFirstPersonStatement reports whether any user turn speaks in the first
// person.
func hasFirstPersonStatement(messages []models.ChatMessage) bool {
	for _, m := range messages {
		if m.Role == "user" && firstPersonRe.MatchString(m.Content) {
			return true
		}
	}
	return false
}

// Enqueue queues a conversation for extraction. Conversations with fewer
// than two user messages are skipped outright.
func (s *MemoryExtractionService) Enqueue(ctx context.Context, userID, sessionID string, messages []models.ChatMessage) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("user ID and session ID are required")
	}
	if countUserMessages(messages) < minUserMessagesForExtraction {
		log.Printf("⏭️ [MEMORY-EXTRACTION] Session %s too short to extract, skipping", sessionID)
		return nil
	}

	job := models.MemoryExtractionJob{
		UserID:       userID,
		SessionID:    sessionID,
		Messages:     messages,
		MessageCount: len(messages),
		Status:       models.JobStatusPending,
		CreatedAt:    time.Now(),
	}

	if _, err := s.jobs.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue extraction job: %w", err)
	}

	log.Printf("📥 [MEMORY-EXTRACTION] Queued extraction for session %s (%d messages)", sessionID, len(messages))
	return nil
}

// DrainPending claims and processes up to limit pending jobs. Called by the
// scheduler. Returns the number of jobs processed.
func (s *MemoryExtractionService) DrainPending(ctx context.Context, limit int) (int, error) {
	if !s.completion.Available() {
		// No extractor model configured; jobs stay pending
		return 0, nil
	}

	processed := 0
	for processed < limit {
		job, err := s.claimNext(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			break
		}

		s.process(ctx, job)
		processed++
	}
	return processed, nil
}

// claimNext atomically flips the oldest pending job to processing.
func (s *MemoryExtractionService) claimNext(ctx context.Context) (*models.MemoryExtractionJob, error) {
	result := s.jobs.FindOneAndUpdate(ctx,
		bson.M{"status": models.JobStatusPending},
		bson.M{
			"$set": bson.M{"status": models.JobStatusProcessing},
			"$inc": bson.M{"attemptCount": 1},
		},
		options.FindOneAndUpdate().
			SetSort(bson.M{"createdAt": 1}).
			SetReturnDocument(options.After),
	)

	var job models.MemoryExtractionJob
	if err := result.Decode(&job); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim extraction job: %w", err)
	}
	return &job, nil
}

// process runs one extraction job to completion or failure.
func (s *MemoryExtractionService) process(ctx context.Context, job *models.MemoryExtractionJob) {
	candidates, err := s.extract(ctx, job.Messages)
	if err != nil {
		// Malformed model output is discarded, not retried; transient
		// upstream failures get another attempt
		status := models.JobStatusPending
		if errors.Is(err, ErrInvalidExtraction) || job.AttemptCount >= maxExtractionAttempts {
			status = models.JobStatusFailed
		}
		s.finishJob(job, status, err.Error())
		log.Printf("⚠️ [MEMORY-EXTRACTION] Job %s for session %s failed: %v", job.ID.Hex(), job.SessionID, err)
		if s.metrics != nil {
			s.metrics.RecordExtractionJob("failed")
		}
		return
	}

	stored := 0
	for _, candidate := range candidates {
		if _, err := s.storage.Store(ctx, job.UserID, candidate, job.SessionID); err != nil {
			log.Printf("⚠️ [MEMORY-EXTRACTION] Failed to store candidate for session %s: %v", job.SessionID, err)
			continue
		}
		stored++
	}

	s.finishJob(job, models.JobStatusCompleted, "")
	log.Printf("✅ [MEMORY-EXTRACTION] Session %s: %d candidates, %d stored", job.SessionID, len(candidates), stored)
	if s.metrics != nil {
		s.metrics.RecordExtractionJob("completed")
	}
}

// finishJob records the terminal (or requeued) state of a job.
func (s *MemoryExtractionService) finishJob(job *models.MemoryExtractionJob, status, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"status": status}
	if errMsg != "" {
		update["errorMessage"] = errMsg
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		now := time.Now()
		update["processedAt"] = now
	}

	if _, err := s.jobs.UpdateOne(ctx, bson.M{"_id": job.ID}, bson.M{"$set": update}); err != nil {
		log.Printf("⚠️ [MEMORY-EXTRACTION] Failed to update job %s: %v", job.ID.Hex(), err)
	}
}

// extract runs the model over a conversation and returns validated
// candidates. Conversations failing the gates return no candidates and no
// error.
func (s *MemoryExtractionService) extract(ctx context.Context, messages []models.ChatMessage) ([]models.MemoryCandidate, error) {
	if countUserMessages(messages) < minUserMessagesForExtraction {
		return nil, nil
	}
	if !hasFirstPersonStatement(messages) {
		return nil, nil
	}

	transcript := buildTranscript(messages)

	content, err := s.completion.Complete(ctx, CompletionRequest{
		Messages: []CompletionMessage{
			{Role: "system", Content: MemoryExtractionSystemPrompt},
			{Role: "user", Content: "CONVERSATION:\n" + transcript + "\n\nExtract memories as JSON."},
		},
		Temperature: 0.3,
		SchemaName:  "memory_extraction",
		JSONSchema:  memoryExtractionSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	var result models.ExtractedMemoriesFromLLM
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		log.Printf("⚠️ [MEMORY-EXTRACTION] Failed to parse extraction: %v (response length: %d bytes)", err, len(content))
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtraction, err)
	}

	return validateCandidates(result.Memories), nil
}

// validateCandidates drops malformed candidates and enforces the per-
// conversation cap and importance bounds.
func validateCandidates(candidates []models.MemoryCandidate) []models.MemoryCandidate {
	valid := make([]models.MemoryCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !models.ValidMemoryType(c.Type) {
			continue
		}
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		c.Importance = clampImportance(c.Importance)
		valid = append(valid, c)

		if len(valid) == maxMemoriesPerExtraction {
			break
		}
	}
	return valid
}

// buildTranscript renders messages as a plain-text conversation.
func buildTranscript(messages []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
