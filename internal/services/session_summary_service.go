package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatnil/internal/database"
	"chatnil/internal/models"
	"chatnil/internal/vectorindex"
)

const (
	// Sessions shorter than this are never summarized.
	minMessagesForSummary = 4

	// Only the tail of a long session feeds the summary.
	summaryWindowSize = 10

	summaryMaxTokens = 300
)

const sessionSummarySystemPrompt = `You summarize conversations between a student-athlete support assistant and its users.

Write a 2-4 sentence summary capturing what the user asked about, what was decided or recommended, and any open follow-ups. Write in the third person ("The user asked about..."). Do not include greetings or filler.`

// SessionSummaryService condenses chat sessions into embedded summaries so
// later conversations can recall what was discussed. One summary per
// session; re-summarizing replaces the previous one.
type SessionSummaryService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	completion *CompletionClient
	embedder   *EmbeddingService
	index      *vectorindex.Index
}

// NewSessionSummaryService creates a new session summary service
func NewSessionSummaryService(mongodb *database.MongoDB, completion *CompletionClient, embedder *EmbeddingService, index *vectorindex.Index) *SessionSummaryService {
	return &SessionSummaryService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionChatSessions),
		completion: completion,
		embedder:   embedder,
		index:      index,
	}
}

// Summarize creates or replaces the summary for a session. Sessions under
// the minimum length produce no summary; a missing summarizer model is
// non-fatal and also produces none. Returns the stored summary, or nil when
// none was produced.
func (s *SessionSummaryService) Summarize(ctx context.Context, userID, sessionID string, messages []models.ChatMessage) (*models.SessionSummary, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("user ID and session ID are required")
	}
	if len(messages) < minMessagesForSummary {
		return nil, nil
	}
	if !s.completion.Available() {
		log.Printf("⏭️ [SESSION-SUMMARY] No summarizer model configured, skipping session %s", sessionID)
		return nil, nil
	}

	window := messages
	if len(window) > summaryWindowSize {
		window = window[len(window)-summaryWindowSize:]
	}

	summaryText, err := s.completion.Complete(ctx, CompletionRequest{
		Messages: []CompletionMessage{
			{Role: "system", Content: sessionSummarySystemPrompt},
			{Role: "user", Content: buildTranscript(window)},
		},
		Temperature: 0.3,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to summarize session: %w", err)
	}
	summaryText = strings.TrimSpace(summaryText)
	if summaryText == "" {
		return nil, nil
	}

	now := time.Now()
	summary := &models.SessionSummary{
		SessionID:             sessionID,
		UserID:                userID,
		Summary:               summaryText,
		MessageCountAtSummary: len(messages),
		UpdatedAt:             now,
	}

	// Replace, never append: one summary row per session
	filter := bson.M{"sessionId": sessionID}
	update := bson.M{
		"$set": bson.M{
			"userId":                userID,
			"summary":               summaryText,
			"messageCountAtSummary": len(messages),
			"updatedAt":             now,
		},
		"$setOnInsert": bson.M{
			"createdAt": now,
		},
	}
	if _, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("failed to upsert session summary: %w", err)
	}

	// Index entry is keyed by sessionId, so re-adding replaces the old vector
	embedding, err := s.embedder.Embed(ctx, summaryText)
	if err != nil {
		if !errors.Is(err, ErrEmbeddingUnavailable) {
			log.Printf("⚠️ [SESSION-SUMMARY] Failed to embed summary for session %s: %v", sessionID, err)
		}
		return summary, nil
	}
	if err := s.index.Add(ctx, vectorindex.SessionCollection(userID), sessionID, summaryText, embedding, nil); err != nil {
		log.Printf("⚠️ [SESSION-SUMMARY] Failed to index summary for session %s: %v", sessionID, err)
	}

	log.Printf("✅ [SESSION-SUMMARY] Summarized session %s (%d messages)", sessionID, len(messages))
	return summary, nil
}

// SearchSummaries returns the user's most similar past-session summaries.
// Sessions that were never summarized are invisible here.
func (s *SessionSummaryService) SearchSummaries(ctx context.Context, userID, query string, threshold float64, k int) ([]models.SessionSummary, error) {
	if k <= 0 {
		k = 3
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, vectorindex.SessionCollection(userID), embedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query session index: %w", err)
	}

	similarities := make(map[string]float64, len(hits))
	sessionIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		sim := float64(h.Similarity)
		if sim < threshold {
			continue
		}
		similarities[h.ID] = sim
		sessionIDs = append(sessionIDs, h.ID)
	}
	if len(sessionIDs) == 0 {
		return nil, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{
		"sessionId": bson.M{"$in": sessionIDs},
		"userId":    userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []models.SessionSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("failed to decode session summaries: %w", err)
	}

	for i := range summaries {
		summaries[i].Similarity = similarities[summaries[i].SessionID]
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Similarity > summaries[j].Similarity
	})

	return summaries, nil
}

// IndexAll rebuilds the session-summary vector index from Mongo. Called at
// startup.
func (s *SessionSummaryService) IndexAll(ctx context.Context) error {
	cursor, err := s.collection.Find(ctx, bson.M{"summary": bson.M{"$ne": ""}})
	if err != nil {
		return fmt.Errorf("failed to load session summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var summaries []models.SessionSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return fmt.Errorf("failed to decode session summaries: %w", err)
	}
	if len(summaries) == 0 {
		log.Println("💬 [SESSION-SUMMARY] No summaries to index")
		return nil
	}

	texts := make([]string, len(summaries))
	for i, sum := range summaries {
		texts[i] = sum.Summary
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			log.Println("⚠️ [SESSION-SUMMARY] Embeddings unavailable, session recall disabled")
			return nil
		}
		return fmt.Errorf("failed to embed session summaries: %w", err)
	}

	for i, sum := range summaries {
		if err := s.index.Add(ctx, vectorindex.SessionCollection(sum.UserID), sum.SessionID, sum.Summary, embeddings[i], nil); err != nil {
			return fmt.Errorf("failed to index summary for session %s: %w", sum.SessionID, err)
		}
	}

	log.Printf("💬 [SESSION-SUMMARY] Indexed %d summaries", len(summaries))
	return nil
}
