package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatnil/internal/database"
	"chatnil/internal/models"
	"chatnil/internal/vectorindex"
)

const (
	// Semantic dedup threshold. A candidate within this similarity of any
	// existing active memory is considered already known; the first recorded
	// memory wins and the candidate is dropped, never merged.
	memoryDedupThreshold = 0.9

	// Ranking weights for retrieval.
	memorySimilarityWeight = 0.7
	memoryImportanceWeight = 0.3
)

// MemoryStorageService handles durable per-user memories: storage with
// deduplication, similarity search, and lifecycle operations. Rows live in
// Mongo; embeddings live in the shared vector index.
type MemoryStorageService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	embedder   *EmbeddingService
	index      *vectorindex.Index
	metrics    *Metrics
}

// MemoryStats summarizes a user's memory store.
type MemoryStats struct {
	Active     int64                       `json:"active"`
	Inactive   int64                       `json:"inactive"`
	ByType     map[models.MemoryType]int64 `json:"by_type"`
	TotalUsage int64                       `json:"total_usage"`
}

// NewMemoryStorageService creates a new memory storage service
func NewMemoryStorageService(mongodb *database.MongoDB, embedder *EmbeddingService, index *vectorindex.Index, metrics *Metrics) *MemoryStorageService {
	return &MemoryStorageService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionMemories),
		embedder:   embedder,
		index:      index,
		metrics:    metrics,
	}
}

// normalizeContent prepares content for hashing
func normalizeContent(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = strings.Join(strings.Fields(normalized), " ")
	return normalized
}

// calculateHash generates SHA-256 hash of content
func calculateHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Store persists a memory candidate for a user. Returns the stored memory,
// or (nil, nil) when the candidate was dropped as a duplicate. Dedup is
// semantic at the 0.9 threshold; if embeddings are unavailable it falls back
// to an exact normalized-content hash check so verbatim repeats are still
// suppressed.
func (s *MemoryStorageService) Store(ctx context.Context, userID string, candidate models.MemoryCandidate, sourceSessionID string) (*models.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}
	if strings.TrimSpace(candidate.Content) == "" {
		return nil, fmt.Errorf("memory content is required")
	}
	if !models.ValidMemoryType(candidate.Type) {
		return nil, fmt.Errorf("invalid memory type: %s", candidate.Type)
	}

	contentHash := calculateHash(normalizeContent(candidate.Content))

	var embedding []float32
	embeddingOK := false

	vec, err := s.embedder.Embed(ctx, candidate.Content)
	switch {
	case err == nil:
		embedding = vec
		embeddingOK = true
	case errors.Is(err, ErrEmbeddingUnavailable):
		// Fall through to the hash check below
	default:
		return nil, fmt.Errorf("failed to embed memory: %w", err)
	}

	if embeddingOK {
		dup, err := s.findSemanticDuplicate(ctx, userID, embedding)
		if err != nil {
			return nil, err
		}
		if dup {
			log.Printf("🔄 [MEMORY-STORAGE] Duplicate memory for user %s, skipping", userID)
			if s.metrics != nil {
				s.metrics.RecordMemoryStored("duplicate")
			}
			return nil, nil
		}
	} else {
		exists, err := s.hashExists(ctx, userID, contentHash)
		if err != nil {
			return nil, err
		}
		if exists {
			log.Printf("🔄 [MEMORY-STORAGE] Exact duplicate memory for user %s, skipping", userID)
			if s.metrics != nil {
				s.metrics.RecordMemoryStored("duplicate")
			}
			return nil, nil
		}
	}

	now := time.Now()
	memory := &models.Memory{
		ID:              primitive.NewObjectID(),
		UserID:          userID,
		Type:            candidate.Type,
		Content:         candidate.Content,
		ContentHash:     contentHash,
		Importance:      clampImportance(candidate.Importance),
		UsageCount:      0,
		SourceSessionID: sourceSessionID,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := s.collection.InsertOne(ctx, memory); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Concurrent writer beat us to the same content
			if s.metrics != nil {
				s.metrics.RecordMemoryStored("duplicate")
			}
			return nil, nil
		}
		if s.metrics != nil {
			s.metrics.RecordMemoryStored("error")
		}
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	if embeddingOK {
		if err := s.index.Add(ctx, vectorindex.MemoryCollection(userID), memory.ID.Hex(), memory.Content, embedding, map[string]string{
			"memoryType": string(memory.Type),
		}); err != nil {
			log.Printf("⚠️ [MEMORY-STORAGE] Failed to index memory %s: %v", memory.ID.Hex(), err)
		}
	}

	log.Printf("✅ [MEMORY-STORAGE] Created new memory (ID: %s, Type: %s, Importance: %.2f)", memory.ID.Hex(), memory.Type, memory.Importance)
	if s.metrics != nil {
		s.metrics.RecordMemoryStored("stored")
	}
	return memory, nil
}

// findSemanticDuplicate reports whether any existing memory sits above the
// dedup threshold.
func (s *MemoryStorageService) findSemanticDuplicate(ctx context.Context, userID string, embedding []float32) (bool, error) {
	hits, err := s.index.Query(ctx, vectorindex.MemoryCollection(userID), embedding, 1)
	if err != nil {
		return false, fmt.Errorf("failed to query memory index: %w", err)
	}
	for _, h := range hits {
		if float64(h.Similarity) >= memoryDedupThreshold {
			return true, nil
		}
	}
	return false, nil
}

// hashExists checks for an exact normalized-content match.
func (s *MemoryStorageService) hashExists(ctx context.Context, userID, contentHash string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{
		"userId":      userID,
		"contentHash": contentHash,
		"active":      true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return count > 0, nil
}

// clampImportance applies the extraction importance policy: default 0.7
// when unset, clamped to [0.5, 1.0].
func clampImportance(importance float64) float64 {
	if importance == 0 {
		return 0.7
	}
	if importance < 0.5 {
		return 0.5
	}
	if importance > 1.0 {
		return 1.0
	}
	return importance
}

// Search retrieves the user's most relevant active memories for a query.
// Results above the similarity threshold are ranked by a weighted blend of
// similarity and importance. Usage counting runs off the request path.
func (s *MemoryStorageService) Search(ctx context.Context, userID, query string, types []models.MemoryType, threshold float64, k int) ([]models.MemorySearchResult, error) {
	if k <= 0 {
		k = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			// No semantic recall without embeddings; return nothing rather
			// than guessing
			return nil, nil
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, vectorindex.MemoryCollection(userID), embedding, k*2)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory index: %w", err)
	}

	typeFilter := make(map[models.MemoryType]bool, len(types))
	for _, t := range types {
		typeFilter[t] = true
	}

	similarities := make(map[string]float64, len(hits))
	ids := make([]primitive.ObjectID, 0, len(hits))
	for _, h := range hits {
		sim := float64(h.Similarity)
		if sim < threshold {
			continue
		}
		if len(typeFilter) > 0 && !typeFilter[models.MemoryType(h.Metadata["memoryType"])] {
			continue
		}
		oid, err := primitive.ObjectIDFromHex(h.ID)
		if err != nil {
			continue
		}
		similarities[h.ID] = sim
		ids = append(ids, oid)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{
		"_id":    bson.M{"$in": ids},
		"userId": userID,
		"active": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}

	results := make([]models.MemorySearchResult, 0, len(memories))
	for _, m := range memories {
		results = append(results, models.MemorySearchResult{
			Memory:     m,
			Similarity: similarities[m.ID.Hex()],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return rankScore(results[i]) > rankScore(results[j])
	})
	if len(results) > k {
		results = results[:k]
	}

	// Usage tracking is best-effort and must never block retrieval
	retrieved := make([]primitive.ObjectID, 0, len(results))
	for _, r := range results {
		retrieved = append(retrieved, r.ID)
	}
	go s.recordUsage(retrieved)

	return results, nil
}

// rankScore blends similarity with the importance prior.
func rankScore(r models.MemorySearchResult) float64 {
	return memorySimilarityWeight*r.Similarity + memoryImportanceWeight*r.Importance
}

// recordUsage increments usage counters for retrieved memories.
func (s *MemoryStorageService) recordUsage(ids []primitive.ObjectID) {
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	_, err := s.collection.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{
			"$inc": bson.M{"usageCount": 1},
			"$set": bson.M{"lastAccessedAt": now},
		},
	)
	if err != nil {
		log.Printf("⚠️ [MEMORY-STORAGE] Failed to record usage for %d memories: %v", len(ids), err)
	}
}

// ListActive returns all active memories for a user, most important first.
func (s *MemoryStorageService) ListActive(ctx context.Context, userID string) ([]models.Memory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "importance", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID, "active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}
	return memories, nil
}

// HasAnyMemories reports whether the user has any memories at all, active
// or not. Used as the profile-seeding guard.
func (s *MemoryStorageService) HasAnyMemories(ctx context.Context, userID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count memories: %w", err)
	}
	return count > 0, nil
}

// Deactivate soft-deletes a memory and removes its index entry.
func (s *MemoryStorageService) Deactivate(ctx context.Context, userID string, memoryID primitive.ObjectID) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": memoryID, "userId": userID, "active": true},
		bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate memory: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	if err := s.index.Remove(ctx, vectorindex.MemoryCollection(userID), memoryID.Hex()); err != nil {
		log.Printf("⚠️ [MEMORY-STORAGE] Failed to remove memory %s from index: %v", memoryID.Hex(), err)
	}

	log.Printf("🗑️ [MEMORY-STORAGE] Deactivated memory (ID: %s)", memoryID.Hex())
	return nil
}

// Stats returns aggregate counts for a user's memory store.
func (s *MemoryStorageService) Stats(ctx context.Context, userID string) (*MemoryStats, error) {
	stats := &MemoryStats{ByType: make(map[models.MemoryType]int64)}

	active, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID, "active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to count active memories: %w", err)
	}
	stats.Active = active

	inactive, err := s.collection.CountDocuments(ctx, bson.M{"userId": userID, "active": false})
	if err != nil {
		return nil, fmt.Errorf("failed to count inactive memories: %w", err)
	}
	stats.Inactive = inactive

	cursor, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID, "active": true}}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$memoryType",
			"count":      bson.M{"$sum": 1},
			"totalUsage": bson.M{"$sum": "$usageCount"},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate memory stats: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Type       models.MemoryType `bson:"_id"`
		Count      int64             `bson:"count"`
		TotalUsage int64             `bson:"totalUsage"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode memory stats: %w", err)
	}
	for _, g := range groups {
		stats.ByType[g.Type] = g.Count
		stats.TotalUsage += g.TotalUsage
	}

	return stats, nil
}

// IndexAll rebuilds the user-memory vector index from Mongo. Called at
// startup.
func (s *MemoryStorageService) IndexAll(ctx context.Context) error {
	cursor, err := s.collection.Find(ctx, bson.M{"active": true})
	if err != nil {
		return fmt.Errorf("failed to load memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return fmt.Errorf("failed to decode memories: %w", err)
	}
	if len(memories) == 0 {
		log.Println("🧠 [MEMORY-STORAGE] No memories to index")
		return nil
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Content
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			log.Println("⚠️ [MEMORY-STORAGE] Embeddings unavailable, memory recall disabled")
			return nil
		}
		return fmt.Errorf("failed to embed memories: %w", err)
	}

	for i, m := range memories {
		if err := s.index.Add(ctx, vectorindex.MemoryCollection(m.UserID), m.ID.Hex(), m.Content, embeddings[i], map[string]string{
			"memoryType": string(m.Type),
		}); err != nil {
			return fmt.Errorf("failed to index memory %s: %w", m.ID.Hex(), err)
		}
	}

	log.Printf("🧠 [MEMORY-STORAGE] Indexed %d memories", len(memories))
	return nil
}
