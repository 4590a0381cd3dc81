package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"chatnil/internal/database"
	"chatnil/internal/vectorindex"
)

// MemoryDecayService periodically rescores memories by recency and usage
// frequency, and deactivates memories that have aged out.
type MemoryDecayService struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	index      *vectorindex.Index
}

// DecayConfig holds the decay algorithm configuration
type DecayConfig struct {
	RecencyWeight       float64 // Default: 0.4
	FrequencyWeight     float64 // Default: 0.3
	ImportanceWeight    float64 // Default: 0.3
	RecencyDecayRate    float64 // Default: 0.05
	FrequencyMax        int64   // Default: 20
	DeactivateThreshold float64 // Default: 0.15
}

// DefaultDecayConfig returns the default decay configuration
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		RecencyWeight:       0.4,
		FrequencyWeight:     0.3,
		ImportanceWeight:    0.3,
		RecencyDecayRate:    0.05,
		FrequencyMax:        20,
		DeactivateThreshold: 0.15,
	}
}

// NewMemoryDecayService creates a new memory decay service
func NewMemoryDecayService(mongodb *database.MongoDB, index *vectorindex.Index) *MemoryDecayService {
	return &MemoryDecayService{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionMemories),
		index:      index,
	}
}

// RunDecayJob runs the full decay job for all users
func (s *MemoryDecayService) RunDecayJob(ctx context.Context) error {
	log.Printf("🔄 [MEMORY-DECAY] Starting decay job")

	config := DefaultDecayConfig()

	userIDs, err := s.getActiveUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get active user IDs: %w", err)
	}

	log.Printf("📊 [MEMORY-DECAY] Processing %d users with active memories", len(userIDs))

	totalDeactivated := 0
	for _, userID := range userIDs {
		deactivated, err := s.RunDecayJobForUser(ctx, userID, config)
		if err != nil {
			log.Printf("⚠️ [MEMORY-DECAY] Failed to process user %s: %v", userID, err)
			continue
		}
		totalDeactivated += deactivated
	}

	log.Printf("✅ [MEMORY-DECAY] Decay job completed: %d memories deactivated", totalDeactivated)
	return nil
}

// RunDecayJobForUser rescores a user's active memories and deactivates the
// ones below the threshold. Returns the number deactivated.
func (s *MemoryDecayService) RunDecayJobForUser(ctx context.Context, userID string, config DecayConfig) (int, error) {
	filter := bson.M{
		"userId": userID,
		"active": true,
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to find memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []struct {
		ID             primitive.ObjectID `bson:"_id"`
		UsageCount     int64              `bson:"usageCount"`
		LastAccessedAt *time.Time         `bson:"lastAccessedAt"`
		Importance     float64            `bson:"importance"`
		CreatedAt      time.Time          `bson:"createdAt"`
	}

	if err := cursor.All(ctx, &memories); err != nil {
		return 0, fmt.Errorf("failed to decode memories: %w", err)
	}
	if len(memories) == 0 {
		return 0, nil
	}

	now := time.Now()
	var toDeactivate []primitive.ObjectID

	for _, mem := range memories {
		score := s.calculateMemoryScore(mem.UsageCount, mem.LastAccessedAt, mem.Importance, mem.CreatedAt, now, config)
		if score < config.DeactivateThreshold {
			toDeactivate = append(toDeactivate, mem.ID)
		}
	}

	deactivated := 0
	if len(toDeactivate) > 0 {
		deactivated, err = s.deactivateBulk(ctx, userID, toDeactivate, now)
		if err != nil {
			log.Printf("⚠️ [MEMORY-DECAY] Failed to deactivate memories for user %s: %v", userID, err)
		}
	}

	if deactivated > 0 {
		log.Printf("📊 [MEMORY-DECAY] User %s: %d memories deactivated", userID, deactivated)
	}
	return deactivated, nil
}

// calculateMemoryScore combines recency, usage frequency, and the
// importance prior into one retention score.
func (s *MemoryDecayService) calculateMemoryScore(
	usageCount int64,
	lastAccessedAt *time.Time,
	importance float64,
	createdAt time.Time,
	now time.Time,
	config DecayConfig,
) float64 {
	recencyScore := s.calculateRecencyScore(lastAccessedAt, createdAt, now, config.RecencyDecayRate)
	frequencyScore := s.calculateFrequencyScore(usageCount, config.FrequencyMax)

	return (config.RecencyWeight * recencyScore) +
		(config.FrequencyWeight * frequencyScore) +
		(config.ImportanceWeight * importance)
}

// calculateRecencyScore calculates recency score using exponential decay
// RecencyScore = exp(-0.05 × days_since_last_access)
// - Recent: 1.0
// - 1 week: ~0.70
// - 1 month: ~0.22
// - 3 months: ~0.01
func (s *MemoryDecayService) calculateRecencyScore(lastAccessedAt *time.Time, createdAt time.Time, now time.Time, decayRate float64) float64 {
	referenceTime := createdAt
	if lastAccessedAt != nil {
		referenceTime = *lastAccessedAt
	}

	daysSince := now.Sub(referenceTime).Hours() / 24.0

	return math.Exp(-decayRate * daysSince)
}

// calculateFrequencyScore maps the monotonic usage count into [0,1]
// FrequencyScore = min(1.0, usage_count / max)
// - 0 uses: 0.0
// - 10 uses: 0.5 (if max=20)
// - 20+ uses: 1.0
func (s *MemoryDecayService) calculateFrequencyScore(usageCount int64, frequencyMax int64) float64 {
	if usageCount <= 0 {
		return 0.0
	}

	frequencyScore := float64(usageCount) / float64(frequencyMax)
	if frequencyScore > 1.0 {
		frequencyScore = 1.0
	}
	return frequencyScore
}

// deactivateBulk soft-deletes memories and drops their index entries.
func (s *MemoryDecayService) deactivateBulk(ctx context.Context, userID string, memoryIDs []primitive.ObjectID, now time.Time) (int, error) {
	filter := bson.M{
		"_id": bson.M{"$in": memoryIDs},
	}
	update := bson.M{
		"$set": bson.M{
			"active":    false,
			"updatedAt": now,
		},
	}

	result, err := s.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate memories: %w", err)
	}

	for _, id := range memoryIDs {
		if err := s.index.Remove(ctx, vectorindex.MemoryCollection(userID), id.Hex()); err != nil {
			log.Printf("⚠️ [MEMORY-DECAY] Failed to remove memory %s from index: %v", id.Hex(), err)
		}
	}

	log.Printf("📦 [MEMORY-DECAY] Deactivated %d memories", result.ModifiedCount)
	return int(result.ModifiedCount), nil
}

// getActiveUserIDs gets all unique user IDs with active memories
func (s *MemoryDecayService) getActiveUserIDs(ctx context.Context) ([]string, error) {
	filter := bson.M{"active": true}

	distinctUserIDs, err := s.collection.Distinct(ctx, "userId", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct user IDs: %w", err)
	}

	userIDs := make([]string, 0, len(distinctUserIDs))
	for _, id := range distinctUserIDs {
		if userID, ok := id.(string); ok {
			userIDs = append(userIDs, userID)
		}
	}

	return userIDs, nil
}
