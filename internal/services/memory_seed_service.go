package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"chatnil/internal/database"
	"chatnil/internal/models"
)

const (
	seedLockPrefix = "memseed:lock:"
	seedLockTTL    = 2 * time.Minute
)

// MemorySeedService performs one-time seeding of a user's memory store from
// their onboarding profile, so the first conversation already knows who it
// is talking to. Seeding is idempotent: an existing-memories check plus a
// Redis lock guarantee concurrent first requests seed at most once.
type MemorySeedService struct {
	mongodb *database.MongoDB
	storage *MemoryStorageService
	redis   *RedisService
}

// NewMemorySeedService creates a new seed service
func NewMemorySeedService(mongodb *database.MongoDB, storage *MemoryStorageService, redisService *RedisService) *MemorySeedService {
	return &MemorySeedService{
		mongodb: mongodb,
		storage: storage,
		redis:   redisService,
	}
}

// SeedIfNeeded seeds profile memories unless the user already has any.
// Safe to call on every request; it returns quickly for seeded users.
// Returns the number of memories stored.
func (s *MemorySeedService) SeedIfNeeded(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user ID is required")
	}

	has, err := s.storage.HasAnyMemories(ctx, userID)
	if err != nil {
		return 0, err
	}
	if has {
		return 0, nil
	}

	// Lock so concurrent first requests don't double-seed
	lockKey := seedLockPrefix + userID
	lockValue := uuid.New().String()
	acquired, err := s.redis.AcquireLock(ctx, lockKey, lockValue, seedLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire seed lock: %w", err)
	}
	if !acquired {
		// Another request is seeding right now
		return 0, nil
	}
	defer func() {
		if _, err := s.redis.ReleaseLock(context.Background(), lockKey, lockValue); err != nil {
			log.Printf("⚠️ [MEMORY-SEED] Failed to release lock for user %s: %v", userID, err)
		}
	}()

	// Recheck under the lock
	has, err = s.storage.HasAnyMemories(ctx, userID)
	if err != nil {
		return 0, err
	}
	if has {
		return 0, nil
	}

	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		log.Printf("⏭️ [MEMORY-SEED] No profile for user %s, nothing to seed", userID)
		return 0, nil
	}

	candidates := CandidatesFromProfile(profile)
	stored := 0
	for _, c := range candidates {
		if _, err := s.storage.Store(ctx, userID, c, ""); err != nil {
			log.Printf("⚠️ [MEMORY-SEED] Failed to seed memory for user %s: %v", userID, err)
			continue
		}
		stored++
	}

	log.Printf("✅ [MEMORY-SEED] Seeded %d memories from profile for user %s", stored, userID)
	return stored, nil
}

// loadProfile fetches the athlete profile, nil when absent.
func (s *MemorySeedService) loadProfile(ctx context.Context, userID string) (*models.AthleteProfile, error) {
	collection := s.mongodb.Collection(database.CollectionAthleteProfiles)

	var profile models.AthleteProfile
	err := collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load athlete profile: %w", err)
	}
	return &profile, nil
}

// CandidatesFromProfile maps profile fields to memory candidates with fixed
// per-field importance weights. Empty fields produce nothing.
func CandidatesFromProfile(p *models.AthleteProfile) []models.MemoryCandidate {
	var candidates []models.MemoryCandidate

	add := func(t models.MemoryType, content string, importance float64) {
		candidates = append(candidates, models.MemoryCandidate{
			Type:       t,
			Content:    content,
			Importance: importance,
		})
	}

	// Context
	if p.Sport != "" {
		content := "Plays " + p.Sport
		if p.Position != "" {
			content += " as a " + p.Position
		}
		add(models.MemoryTypeContext, content, 0.95)
	}

	if len(p.SecondarySports) > 0 {
		add(models.MemoryTypeContext, "Also plays: "+strings.Join(p.SecondarySports, ", "), 0.6)
	}

	if p.School != "" {
		content := "Attends " + p.School
		if p.SchoolLevel != "" {
			content += " (" + p.SchoolLevel + ")"
		}
		if p.State != "" {
			content += " in " + p.State
		}
		add(models.MemoryTypeContext, content, 0.9)
	}

	if p.GraduationYear > 0 {
		add(models.MemoryTypeContext, fmt.Sprintf("Expected graduation year: %d", p.GraduationYear), 0.7)
	}

	if p.Major != "" {
		content := "Majoring in " + p.Major
		if p.GPA > 0 {
			content += fmt.Sprintf(" with a %.2f GPA", p.GPA)
		}
		add(models.MemoryTypeContext, content, 0.7)
	}

	if len(p.Bio) > 20 {
		add(models.MemoryTypeContext, "Personal bio: "+p.Bio, 0.75)
	}

	if len(p.NILConcerns) > 0 {
		add(models.MemoryTypeContext, "NIL concerns: "+strings.Join(p.NILConcerns, ", "), 0.85)
	}

	// Facts
	if len(p.Achievements) > 0 {
		add(models.MemoryTypeFact, "Athletic achievements: "+strings.Join(p.Achievements, "; "), 0.85)
	}

	if p.FollowerCountTotal > 0 {
		add(models.MemoryTypeFact, fmt.Sprintf("Total social media following: %d followers", p.FollowerCountTotal), 0.8)
	}

	// Preferences
	if len(p.NILInterests) > 0 {
		add(models.MemoryTypePreference, "Interested in NIL opportunities related to: "+strings.Join(p.NILInterests, ", "), 0.9)
	}

	if prefs := p.Preferences; prefs != nil {
		if len(prefs.PreferredDealTypes) > 0 {
			add(models.MemoryTypePreference, "Preferred NIL deal types: "+strings.Join(prefs.PreferredDealTypes, ", "), 0.9)
		}
		if len(prefs.ContentTypesWilling) > 0 {
			add(models.MemoryTypePreference, "Willing to create content types: "+strings.Join(prefs.ContentTypesWilling, ", "), 0.8)
		}
		if prefs.MinCompensation > 0 || prefs.MaxCompensation > 0 {
			content := "NIL compensation preferences:"
			if prefs.MinCompensation > 0 {
				content += fmt.Sprintf(" minimum $%d", prefs.MinCompensation)
			}
			if prefs.MaxCompensation > 0 {
				content += fmt.Sprintf(" up to $%d", prefs.MaxCompensation)
			}
			add(models.MemoryTypePreference, content, 0.75)
		}
		if prefs.TravelWilling != nil {
			if *prefs.TravelWilling {
				add(models.MemoryTypePreference, "Willing to travel for NIL opportunities", 0.7)
			} else {
				add(models.MemoryTypePreference, "Prefers local NIL opportunities (not willing to travel)", 0.7)
			}
		}
		if len(prefs.IndustriesAvoid) > 0 {
			add(models.MemoryTypePreference, "Industries/brands to avoid: "+strings.Join(prefs.IndustriesAvoid, ", "), 0.85)
		}
	}

	// Goals
	if len(p.NILGoals) > 0 {
		add(models.MemoryTypeGoal, "NIL goals: "+strings.Join(p.NILGoals, "; "), 0.95)
	}

	return candidates
}
