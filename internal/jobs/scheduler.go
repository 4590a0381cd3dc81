package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"chatnil/internal/services"
)

const (
	extractionDrainInterval = 1 * time.Minute
	extractionDrainBatch    = 10

	cacheSweepInterval = 1 * time.Hour

	decayInterval = 24 * time.Hour
	decayLockKey  = "jobs:lock:memory-decay"
	decayLockTTL  = 30 * time.Minute
)

// Scheduler runs the background maintenance jobs: extraction queue
// draining, response cache sweeping, and memory decay.
type Scheduler struct {
	scheduler  gocron.Scheduler
	extraction *services.MemoryExtractionService
	cache      *services.ResponseCacheService
	decay      *services.MemoryDecayService
	redis      *services.RedisService
	instanceID string
}

// NewScheduler creates the job scheduler
func NewScheduler(
	extraction *services.MemoryExtractionService,
	cache *services.ResponseCacheService,
	decay *services.MemoryDecayService,
	redisService *services.RedisService,
) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{
		scheduler:  scheduler,
		extraction: extraction,
		cache:      cache,
		decay:      decay,
		redis:      redisService,
		instanceID: uuid.New().String(),
	}, nil
}

// Start registers all jobs and starts the scheduler
func (s *Scheduler) Start() error {
	log.Println("⏰ Starting job scheduler...")

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(extractionDrainInterval),
		gocron.NewTask(s.drainExtractionQueue),
		gocron.WithName("memory-extraction-drain"),
	); err != nil {
		return fmt.Errorf("failed to register extraction job: %w", err)
	}

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(cacheSweepInterval),
		gocron.NewTask(s.sweepResponseCache),
		gocron.WithName("response-cache-sweep"),
	); err != nil {
		return fmt.Errorf("failed to register cache sweep job: %w", err)
	}

	if _, err := s.scheduler.NewJob(
		gocron.DurationJob(decayInterval),
		gocron.NewTask(s.runMemoryDecay),
		gocron.WithName("memory-decay"),
	); err != nil {
		return fmt.Errorf("failed to register decay job: %w", err)
	}

	s.scheduler.Start()
	log.Println("✅ Job scheduler started")
	return nil
}

// Stop shuts the scheduler down
func (s *Scheduler) Stop() error {
	log.Println("⏹️ Stopping job scheduler...")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) drainExtractionQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	processed, err := s.extraction.DrainPending(ctx, extractionDrainBatch)
	if err != nil {
		log.Printf("⚠️ [JOBS] Extraction drain failed: %v", err)
		return
	}
	if processed > 0 {
		log.Printf("✅ [JOBS] Processed %d extraction jobs", processed)
	}
}

func (s *Scheduler) sweepResponseCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.cache.SweepExpired(ctx); err != nil {
		log.Printf("⚠️ [JOBS] Cache sweep failed: %v", err)
	}
}

func (s *Scheduler) runMemoryDecay() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// One instance runs decay at a time across the deployment
	acquired, err := s.redis.AcquireLock(ctx, decayLockKey, s.instanceID, decayLockTTL)
	if err != nil {
		log.Printf("⚠️ [JOBS] Failed to acquire decay lock: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if _, err := s.redis.ReleaseLock(context.Background(), decayLockKey, s.instanceID); err != nil {
			log.Printf("⚠️ [JOBS] Failed to release decay lock: %v", err)
		}
	}()

	if err := s.decay.RunDecayJob(ctx); err != nil {
		log.Printf("⚠️ [JOBS] Memory decay failed: %v", err)
	}
}
