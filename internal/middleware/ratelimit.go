package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Context composition limits. Each request fans out to embedding and
	// retrieval providers, so this is tighter than the global limit.
	ContextBuildMax        int
	ContextBuildExpiration time.Duration

	// Session-finished limits. Each call enqueues extraction and summary
	// model work.
	SessionFinishMax        int
	SessionFinishExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 200/min = ~3.3 req/sec
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Context builds: 60/min = 1 req/sec average
		ContextBuildMax:        60,
		ContextBuildExpiration: 1 * time.Minute,

		// Session finishes: a user ends sessions far less often than they chat
		SessionFinishMax:        10,
		SessionFinishExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_CONTEXT_BUILD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.ContextBuildMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_SESSION_FINISH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.SessionFinishMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.ContextBuildMax = 300
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// ContextBuildRateLimiter limits context composition, keyed by user when one
// is supplied and by IP otherwise.
func ContextBuildRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ContextBuildMax,
		Expiration: config.ContextBuildExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "ctx:" + userID
			}
			return "ctx-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Context build limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": int(config.ContextBuildExpiration.Seconds()),
			})
		},
	})
}

// SessionFinishRateLimiter limits session-finished notifications, which fan
// out into extraction and summarization model calls.
func SessionFinishRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.SessionFinishMax,
		Expiration: config.SessionFinishExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(string); ok && userID != "" {
				return "finish:" + userID
			}
			return "finish-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Session finish limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many session updates. Please wait.",
				"retry_after": int(config.SessionFinishExpiration.Seconds()),
			})
		},
	})
}
