package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	// Embedding provider (OpenAI-compatible)
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbeddingModel string

	// Chat-completion model used for memory extraction and session summaries
	CompletionModel string

	// Live web search provider (Perplexity-compatible)
	RealtimeAPIKey  string
	RealtimeBaseURL string
	RealtimeModel   string

	// Per-branch deadline inside the context composer
	BranchTimeout time.Duration

	// Response cache TTL
	CacheTTL time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		CompletionModel: getEnv("COMPLETION_MODEL", "gpt-4o-mini"),

		RealtimeAPIKey:  getEnv("PERPLEXITY_API_KEY", ""),
		RealtimeBaseURL: getEnv("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
		RealtimeModel:   getEnv("PERPLEXITY_MODEL", "sonar"),

		BranchTimeout: getDurationEnv("CONTEXT_BRANCH_TIMEOUT", 8*time.Second),
		CacheTTL:      getDurationEnv("RESPONSE_CACHE_TTL", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
