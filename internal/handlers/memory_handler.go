package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"chatnil/internal/models"
	"chatnil/internal/services"
)

// contextWithDetachedTimeout returns a context detached from the request
// lifecycle, for work that continues after the response is sent.
func contextWithDetachedTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// MemoryHandler handles memory-related API endpoints
type MemoryHandler struct {
	storage    *services.MemoryStorageService
	extraction *services.MemoryExtractionService
	summaries  *services.SessionSummaryService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(
	storage *services.MemoryStorageService,
	extraction *services.MemoryExtractionService,
	summaries *services.SessionSummaryService,
) *MemoryHandler {
	return &MemoryHandler{
		storage:    storage,
		extraction: extraction,
		summaries:  summaries,
	}
}

// ListMemories returns all active memories for a user
// GET /api/users/:userId/memories
func (h *MemoryHandler) ListMemories(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user ID is required",
		})
	}

	memories, err := h.storage.ListActive(c.Context(), userID)
	if err != nil {
		log.Printf("⚠️ [MEMORY-HANDLER] Failed to list memories: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list memories",
		})
	}

	return c.JSON(fiber.Map{
		"memories": memories,
		"count":    len(memories),
	})
}

// DeleteMemory deactivates a memory
// DELETE /api/users/:userId/memories/:memoryId
func (h *MemoryHandler) DeleteMemory(c *fiber.Ctx) error {
	userID := c.Params("userId")
	memoryID, err := primitive.ObjectIDFromHex(c.Params("memoryId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid memory ID",
		})
	}

	if err := h.storage.Deactivate(c.Context(), userID, memoryID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "memory not found",
			})
		}
		log.Printf("⚠️ [MEMORY-HANDLER] Failed to deactivate memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete memory",
		})
	}

	return c.JSON(fiber.Map{"deleted": true})
}

// MemoryStats returns aggregate counts for a user's memory store
// GET /api/users/:userId/memories/stats
func (h *MemoryHandler) MemoryStats(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user ID is required",
		})
	}

	stats, err := h.storage.Stats(c.Context(), userID)
	if err != nil {
		log.Printf("⚠️ [MEMORY-HANDLER] Failed to get memory stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get memory stats",
		})
	}

	return c.JSON(stats)
}

type sessionFinishedRequest struct {
	UserID    string               `json:"user_id"`
	SessionID string               `json:"session_id"`
	Messages  []models.ChatMessage `json:"messages"`
}

// SessionFinished queues extraction and summarization for a finished
// conversation. Both run off the request path.
// POST /api/sessions/finished
func (h *MemoryHandler) SessionFinished(c *fiber.Ctx) error {
	var req sessionFinishedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" || req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and session_id are required",
		})
	}

	if err := h.extraction.Enqueue(c.Context(), req.UserID, req.SessionID, req.Messages); err != nil {
		log.Printf("⚠️ [MEMORY-HANDLER] Failed to enqueue extraction: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to queue extraction",
		})
	}

	// Summarization happens now; it is cheap enough and the result is
	// needed before the user's next session
	go func(userID, sessionID string, messages []models.ChatMessage) {
		ctx, cancel := contextWithDetachedTimeout()
		defer cancel()
		if _, err := h.summaries.Summarize(ctx, userID, sessionID, messages); err != nil {
			log.Printf("⚠️ [MEMORY-HANDLER] Failed to summarize session %s: %v", sessionID, err)
		}
	}(req.UserID, req.SessionID, req.Messages)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": true})
}
