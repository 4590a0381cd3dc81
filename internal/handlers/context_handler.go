package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chatnil/internal/logging"
	"chatnil/internal/models"
	"chatnil/internal/services"
)

// ContextHandler exposes the context-composition pipeline over HTTP.
type ContextHandler struct {
	builder *services.ContextBuilderService
	cache   *services.ResponseCacheService
}

// NewContextHandler creates a new context handler
func NewContextHandler(builder *services.ContextBuilderService, cache *services.ResponseCacheService) *ContextHandler {
	return &ContextHandler{builder: builder, cache: cache}
}

type contextRequest struct {
	Query       string             `json:"query"`
	UserID      string             `json:"user_id"`
	UserContext models.UserContext `json:"user_context"`
}

// BuildContext composes retrieval context for a chat query
// POST /api/chat/context
func (h *ContextHandler) BuildContext(c *fiber.Ctx) error {
	var req contextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	logger := logging.WithRequest(requestID, req.UserID)

	composed := h.builder.BuildChatContext(c.Context(), req.Query, req.UserID, req.UserContext.Role)
	logger.Info("composed chat context",
		"empty", composed.Empty(),
		"realtime", composed.Provenance.Realtime,
		"memories", len(composed.Provenance.Memories),
		"knowledge", len(composed.Provenance.Knowledge),
	)

	return c.JSON(fiber.Map{
		"context":    composed.Combined(),
		"sections":   composed,
		"provenance": composed.Provenance,
	})
}

type cachedResponseRequest struct {
	Query        string      `json:"query"`
	Role         models.Role `json:"role"`
	ResponseText string      `json:"response_text"`
}

// LookupCachedResponse checks the full-answer cache before the chat layer
// runs the pipeline
// GET /api/chat/cache?query=...&role=...
func (h *ContextHandler) LookupCachedResponse(c *fiber.Ctx) error {
	query := c.Query("query", "")
	role := models.Role(c.Query("role", ""))
	if strings.TrimSpace(query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	entry, err := h.cache.Lookup(c.Context(), query, role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "cache lookup failed",
		})
	}
	if entry == nil {
		return c.JSON(fiber.Map{"hit": false})
	}

	return c.JSON(fiber.Map{
		"hit":           true,
		"response_text": entry.ResponseText,
		"created_at":    entry.CreatedAt,
	})
}

// StoreCachedResponse stores a finished answer for reuse
// POST /api/chat/cache
func (h *ContextHandler) StoreCachedResponse(c *fiber.Ctx) error {
	var req cachedResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Query) == "" || strings.TrimSpace(req.ResponseText) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query and response_text are required",
		})
	}

	if err := h.cache.Store(c.Context(), req.Query, req.Role, req.ResponseText, 0); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store response",
		})
	}

	return c.JSON(fiber.Map{"stored": true})
}
