package handlers

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"chatnil/internal/models"
	"chatnil/internal/services"
)

// KnowledgeHandler handles knowledge-base API endpoints
type KnowledgeHandler struct {
	knowledge *services.KnowledgeService
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(knowledge *services.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

// Search searches knowledge entries for a role
// GET /api/knowledge/search?q=...&role=...&limit=5
func (h *KnowledgeHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q", "")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}
	role := models.Role(c.Query("role", string(models.RoleAthlete)))
	limit, _ := strconv.Atoi(c.Query("limit", "5"))

	entries, err := h.knowledge.Search(c.Context(), query, role, limit, 0.3)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE-HANDLER] Search failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "search failed",
		})
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

// StudyMaterial returns quiz study material for a topic
// GET /api/knowledge/study/:topic
func (h *KnowledgeHandler) StudyMaterial(c *fiber.Ctx) error {
	topic := c.Params("topic")
	if topic == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "topic is required",
		})
	}

	entries, err := h.knowledge.StudyMaterial(c.Context(), topic)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE-HANDLER] Failed to load study material: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load study material",
		})
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}
