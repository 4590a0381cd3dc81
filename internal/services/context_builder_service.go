package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chatnil/internal/models"
)

// Default per-branch retrieval parameters.
const (
	memoryBranchThreshold  = 0.3
	memoryBranchLimit      = 5
	sessionBranchThreshold = 0.4
	sessionBranchLimit     = 3
	knowledgeBranchMinSim  = 0.3
	knowledgeBranchLimit   = 5

	memoryPreviewLen = 80
)

// Branch dependencies as small interfaces so tests can inject fakes.
type memorySearcher interface {
	Search(ctx context.Context, userID, query string, types []models.MemoryType, threshold float64, k int) ([]models.MemorySearchResult, error)
}

type sessionSearcher interface {
	SearchSummaries(ctx context.Context, userID, query string, threshold float64, k int) ([]models.SessionSummary, error)
}

type knowledgeSearcher interface {
	Search(ctx context.Context, query string, role models.Role, k int, minSimilarity float64) ([]models.KnowledgeEntry, error)
}

type realtimeFetcher interface {
	ShouldTrigger(query string) bool
	Fetch(ctx context.Context, query string) (*models.RealtimeResult, error)
}

type memorySeeder interface {
	SeedIfNeeded(ctx context.Context, userID string) (int, error)
}

// ContextBuilderService is the top-level orchestrator: it fans out to the
// memory, session, realtime, and knowledge branches concurrently, joins all
// of them regardless of individual failures, and merges the non-empty
// sections in a fixed order.
type ContextBuilderService struct {
	memories      memorySearcher
	sessions      sessionSearcher
	knowledge     knowledgeSearcher
	realtime      realtimeFetcher
	seeder        memorySeeder
	branchTimeout time.Duration
	metrics       *Metrics
}

// NewContextBuilderService creates the composer.
func NewContextBuilderService(
	memories memorySearcher,
	sessions sessionSearcher,
	knowledge knowledgeSearcher,
	realtime realtimeFetcher,
	seeder memorySeeder,
	branchTimeout time.Duration,
	metrics *Metrics,
) *ContextBuilderService {
	if branchTimeout <= 0 {
		branchTimeout = 8 * time.Second
	}
	return &ContextBuilderService{
		memories:      memories,
		sessions:      sessions,
		knowledge:     knowledge,
		realtime:      realtime,
		seeder:        seeder,
		branchTimeout: branchTimeout,
		metrics:       metrics,
	}
}

// BuildChatContext runs all four branches concurrently and merges their
// results. A branch that fails or times out contributes an empty section;
// the composer itself never fails on behalf of a branch.
func (s *ContextBuilderService) BuildChatContext(ctx context.Context, query, userID string, role models.Role) *models.ComposedContext {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordContextRequest()
		defer func() {
			s.metrics.RecordContextLatency(time.Since(start).Seconds())
		}()
	}

	// First-use profile seeding runs off the critical path
	if userID != "" && s.seeder != nil {
		go func() {
			seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.seeder.SeedIfNeeded(seedCtx, userID); err != nil {
				log.Printf("⚠️ [CONTEXT-BUILDER] Memory seeding failed for user %s: %v", userID, err)
			}
		}()
	}

	composed := &models.ComposedContext{}

	// Each branch writes only to its own slot; the join below is the only
	// reader.
	var (
		memoryResults    []models.MemorySearchResult
		sessionResults   []models.SessionSummary
		realtimeResult   *models.RealtimeResult
		knowledgeResults []models.KnowledgeEntry
	)

	var wg sync.WaitGroup

	if userID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			branchCtx, cancel := context.WithTimeout(ctx, s.branchTimeout)
			defer cancel()

			results, err := s.memories.Search(branchCtx, userID, query, nil, memoryBranchThreshold, memoryBranchLimit)
			if err != nil {
				log.Printf("⚠️ [CONTEXT-BUILDER] Memory branch failed: %v", err)
				if s.metrics != nil {
					s.metrics.RecordBranchError("memory")
				}
				return
			}
			memoryResults = results
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			branchCtx, cancel := context.WithTimeout(ctx, s.branchTimeout)
			defer cancel()

			results, err := s.sessions.SearchSummaries(branchCtx, userID, query, sessionBranchThreshold, sessionBranchLimit)
			if err != nil {
				log.Printf("⚠️ [CONTEXT-BUILDER] Session branch failed: %v", err)
				if s.metrics != nil {
					s.metrics.RecordBranchError("session")
				}
				return
			}
			sessionResults = results
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !s.realtime.ShouldTrigger(query) {
			return
		}
		branchCtx, cancel := context.WithTimeout(ctx, s.branchTimeout)
		defer cancel()

		result, err := s.realtime.Fetch(branchCtx, query)
		if err != nil {
			log.Printf("⚠️ [CONTEXT-BUILDER] Realtime branch failed: %v", err)
			if s.metrics != nil {
				s.metrics.RecordBranchError("realtime")
			}
			return
		}
		realtimeResult = result
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		branchCtx, cancel := context.WithTimeout(ctx, s.branchTimeout)
		defer cancel()

		results, err := s.knowledge.Search(branchCtx, query, role, knowledgeBranchLimit, knowledgeBranchMinSim)
		if err != nil {
			log.Printf("⚠️ [CONTEXT-BUILDER] Knowledge branch failed: %v", err)
			if s.metrics != nil {
				s.metrics.RecordBranchError("knowledge")
			}
			return
		}
		knowledgeResults = results
	}()

	wg.Wait()

	// Merge in the fixed order: memory, sessions, realtime, knowledge
	composed.MemorySection = renderMemorySection(memoryResults, &composed.Provenance)
	composed.SessionSection = renderSessionSection(sessionResults, &composed.Provenance)
	composed.RealtimeSection = renderRealtimeSection(realtimeResult, &composed.Provenance)
	composed.KnowledgeSection = renderKnowledgeSection(knowledgeResults, &composed.Provenance)

	return composed
}

// GetChatContext is the external surface used by the chat layer. It never
// returns an error attributable to a branch; the worst case is an empty
// string.
func (s *ContextBuilderService) GetChatContext(ctx context.Context, query string, userContext models.UserContext, userID string) string {
	composed := s.BuildChatContext(ctx, query, userID, userContext.Role)
	return composed.Combined()
}

func renderMemorySection(results []models.MemorySearchResult, prov *models.Provenance) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("WHAT YOU KNOW ABOUT THIS USER:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Type, r.Content)
		prov.Memories = append(prov.Memories, models.MemorySourceRef{
			Type:    r.Type,
			Content: previewContent(r.Content),
		})
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSessionSection(results []models.SessionSummary, prov *models.Provenance) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("RELEVANT PAST CONVERSATIONS:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Summary)
		prov.Sessions = append(prov.Sessions, models.SessionSourceRef{
			SessionID: r.SessionID,
			Title:     r.Title,
		})
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRealtimeSection(result *models.RealtimeResult, prov *models.Provenance) string {
	if result == nil || result.Content == "" {
		return ""
	}

	prov.Realtime = true
	prov.Citations = append(prov.Citations, result.Citations...)

	return "CURRENT INFORMATION (from live search):\n" + result.Content
}

func renderKnowledgeSection(results []models.KnowledgeEntry, prov *models.Provenance) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("RELEVANT KNOWLEDGE BASE ARTICLES:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "### %s\n%s\n", r.Title, r.Body)
		prov.Knowledge = append(prov.Knowledge, models.KnowledgeSourceRef{
			Title:    r.Title,
			Category: r.Category,
		})
	}
	return strings.TrimRight(b.String(), "\n")
}

// previewContent truncates memory content for provenance records.
func previewContent(content string) string {
	if len(content) <= memoryPreviewLen {
		return content
	}
	return content[:memoryPreviewLen] + "..."
}
