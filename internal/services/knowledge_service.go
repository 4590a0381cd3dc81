package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatnil/internal/database"
	"chatnil/internal/models"
	"chatnil/internal/vectorindex"
)

// Hybrid search weights. Vector similarity dominates; lexical score breaks
// near-ties and rescues exact keyword matches the embedding missed.
const (
	hybridVectorWeight  = 0.7
	hybridLexicalWeight = 0.3
)

// KnowledgeService retrieves curated knowledge-base entries. Rows live in
// Mongo; embeddings live in the shared vector index and are rebuilt from
// Mongo at startup.
type KnowledgeService struct {
	db       *database.MongoDB
	embedder *EmbeddingService
	index    *vectorindex.Index
}

// NewKnowledgeService creates the knowledge retriever.
func NewKnowledgeService(db *database.MongoDB, embedder *EmbeddingService, index *vectorindex.Index) *KnowledgeService {
	return &KnowledgeService{
		db:       db,
		embedder: embedder,
		index:    index,
	}
}

// Upsert writes an entry to Mongo and refreshes its vector index entry.
func (s *KnowledgeService) Upsert(ctx context.Context, entry *models.KnowledgeEntry) error {
	collection := s.db.Collection(database.CollectionKnowledgeBase)

	entry.UpdatedAt = time.Now()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}

	filter := bson.M{"_id": entry.ID}
	update := bson.M{"$set": entry}
	opts := options.Update().SetUpsert(true)

	if _, err := collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert knowledge entry: %w", err)
	}

	return s.indexEntry(ctx, entry)
}

// indexEntry embeds and indexes a single entry. Quiz content is indexed too;
// exclusion happens at query time so study material stays searchable through
// its dedicated accessor.
func (s *KnowledgeService) indexEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	embedding, err := s.embedder.Embed(ctx, entry.Title+"\n"+entry.Body)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			// Lexical search still works without the index entry
			return nil
		}
		return fmt.Errorf("failed to embed knowledge entry: %w", err)
	}

	return s.index.Add(ctx, vectorindex.KnowledgeCollection(), entry.ID.Hex(), entry.Title, embedding, map[string]string{
		"contentType": entry.ContentType,
	})
}

// IndexAll rebuilds the knowledge vector index from Mongo. Called at
// startup. Batch-embeds to stay within provider limits.
func (s *KnowledgeService) IndexAll(ctx context.Context) error {
	collection := s.db.Collection(database.CollectionKnowledgeBase)

	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.KnowledgeEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return fmt.Errorf("failed to decode knowledge base: %w", err)
	}
	if len(entries) == 0 {
		log.Println("📚 [KNOWLEDGE] No entries to index")
		return nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Title + "\n" + e.Body
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			log.Println("⚠️ [KNOWLEDGE] Embeddings unavailable, lexical search only")
			return nil
		}
		return fmt.Errorf("failed to embed knowledge base: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		if err := s.index.Add(ctx, vectorindex.KnowledgeCollection(), e.ID.Hex(), e.Title, embeddings[i], map[string]string{
			"contentType": e.ContentType,
		}); err != nil {
			return fmt.Errorf("failed to index knowledge entry %s: %w", e.ID.Hex(), err)
		}
	}

	log.Printf("📚 [KNOWLEDGE] Indexed %d entries", len(entries))
	return nil
}

// Search runs the retrieval strategy chain: hybrid, then vector-only, then
// lexical-only. The first strategy that returns results wins. If embeddings
// are unavailable the chain skips straight to lexical. Retrieval failures
// degrade to an empty result; only context cancellation is returned.
func (s *KnowledgeService) Search(ctx context.Context, query string, role models.Role, k int, minSimilarity float64) ([]models.KnowledgeEntry, error) {
	if k <= 0 {
		k = 5
	}

	var embedding []float32
	embeddingOK := false
	if s.embedder.Available() {
		var err error
		embedding, err = s.embedder.Embed(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("⚠️ [KNOWLEDGE] Embedding failed, falling back to lexical: %v", err)
		} else {
			embeddingOK = true
		}
	}

	if embeddingOK {
		if results := s.hybridSearch(ctx, query, embedding, role, k, minSimilarity); len(results) > 0 {
			return results, nil
		}
		if results := s.vectorSearch(ctx, embedding, role, k, minSimilarity); len(results) > 0 {
			return results, nil
		}
	}

	results := s.lexicalSearch(ctx, query, role, k)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return results, nil
}

// hybridSearch blends vector similarity with Mongo text scores.
func (s *KnowledgeService) hybridSearch(ctx context.Context, query string, embedding []float32, role models.Role, k int, minSimilarity float64) []models.KnowledgeEntry {
	vectorScores := s.vectorScores(ctx, embedding, k*2, minSimilarity)
	if len(vectorScores) == 0 {
		return nil
	}

	lexicalScores := s.lexicalScores(ctx, query, k*2)

	// Union of both candidate sets, scored with the fixed weights. Entries
	// found by only one side keep that side's weighted contribution.
	combined := make(map[string]float64, len(vectorScores)+len(lexicalScores))
	for id, sim := range vectorScores {
		combined[id] = hybridVectorWeight * sim
	}
	for id, lex := range lexicalScores {
		combined[id] += hybridLexicalWeight * lex
	}

	ids := make([]string, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}

	entries := s.fetchVisible(ctx, ids, role)
	for i := range entries {
		entries[i].Similarity = combined[entries[i].ID.Hex()]
	}

	sortEntries(entries)
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// vectorSearch ranks by vector similarity alone.
func (s *KnowledgeService) vectorSearch(ctx context.Context, embedding []float32, role models.Role, k int, minSimilarity float64) []models.KnowledgeEntry {
	scores := s.vectorScores(ctx, embedding, k*2, minSimilarity)
	if len(scores) == 0 {
		return nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}

	entries := s.fetchVisible(ctx, ids, role)
	for i := range entries {
		entries[i].Similarity = scores[entries[i].ID.Hex()]
	}

	sortEntries(entries)
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// lexicalSearch is the last-resort strategy: Mongo $text search ranked by
// text score. Works with no embedding provider at all.
func (s *KnowledgeService) lexicalSearch(ctx context.Context, query string, role models.Role, k int) []models.KnowledgeEntry {
	collection := s.db.Collection(database.CollectionKnowledgeBase)

	filter := bson.M{
		"$text":       bson.M{"$search": query},
		"contentType": bson.M{"$ne": models.ContentTypeQuiz},
	}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(k * 2))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Lexical search failed: %v", err)
		return nil
	}
	defer cursor.Close(ctx)

	var raw []struct {
		models.KnowledgeEntry `bson:",inline"`
		Score                 float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Lexical decode failed: %v", err)
		return nil
	}

	entries := make([]models.KnowledgeEntry, 0, len(raw))
	for _, r := range raw {
		e := r.KnowledgeEntry
		if !e.VisibleTo(role) || e.IsQuizContent() {
			continue
		}
		e.Similarity = normalizeTextScore(r.Score)
		entries = append(entries, e)
	}

	sortEntries(entries)
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// vectorScores queries the index and returns id -> similarity above the
// threshold.
func (s *KnowledgeService) vectorScores(ctx context.Context, embedding []float32, k int, minSimilarity float64) map[string]float64 {
	hits, err := s.index.Query(ctx, vectorindex.KnowledgeCollection(), embedding, k)
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Vector query failed: %v", err)
		return nil
	}

	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		sim := float64(h.Similarity)
		if sim < minSimilarity {
			continue
		}
		scores[h.ID] = sim
	}
	return scores
}

// lexicalScores returns id -> normalized Mongo text score.
func (s *KnowledgeService) lexicalScores(ctx context.Context, query string, k int) map[string]float64 {
	collection := s.db.Collection(database.CollectionKnowledgeBase)

	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(k))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil
	}
	defer cursor.Close(ctx)

	var raw []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Score float64            `bson:"score"`
	}
	if err := cursor.All(ctx, &raw); err != nil {
		return nil
	}

	scores := make(map[string]float64, len(raw))
	for _, r := range raw {
		scores[r.ID.Hex()] = normalizeTextScore(r.Score)
	}
	return scores
}

// fetchVisible hydrates entries by hex IDs, dropping anything the role
// cannot see and all quiz content.
func (s *KnowledgeService) fetchVisible(ctx context.Context, hexIDs []string, role models.Role) []models.KnowledgeEntry {
	objectIDs := make([]primitive.ObjectID, 0, len(hexIDs))
	for _, id := range hexIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		objectIDs = append(objectIDs, oid)
	}
	if len(objectIDs) == 0 {
		return nil
	}

	collection := s.db.Collection(database.CollectionKnowledgeBase)
	cursor, err := collection.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}})
	if err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Failed to hydrate entries: %v", err)
		return nil
	}
	defer cursor.Close(ctx)

	var all []models.KnowledgeEntry
	if err := cursor.All(ctx, &all); err != nil {
		log.Printf("⚠️ [KNOWLEDGE] Failed to decode entries: %v", err)
		return nil
	}

	entries := make([]models.KnowledgeEntry, 0, len(all))
	for _, e := range all {
		if !e.VisibleTo(role) || e.IsQuizContent() {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// StudyMaterial returns quiz study material for a topic. This accessor is
// the only path that surfaces quiz content.
func (s *KnowledgeService) StudyMaterial(ctx context.Context, topic string) ([]models.KnowledgeEntry, error) {
	collection := s.db.Collection(database.CollectionKnowledgeBase)

	filter := bson.M{
		"contentType": models.ContentTypeQuiz,
		"topic":       topic,
	}
	opts := options.Find().SetSort(bson.M{"updatedAt": -1})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load study material: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.KnowledgeEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode study material: %w", err)
	}
	return entries, nil
}

// sortEntries orders by score desc, ties broken by updatedAt desc.
func sortEntries(entries []models.KnowledgeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Similarity != entries[j].Similarity {
			return entries[i].Similarity > entries[j].Similarity
		}
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
}

// normalizeTextScore squashes Mongo's unbounded text score into (0,1) so it
// can be blended with cosine similarity.
func normalizeTextScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}
