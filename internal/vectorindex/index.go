package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Index is an embedded vector index built on chromem-go. Durable rows live
// in MongoDB; the index holds only embeddings plus the metadata needed to
// map a hit back to its Mongo document. It is rebuilt from Mongo at startup.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// Hit is a single nearest-neighbor result.
type Hit struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Collection naming. Memories and session summaries are namespaced per user
// so one user's vectors never appear in another user's candidate set.
const knowledgeCollection = "knowledge"

func MemoryCollection(userID string) string {
	return "memories_" + sanitize(userID)
}

func SessionCollection(userID string) string {
	return "sessions_" + sanitize(userID)
}

func KnowledgeCollection() string {
	return knowledgeCollection
}

// sanitize keeps collection names within chromem's allowed charset.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (idx *Index) getOrCreateCollection(name string) (*chromem.Collection, error) {
	idx.mu.RLock()
	col, exists := idx.collections[name]
	idx.mu.RUnlock()

	if exists {
		return col, nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Double-check after acquiring write lock
	if col, exists := idx.collections[name]; exists {
		return col, nil
	}

	col, err := idx.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	idx.collections[name] = col
	return col, nil
}

// noEmbed is installed as the collection embedding func. Every document is
// added with a precomputed embedding, so this must never be called.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vectorindex: document added without precomputed embedding")
}

// Add inserts or replaces a document in the named collection.
func (idx *Index) Add(ctx context.Context, collection, id, content string, embedding []float32, metadata map[string]string) error {
	col, err := idx.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to k nearest neighbors by cosine similarity, best first.
// An empty or missing collection yields no hits, never an error.
func (idx *Index) Query(ctx context.Context, collection string, embedding []float32, k int) ([]Hit, error) {
	col, err := idx.getOrCreateCollection(collection)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		})
	}
	return hits, nil
}

// Remove deletes a document by ID. Removing an absent ID is a no-op.
func (idx *Index) Remove(ctx context.Context, collection, id string) error {
	col, err := idx.getOrCreateCollection(collection)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	return col.Delete(ctx, nil, nil, id)
}

// Count reports how many documents the named collection holds.
func (idx *Index) Count(collection string) int {
	idx.mu.RLock()
	col, exists := idx.collections[collection]
	idx.mu.RUnlock()
	if !exists {
		return 0
	}
	return col.Count()
}
