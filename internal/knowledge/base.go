// Package knowledge indexes reference documents so the assessor can tell
// how well an output's topic is covered by known material.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ziadkadry99/hitl/internal/embeddings"
)

const collectionName = "knowledge"

// Document is one indexed chunk of a reference file.
type Document struct {
	ID      string
	Content string
	Source  string
	Chunk   int
}

// Result pairs a document with its similarity to a query.
type Result struct {
	Document   Document
	Similarity float32
}

// Base is an in-memory vector collection of reference documents.
type Base struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// NewBase creates an empty knowledge base using embedder for vectors.
func NewBase(embedder embeddings.Embedder) (*Base, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Base{db: db, collection: col, embedFunc: ef}, nil
}

// AddDocuments adds or replaces documents.
func (b *Base) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromDocs[i] = chromem.Document{
			ID:      d.ID,
			Content: d.Content,
			Metadata: map[string]string{
				"source": d.Source,
				"chunk":  strconv.Itoa(d.Chunk),
			},
		}
	}
	return b.collection.AddDocuments(ctx, chromDocs, 1)
}

// Search returns up to limit documents most similar to query.
func (b *Base) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	count := b.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem-go requires nResults <= collection size.
	limit = min(limit, count)

	res, err := b.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]Result, len(res))
	for i, r := range res {
		chunk, _ := strconv.Atoi(r.Metadata["chunk"])
		out[i] = Result{
			Document: Document{
				ID:      r.ID,
				Content: r.Content,
				Source:  r.Metadata["source"],
				Chunk:   chunk,
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// Count returns the number of indexed documents.
func (b *Base) Count() int {
	return b.collection.Count()
}

// Persist writes the collection to path as a compressed gob file.
func (b *Base) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating knowledge directory: %w", err)
	}
	return b.db.ExportToFile(path, true, "")
}

// Load replaces the collection with the one stored at path.
func (b *Base) Load(path string) error {
	if err := b.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}
	col := b.db.GetCollection(collectionName, b.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	b.collection = col
	return nil
}
