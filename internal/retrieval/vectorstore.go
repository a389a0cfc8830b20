// Package retrieval implements product search: embeddings for catalogue
// entries, cosine-similarity lookup, and the reply text built from hits.
package retrieval

import (
	"context"
	"time"
)

// VectorStore stores product embeddings and answers nearest-neighbour
// queries. SQLiteStore is the only implementation.
type VectorStore interface {
	// Insert adds records.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to topK records ordered by descending similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByProduct removes every vector belonging to a product and
	// reports how many were removed.
	DeleteByProduct(ctx context.Context, productID string) (int, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
}

// Record is one embedded text chunk of a product.
type Record struct {
	ID        string
	ProductID string
	TextChunk string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with its cosine similarity to the query.
type ScoredRecord struct {
	Record
	Score float32
}
