package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/kopi/internal/storage"
)

// ProductLinker records which vector belongs to a product. *storage.Store
// satisfies it.
type ProductLinker interface {
	SetProductVector(ctx context.Context, productID, vectorID string) error
}

// Indexer embeds catalogue entries and replaces their stored vectors.
type Indexer struct {
	embedder *Embedder
	store    VectorStore
	linker   ProductLinker
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder *Embedder, store VectorStore, linker ProductLinker) *Indexer {
	return &Indexer{embedder: embedder, store: store, linker: linker}
}

// ProductText is the text embedded for a product: its name, then its
// description when there is one.
func ProductText(p storage.Product) string {
	name := strings.TrimSpace(p.Name)
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		return name
	}
	return name + "\n" + desc
}

// Index embeds one product and stores its vector, replacing any previous
// one. It returns the new vector id.
func (ix *Indexer) Index(ctx context.Context, p storage.Product) (string, error) {
	text := ProductText(p)
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embedding product %s: %w", p.ID, err)
	}
	return ix.replace(ctx, p.ID, text, vec)
}

// IndexBatch embeds products concurrently and stores their vectors. It
// returns how many products were indexed before the first failure.
func (ix *Indexer) IndexBatch(ctx context.Context, products []storage.Product) (int, error) {
	texts := make([]string, len(products))
	for i, p := range products {
		texts[i] = ProductText(p)
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i, p := range products {
		if _, err := ix.replace(ctx, p.ID, texts[i], vecs[i]); err != nil {
			return i, err
		}
	}
	return len(products), nil
}

func (ix *Indexer) replace(ctx context.Context, productID, text string, vec []float32) (string, error) {
	if _, err := ix.store.DeleteByProduct(ctx, productID); err != nil {
		return "", err
	}
	id := uuid.New().String()
	rec := Record{ID: id, ProductID: productID, TextChunk: text, Embedding: vec, CreatedAt: time.Now().UTC()}
	if err := ix.store.Insert(ctx, []Record{rec}); err != nil {
		return "", err
	}
	if err := ix.linker.SetProductVector(ctx, productID, id); err != nil {
		return "", fmt.Errorf("linking vector for product %s: %w", productID, err)
	}
	return id, nil
}
