package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/kopi/internal/storage"
)

// DefaultTopK is used when a caller asks for zero or fewer results.
const DefaultTopK = 3

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

// Catalog resolves product ids to catalogue entries. *storage.Store
// satisfies it.
type Catalog interface {
	GetProducts(ctx context.Context, ids []string) (map[string]storage.Product, error)
}

// ProductHit is one ranked search result.
type ProductHit struct {
	ProductID   string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       string  `json:"price"`
	URL         string  `json:"url,omitempty"`
	Score       float32 `json:"similarity_score"`
}

// Searcher embeds a query and ranks catalogue products against it.
type Searcher struct {
	embedder *Embedder
	store    VectorStore
	catalog  Catalog
	minScore float32
}

// NewSearcher creates a Searcher. Hits scoring below minScore are dropped.
func NewSearcher(embedder *Embedder, store VectorStore, catalog Catalog, minScore float32) *Searcher {
	return &Searcher{embedder: embedder, store: store, catalog: catalog, minScore: minScore}
}

// Search returns up to topK products ordered by descending similarity. A
// product with several vectors appears once, at its best score.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]ProductHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch so duplicates of one product do not crowd out others.
	scored, err := s.store.Search(ctx, vec, topK*2)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	var ids []string
	best := make(map[string]float32, len(scored))
	for _, r := range scored {
		if r.Score < s.minScore {
			continue
		}
		if _, seen := best[r.ProductID]; seen {
			continue
		}
		best[r.ProductID] = r.Score
		ids = append(ids, r.ProductID)
	}
	if len(ids) > topK {
		ids = ids[:topK]
	}
	if len(ids) == 0 {
		return nil, nil
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}

	hits := make([]ProductHit, 0, len(ids))
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			// Vector left behind by a deleted product.
			continue
		}
		hits = append(hits, ProductHit{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			URL:         p.URL,
			Score:       best[id],
		})
	}
	return hits, nil
}
