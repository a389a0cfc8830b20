//go:build integration

package retrieval

import (
	"context"
	"os"
	"testing"

	"github.com/kalambet/kopi/internal/ollama"
	"github.com/kalambet/kopi/internal/storage"
)

// TestSearcher_Ollama runs a real embedding round trip. It skips when no
// Ollama instance with the embed model is reachable.
func TestSearcher_Ollama(t *testing.T) {
	base := os.Getenv("KOPI_TEST_OLLAMA_URL")
	if base == "" {
		base = "http://localhost:11434"
	}
	client := ollama.New(base)
	ctx := context.Background()
	if !client.IsRunning(ctx) || !client.HasModel(ctx, "nomic-embed-text") {
		t.Skip("Ollama with nomic-embed-text is not available, skipping integration test")
	}

	db, vs := openTestStores(t)
	emb := NewEmbedder(client, "nomic-embed-text")
	products := []storage.Product{
		{ID: "tumbler", Name: "ZUS All-Can Tumbler", Description: "Insulated stainless steel tumbler that keeps drinks cold for hours", Price: "RM 79.00"},
		{ID: "mug", Name: "ZUS Ceramic Mug", Description: "Classic glazed ceramic mug for hot coffee at home", Price: "RM 39.00"},
		{ID: "straw", Name: "ZUS Reusable Straw Set", Description: "Metal straws with cleaning brush", Price: "RM 15.00"},
	}
	for _, p := range products {
		if err := db.SaveProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := NewIndexer(emb, vs, db).IndexBatch(ctx, products); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}

	hits, err := NewSearcher(emb, vs, db, 0).Search(ctx, "ceramic cup for hot drinks", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ProductID != "mug" {
		t.Errorf("top hit = %+v, want the mug", hits)
	}
}
