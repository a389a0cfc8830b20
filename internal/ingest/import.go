package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/kopi/internal/storage"
)

// CatalogStore is a JobStore that can also save products.
type CatalogStore interface {
	JobStore
	SaveProduct(ctx context.Context, p storage.Product) error
}

// ImportProducts saves products and queues each for embedding. Missing ids
// are generated. The stored ids are returned in input order, including the
// ones saved before a failure.
func ImportProducts(ctx context.Context, store CatalogStore, products []storage.Product) ([]string, error) {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.Name) == "" {
			return ids, fmt.Errorf("product %d: name is required", len(ids)+1)
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		if err := store.SaveProduct(ctx, p); err != nil {
			return ids, fmt.Errorf("saving product %s: %w", p.ID, err)
		}
		if err := EnqueueProductEmbed(ctx, store, p.ID); err != nil {
			return ids, fmt.Errorf("queueing product %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// ReadProducts decodes a JSON array of products, or an object with a
// "products" array.
func ReadProducts(r io.Reader) ([]storage.Product, error) {
	var products []storage.Product
	if err := decodeList(r, "products", &products); err != nil {
		return nil, err
	}
	return products, nil
}

// ReadOutlets decodes a JSON array of outlets, or an object with an
// "outlets" array.
func ReadOutlets(r io.Reader) ([]storage.Outlet, error) {
	var outlets []storage.Outlet
	if err := decodeList(r, "outlets", &outlets); err != nil {
		return nil, err
	}
	for i, o := range outlets {
		if strings.TrimSpace(o.Name) == "" {
			return nil, fmt.Errorf("outlet %d: name is required", i+1)
		}
	}
	return outlets, nil
}

func decodeList(r io.Reader, key string, dst any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("parsing JSON: %w", err)
		}
		raw, ok := wrapped[key]
		if !ok {
			return fmt.Errorf("parsing JSON: missing %q array", key)
		}
		data = raw
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	return nil
}
