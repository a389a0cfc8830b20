package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const productColumns = "id, name, description, price, url, created_at, vector_id"

// SaveProduct inserts or replaces a product. A replaced product keeps its
// vector link only if the caller passes it back in.
func (s *Store) SaveProduct(ctx context.Context, p Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, url, created_at, vector_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			url = excluded.url,
			vector_id = excluded.vector_id`,
		p.ID, p.Name, p.Description, p.Price, p.URL, p.CreatedAt.UTC().Format(time.RFC3339), p.VectorID,
	)
	if err != nil {
		return fmt.Errorf("saving product %s: %w", p.ID, err)
	}
	return nil
}

// GetProduct loads one product.
func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// GetProducts loads the products with the given ids. Unknown ids are
// skipped.
func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + productColumns + " FROM products WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// ListProducts returns products ordered by name.
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products ORDER BY name ASC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountProducts returns the catalogue size.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

// SetProductVector links a product to its embedding record.
func (s *Store) SetProductVector(ctx context.Context, productID, vectorID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE products SET vector_id = ? WHERE id = ?", vectorID, productID)
	if err != nil {
		return fmt.Errorf("linking product vector: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (Product, error) {
	var p Product
	var createdAt string
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.URL, &createdAt, &p.VectorID); err != nil {
		return Product{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Product{}, fmt.Errorf("parsing created_at for product %s: %w", p.ID, err)
	}
	p.CreatedAt = t
	return p, nil
}
