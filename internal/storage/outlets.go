package storage

import (
	"context"
	"fmt"
	"time"
)

// UpsertOutlets inserts outlets, replacing existing rows with the same name.
// It returns the number of rows written.
func (s *Store) UpsertOutlets(ctx context.Context, outlets []Outlet) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning outlet import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outlets (name, address, phone, hours, area, services, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			phone = excluded.phone,
			hours = excluded.hours,
			area = excluded.area,
			services = excluded.services,
			scraped_at = excluded.scraped_at`)
	if err != nil {
		return 0, fmt.Errorf("preparing outlet upsert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, o := range outlets {
		if o.Name == "" {
			continue
		}
		scraped := o.ScrapedAt
		if scraped.IsZero() {
			scraped = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, o.Name, o.Address, o.Phone, o.Hours, o.Area, o.Services,
			scraped.UTC().Format(time.RFC3339)); err != nil {
			return n, fmt.Errorf("upserting outlet %q: %w", o.Name, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing outlet import: %w", err)
	}
	return n, nil
}

// CountOutlets returns the number of stored outlets.
func (s *Store) CountOutlets(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outlets").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting outlets: %w", err)
	}
	return n, nil
}

// QueryRows runs a read query with bound arguments and returns every row as
// a column-name map. Text columns come back as strings. Callers are expected
// to have passed query through the text2sql safety gate.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}
