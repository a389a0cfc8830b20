package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const interactionColumns = "id, session_id, created_at, user_text, action, rule, confidence, rationale, reply, status"

// SaveInteraction records a chat turn.
func (s *Store) SaveInteraction(ctx context.Context, i Interaction) error {
	if i.Status == "" {
		i.Status = "completed"
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.SessionID, i.CreatedAt.UTC().Format(time.RFC3339Nano), i.UserText, i.Action,
		i.Rule, i.Confidence, i.Rationale, i.Reply, i.Status,
	)
	if err != nil {
		return fmt.Errorf("saving interaction %s: %w", i.ID, err)
	}
	return nil
}

// GetInteraction loads one interaction.
func (s *Store) GetInteraction(ctx context.Context, id string) (Interaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+interactionColumns+" FROM interactions WHERE id = ?", id)
	i, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	return i, err
}

// RecentInteractions returns the newest interactions first.
func (s *Store) RecentInteractions(ctx context.Context, limit, offset int) ([]Interaction, error) {
	return s.queryInteractions(ctx,
		"SELECT "+interactionColumns+" FROM interactions ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, offset)
}

// SessionInteractions returns one session's interactions, oldest first.
func (s *Store) SessionInteractions(ctx context.Context, sessionID string, limit int) ([]Interaction, error) {
	return s.queryInteractions(ctx,
		"SELECT "+interactionColumns+" FROM interactions WHERE session_id = ? ORDER BY created_at ASC LIMIT ?", sessionID, limit)
}

func (s *Store) queryInteractions(ctx context.Context, query string, args ...any) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func scanInteraction(r rowScanner) (Interaction, error) {
	var i Interaction
	var createdAt string
	if err := r.Scan(&i.ID, &i.SessionID, &createdAt, &i.UserText, &i.Action, &i.Rule,
		&i.Confidence, &i.Rationale, &i.Reply, &i.Status); err != nil {
		return Interaction{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at for interaction %s: %w", i.ID, err)
	}
	i.CreatedAt = t
	return i, nil
}
