package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escrowScope/internal/model"
)

// LoadCursor returns the saved listener cursor for name.
func (s *Store) LoadCursor(ctx context.Context, name string) (model.Cursor, bool, error) {
	if name == "" {
		return model.Cursor{}, false, fmt.Errorf("cursor name required")
	}
	var (
		c        model.Cursor
		position int64
	)
	row := s.pool.QueryRow(ctx, `SELECT last_position, last_ref, updated_at FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&position, &c.Ref, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Cursor{}, false, nil
		}
		return model.Cursor{}, false, err
	}
	c.Position = uint64(position)
	return c, true, nil
}

// SaveCursor upserts the cursor for name.
func (s *Store) SaveCursor(ctx context.Context, name string, cursor model.Cursor) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_position, last_ref, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET last_position = EXCLUDED.last_position, last_ref = EXCLUDED.last_ref, updated_at = now()
	`, name, int64(cursor.Position), cursor.Ref)
	return err
}
