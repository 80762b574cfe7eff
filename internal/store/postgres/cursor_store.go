package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL. The cursor is
// a single row; Set upserts it.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the last fully processed block number, or domain.ErrNotFound
// when the listener has never run.
func (s *CursorStore) Get(ctx context.Context) (uint64, error) {
	var block uint64
	err := s.pool.QueryRow(ctx,
		"SELECT block_number FROM block_cursor WHERE id = 1",
	).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get cursor: %w", err)
	}
	return block, nil
}

// Set records block as the last fully processed block.
func (s *CursorStore) Set(ctx context.Context, block uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_cursor (id, block_number, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET block_number = EXCLUDED.block_number, updated_at = NOW()`,
		block,
	)
	if err != nil {
		return fmt.Errorf("postgres: set cursor to %d: %w", block, err)
	}
	return nil
}
