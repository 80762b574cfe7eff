package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given
// connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

const settlementCols = `trade_id, maker, taker, taker_side, price, quantity,
	trade_timestamp, settlement_tx_hash, processed_at`

func scanSettlementRows(rows pgx.Rows) ([]domain.SettlementRecord, error) {
	var recs []domain.SettlementRecord
	for rows.Next() {
		var r domain.SettlementRecord
		if err := rows.Scan(
			&r.TradeID, &r.Maker, &r.Taker, &r.TakerSide, &r.Price,
			&r.Quantity, &r.TradeTimestamp, &r.SettlementTxHash, &r.ProcessedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert writes one settlement record. The trade id is the primary key; a
// record that already exists is left untouched, preserving the original
// attempt's outcome.
func (s *SettlementStore) Insert(ctx context.Context, rec domain.SettlementRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settlement_records (
			trade_id, maker, taker, taker_side, price, quantity,
			trade_timestamp, settlement_tx_hash, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trade_id) DO NOTHING`,
		rec.TradeID, rec.Maker, rec.Taker, rec.TakerSide, rec.Price,
		rec.Quantity, rec.TradeTimestamp, rec.SettlementTxHash, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %s: %w", rec.TradeID, err)
	}
	return nil
}

// ProcessedIDs returns the set of every trade id that already has a record,
// successful or not.
func (s *SettlementStore) ProcessedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT trade_id FROM settlement_records")
	if err != nil {
		return nil, fmt.Errorf("postgres: processed trade ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan trade id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan trade ids: %w", err)
	}
	return ids, nil
}

// List returns settlement records newest first, paginated by opts.
func (s *SettlementStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM settlement_records
		ORDER BY processed_at DESC
		LIMIT $1 OFFSET $2`, settlementCols),
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	recs, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements: %w", err)
	}
	return recs, nil
}

// ListBefore returns all settlement records processed strictly before the
// given time, oldest first. Used by the archiver.
func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM settlement_records
		WHERE processed_at < $1
		ORDER BY processed_at ASC`, settlementCols),
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements before %s: %w", before, err)
	}
	defer rows.Close()

	recs, err := scanSettlementRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settlements: %w", err)
	}
	return recs, nil
}
