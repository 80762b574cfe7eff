package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const orderEventCols = `block_number, tx_hash, log_index, sender, token,
	amount, order_type, size, side, market_code, block_timestamp`

func scanOrderEventRows(rows pgx.Rows) ([]domain.OrderEvent, error) {
	var events []domain.OrderEvent
	for rows.Next() {
		var (
			e         domain.OrderEvent
			orderType int16
		)
		if err := rows.Scan(
			&e.BlockNumber, &e.TxHash, &e.LogIndex, &e.Sender, &e.Token,
			&e.Amount, &orderType, &e.Size, &e.Side, &e.MarketCode,
			&e.BlockTimestamp,
		); err != nil {
			return nil, err
		}
		e.OrderType = domain.OrderKind(orderType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertOrderEvents inserts decoded OrderPlaced events using a pgx Batch.
// Events already present (same tx_hash and log_index) are silently skipped
// via ON CONFLICT DO NOTHING, so replaying a block range is safe.
func (s *EventStore) InsertOrderEvents(ctx context.Context, events []domain.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO order_events (
			block_number, tx_hash, log_index, sender, token,
			amount, order_type, size, side, market_code, block_timestamp
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		) ON CONFLICT (tx_hash, log_index) DO NOTHING`

	for _, e := range events {
		batch.Queue(query,
			e.BlockNumber, e.TxHash, e.LogIndex, e.Sender, e.Token,
			e.Amount, int16(e.OrderType), e.Size, e.Side, e.MarketCode,
			e.BlockTimestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert order event %d (%s): %w", i, events[i].TxHash, err)
		}
	}
	return nil
}

// InsertWithdrawalEvents inserts decoded AssetWithdrawn events with the same
// dedup semantics as InsertOrderEvents.
func (s *EventStore) InsertWithdrawalEvents(ctx context.Context, events []domain.WithdrawalEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO withdrawal_events (
			block_number, tx_hash, log_index, token, recipient,
			amount, block_timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) ON CONFLICT (tx_hash, log_index) DO NOTHING`

	for _, e := range events {
		batch.Queue(query,
			e.BlockNumber, e.TxHash, e.LogIndex, e.Token, e.Recipient,
			e.Amount, e.BlockTimestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert withdrawal event %d (%s): %w", i, events[i].TxHash, err)
		}
	}
	return nil
}

// ListOrderEvents returns order events newest first, paginated by opts.
func (s *EventStore) ListOrderEvents(ctx context.Context, opts domain.ListOpts) ([]domain.OrderEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM order_events
		ORDER BY block_number DESC, log_index DESC
		LIMIT $1 OFFSET $2`, orderEventCols),
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order events: %w", err)
	}
	defer rows.Close()

	events, err := scanOrderEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order events: %w", err)
	}
	return events, nil
}

// ListOrderEventsBefore returns all order events with a block timestamp
// strictly before the given time, oldest first. Used by the archiver.
func (s *EventStore) ListOrderEventsBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM order_events
		WHERE block_timestamp < $1
		ORDER BY block_number ASC, log_index ASC`, orderEventCols),
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order events before %s: %w", before, err)
	}
	defer rows.Close()

	events, err := scanOrderEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order events: %w", err)
	}
	return events, nil
}

// ListWithdrawalEventsBefore returns all withdrawal events with a block
// timestamp strictly before the given time, oldest first.
func (s *EventStore) ListWithdrawalEventsBefore(ctx context.Context, before time.Time) ([]domain.WithdrawalEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT block_number, tx_hash, log_index, token, recipient, amount, block_timestamp
		FROM withdrawal_events
		WHERE block_timestamp < $1
		ORDER BY block_number ASC, log_index ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list withdrawal events before %s: %w", before, err)
	}
	defer rows.Close()

	var events []domain.WithdrawalEvent
	for rows.Next() {
		var e domain.WithdrawalEvent
		if err := rows.Scan(
			&e.BlockNumber, &e.TxHash, &e.LogIndex, &e.Token, &e.Recipient,
			&e.Amount, &e.BlockTimestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan withdrawal event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan withdrawal events: %w", err)
	}
	return events, nil
}

// CountOrderEvents returns the total number of ledgered order events.
func (s *EventStore) CountOrderEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM order_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count order events: %w", err)
	}
	return n, nil
}
