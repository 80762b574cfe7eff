package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// CursorStore persists the last fully-processed block number. There is a
// single cursor row; Get returns ErrNotFound before the first Set.
type CursorStore interface {
	Get(ctx context.Context) (uint64, error)
	Set(ctx context.Context, block uint64) error
}

// EventStore is the append-only event ledger. Inserts of an already-seen
// (tx hash, log index) pair are silent no-ops, so replaying a block range is
// safe.
type EventStore interface {
	InsertOrderEvents(ctx context.Context, events []OrderEvent) error
	InsertWithdrawalEvents(ctx context.Context, events []WithdrawalEvent) error
	ListOrderEvents(ctx context.Context, opts ListOpts) ([]OrderEvent, error)
	ListOrderEventsBefore(ctx context.Context, before time.Time) ([]OrderEvent, error)
	ListWithdrawalEventsBefore(ctx context.Context, before time.Time) ([]WithdrawalEvent, error)
	CountOrderEvents(ctx context.Context) (int64, error)
}

// SettlementStore is the append-only record of settlement attempts, one row
// per trade id. Insert of an existing trade id is a silent no-op.
type SettlementStore interface {
	Insert(ctx context.Context, rec SettlementRecord) error
	ProcessedIDs(ctx context.Context) (map[string]bool, error)
	List(ctx context.Context, opts ListOpts) ([]SettlementRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]SettlementRecord, error)
}

// SettledIDCache fronts SettlementStore.ProcessedIDs with a fast membership
// set. A cache miss is never authoritative; callers must fall through to the
// store.
type SettledIDCache interface {
	Contains(ctx context.Context, tradeID string) (bool, error)
	Add(ctx context.Context, tradeID string) error
}

// LockManager provides distributed locks so that at most one reconciler
// issues settlements at a time when several bridge processes share a
// database.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus publishes ephemeral process events (ingestion, settlement
// outcomes) for the ops WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads a single object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports aged rows from the primary store to cold storage. Export
// only; deleting the archived rows from Postgres stays a manual step.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
	ArchiveSettlements(ctx context.Context, before time.Time) (int64, error)
}
