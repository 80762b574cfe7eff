package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// ArchiveImpl implements domain.Archiver by querying the event and
// settlement stores for aged rows, serializing them to JSONL, and uploading
// the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here; that is a separate, explicit step to be executed after
// the archive has been verified.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	events      domain.EventStore
	settlements domain.SettlementStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore, settlements domain.SettlementStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		events:      events,
		settlements: settlements,
	}
}

// ArchiveEvents exports order and withdrawal events older than the cutoff to
// archive/order_events/YYYY-MM.jsonl and archive/withdrawal_events/YYYY-MM.jsonl.
// It returns the total number of exported rows.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.events.ListOrderEventsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order events query: %w", err)
	}

	var count int64
	if len(orders) > 0 {
		buf, err := marshalJSONL(orders)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive order events marshal: %w", err)
		}
		path := archivePath("order_events", before)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive order events upload: %w", err)
		}
		count += int64(len(orders))
	}

	withdrawals, err := a.events.ListWithdrawalEventsBefore(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive withdrawal events query: %w", err)
	}
	if len(withdrawals) > 0 {
		buf, err := marshalJSONL(withdrawals)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive withdrawal events marshal: %w", err)
		}
		path := archivePath("withdrawal_events", before)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return count, fmt.Errorf("s3blob: archive withdrawal events upload: %w", err)
		}
		count += int64(len(withdrawals))
	}

	return count, nil
}

// ArchiveSettlements exports settlement records processed before the cutoff
// to archive/settlements/YYYY-MM.jsonl and returns the exported row count.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.settlements.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := archivePath("settlements", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	return int64(len(recs)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/order_events/2026-01.jsonl
//	archive/settlements/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
