package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	return nil
}

type stubEventStore struct {
	domain.EventStore
	orders      []domain.OrderEvent
	withdrawals []domain.WithdrawalEvent
}

func (s *stubEventStore) ListOrderEventsBefore(context.Context, time.Time) ([]domain.OrderEvent, error) {
	return s.orders, nil
}

func (s *stubEventStore) ListWithdrawalEventsBefore(context.Context, time.Time) ([]domain.WithdrawalEvent, error) {
	return s.withdrawals, nil
}

type stubSettlementStore struct {
	domain.SettlementStore
	recs []domain.SettlementRecord
}

func (s *stubSettlementStore) ListBefore(context.Context, time.Time) ([]domain.SettlementRecord, error) {
	return s.recs, nil
}

func TestArchiveEventsWritesJSONL(t *testing.T) {
	w := &memWriter{}
	events := &stubEventStore{
		orders: []domain.OrderEvent{
			{TxHash: "0xaa", Sender: "0x1", Side: "buy", MarketCode: "ETH-TST"},
			{TxHash: "0xbb", Sender: "0x2", Side: "sell", MarketCode: "ETH-TST"},
		},
		withdrawals: []domain.WithdrawalEvent{
			{TxHash: "0xcc", Recipient: "0x3"},
		},
	}

	a := NewArchiver(w, events, &stubSettlementStore{})
	cutoff := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveEvents(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 3 {
		t.Fatalf("count: got %d want 3", n)
	}

	orderBlob, ok := w.objects["archive/order_events/2026-01.jsonl"]
	if !ok {
		t.Fatalf("order archive missing, got keys %v", keys(w.objects))
	}
	if lines := bytes.Count(bytes.TrimRight(orderBlob, "\n"), []byte{'\n'}) + 1; lines != 2 {
		t.Fatalf("order archive lines: %d", lines)
	}
	if !strings.Contains(string(orderBlob), "0xaa") {
		t.Fatal("order archive missing tx hash")
	}

	if _, ok := w.objects["archive/withdrawal_events/2026-01.jsonl"]; !ok {
		t.Fatal("withdrawal archive missing")
	}
}

func TestArchiveEventsEmptyIsNoop(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, &stubEventStore{}, &stubSettlementStore{})

	n, err := a.ArchiveEvents(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveEvents: %v", err)
	}
	if n != 0 || len(w.objects) != 0 {
		t.Fatalf("empty archive should write nothing: n=%d objects=%d", n, len(w.objects))
	}
}

func TestArchiveSettlements(t *testing.T) {
	tx := "0xsettled"
	w := &memWriter{}
	a := NewArchiver(w, &stubEventStore{}, &stubSettlementStore{
		recs: []domain.SettlementRecord{
			{TradeID: "abc", SettlementTxHash: &tx},
			{TradeID: "xyz"},
		},
	})
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveSettlements(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveSettlements: %v", err)
	}
	if n != 2 {
		t.Fatalf("count: %d", n)
	}
	if _, ok := w.objects["archive/settlements/2026-02.jsonl"]; !ok {
		t.Fatalf("settlement archive missing, got %v", keys(w.objects))
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
