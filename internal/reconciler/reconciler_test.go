package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

type fakeFeed struct {
	trades []domain.Trade
	err    error
}

func (f *fakeFeed) ListTrades(context.Context) ([]domain.Trade, error) {
	return f.trades, f.err
}

type settleCall struct {
	recipient string
	amount    float64
}

type fakeSettler struct {
	calls []settleCall
	err   error
}

func (f *fakeSettler) Settle(_ context.Context, recipient string, amount float64) (string, error) {
	f.calls = append(f.calls, settleCall{recipient, amount})
	if f.err != nil {
		return "", f.err
	}
	return "0xsettled", nil
}

type memSettlements struct {
	records   map[string]domain.SettlementRecord
	insertErr error
}

func newMemSettlements() *memSettlements {
	return &memSettlements{records: map[string]domain.SettlementRecord{}}
}

func (m *memSettlements) Insert(_ context.Context, rec domain.SettlementRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.records[rec.TradeID]; !ok {
		m.records[rec.TradeID] = rec
	}
	return nil
}

func (m *memSettlements) ProcessedIDs(context.Context) (map[string]bool, error) {
	ids := make(map[string]bool, len(m.records))
	for id := range m.records {
		ids[id] = true
	}
	return ids, nil
}

func (m *memSettlements) List(context.Context, domain.ListOpts) ([]domain.SettlementRecord, error) {
	return nil, nil
}

func (m *memSettlements) ListBefore(context.Context, time.Time) ([]domain.SettlementRecord, error) {
	return nil, nil
}

type memCache struct {
	ids map[string]bool
}

func (c *memCache) Contains(_ context.Context, id string) (bool, error) {
	return c.ids[id], nil
}

func (c *memCache) Add(_ context.Context, id string) error {
	c.ids[id] = true
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type notification struct {
	event, title, message string
}

type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, message string) error {
	f.sent = append(f.sent, notification{event, title, message})
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	return Config{
		CheckInterval:  time.Millisecond,
		DustThreshold:  0.0001,
		ReferencePrice: 100,
		NotifyFailures: true,
		LockTTL:        time.Minute,
	}
}

func trade(id string, side domain.OrderSide, price, quantity float64) domain.Trade {
	return domain.Trade{
		ID:        id,
		Maker:     "0xmaker",
		Taker:     "0xtaker",
		TakerSide: side,
		Price:     price,
		Quantity:  quantity,
		Timestamp: 1700000000,
	}
}

func newTestReconciler(feed TradeFeed, settler Settler, store domain.SettlementStore, cache domain.SettledIDCache, locks domain.LockManager, notifier Notifier) *Reconciler {
	return New(feed, settler, store, cache, locks, nil, notifier, testConfig(), discard())
}

func TestCycleSettlesNewTrades(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{
		trade("abc", domain.OrderSideBuy, 2.5, 10),
		trade("xyz", domain.OrderSideSell, 3, 4),
	}}
	settler := &fakeSettler{}
	store := newMemSettlements()

	r := newTestReconciler(feed, settler, store, nil, nil, nil)
	n, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if n != 2 || len(settler.calls) != 2 {
		t.Fatalf("processed=%d calls=%d", n, len(settler.calls))
	}

	// Buy: maker receives; sell: taker receives.
	if settler.calls[0].recipient != "0xmaker" || settler.calls[0].amount != 25 {
		t.Fatalf("buy-side call: %+v", settler.calls[0])
	}
	if settler.calls[1].recipient != "0xtaker" || settler.calls[1].amount != 12 {
		t.Fatalf("sell-side call: %+v", settler.calls[1])
	}

	for _, id := range []string{"abc", "xyz"} {
		rec, ok := store.records[id]
		if !ok || !rec.Succeeded() {
			t.Fatalf("record for %s: %+v ok=%v", id, rec, ok)
		}
	}
}

func TestCycleAtMostOneAttempt(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{trade("abc", domain.OrderSideBuy, 2.5, 10)}}
	settler := &fakeSettler{}
	store := newMemSettlements()

	r := newTestReconciler(feed, settler, store, nil, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := r.Cycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	if len(settler.calls) != 1 {
		t.Fatalf("trade settled %d times", len(settler.calls))
	}
}

func TestCycleFailedSettlementRecordedAndNotRetried(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{trade("abc", domain.OrderSideBuy, 2.5, 10)}}
	settler := &fakeSettler{err: domain.ErrNotOwner}
	store := newMemSettlements()
	notifier := &fakeNotifier{}

	r := newTestReconciler(feed, settler, store, nil, nil, notifier)
	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	rec, ok := store.records["abc"]
	if !ok {
		t.Fatal("failed attempt must still be recorded")
	}
	if rec.Succeeded() {
		t.Fatal("failed attempt must not carry a tx hash")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].event != "settlement_failed" {
		t.Fatalf("escalation: %+v", notifier.sent)
	}

	// Second cycle: the failed trade stays settled-once.
	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("failed trade retried: %d calls", len(settler.calls))
	}
}

func TestCycleDustFallback(t *testing.T) {
	// Market trades report price 0; the transfer falls back to
	// quantity * reference price.
	feed := &fakeFeed{trades: []domain.Trade{trade("mkt", domain.OrderSideSell, 0, 3)}}
	settler := &fakeSettler{}

	r := newTestReconciler(feed, settler, newMemSettlements(), nil, nil, nil)
	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if settler.calls[0].amount != 300 {
		t.Fatalf("fallback amount: %v", settler.calls[0].amount)
	}
}

func TestCycleCacheShortCircuits(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{trade("abc", domain.OrderSideBuy, 2.5, 10)}}
	settler := &fakeSettler{}
	cache := &memCache{ids: map[string]bool{"abc": true}}

	r := newTestReconciler(feed, settler, newMemSettlements(), cache, nil, nil)
	n, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if n != 0 || len(settler.calls) != 0 {
		t.Fatal("cached trade must not be re-settled")
	}
}

func TestCycleSkipsWhenLockHeld(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{trade("abc", domain.OrderSideBuy, 2.5, 10)}}
	settler := &fakeSettler{}

	r := newTestReconciler(feed, settler, newMemSettlements(), nil, heldLock{}, nil)
	n, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("held lock should be a silent no-op: %v", err)
	}
	if n != 0 || len(settler.calls) != 0 {
		t.Fatal("must not settle without the lock")
	}
}

func TestCycleFeedErrorPropagates(t *testing.T) {
	feed := &fakeFeed{err: errors.New("matcher unreachable")}
	r := newTestReconciler(feed, &fakeSettler{}, newMemSettlements(), nil, nil, nil)
	if _, err := r.Cycle(context.Background()); err == nil {
		t.Fatal("expected feed error")
	}
}

func TestCycleRecordWriteErrorPropagates(t *testing.T) {
	feed := &fakeFeed{trades: []domain.Trade{trade("abc", domain.OrderSideBuy, 2.5, 10)}}
	store := newMemSettlements()
	store.insertErr = errors.New("db down")

	r := newTestReconciler(feed, &fakeSettler{}, store, nil, nil, nil)
	if _, err := r.Cycle(context.Background()); err == nil {
		t.Fatal("a record that cannot be written must abort the cycle")
	}
}
