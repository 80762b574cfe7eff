package listener

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

type fakeSource struct {
	head        uint64
	headErr     error
	orders      []domain.OrderEvent
	withdrawals []domain.WithdrawalEvent
	fetchErr    error
	fetchedFrom uint64
	fetchedTo   uint64
	fetches     int
}

func (f *fakeSource) LatestBlock(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeSource) FetchEvents(_ context.Context, from, to uint64) ([]domain.OrderEvent, []domain.WithdrawalEvent, error) {
	f.fetches++
	f.fetchedFrom, f.fetchedTo = from, to
	return f.orders, f.withdrawals, f.fetchErr
}

type memCursor struct {
	block uint64
	set   bool
	sets  int
}

func (c *memCursor) Get(context.Context) (uint64, error) {
	if !c.set {
		return 0, domain.ErrNotFound
	}
	return c.block, nil
}

func (c *memCursor) Set(_ context.Context, block uint64) error {
	c.block, c.set = block, true
	c.sets++
	return nil
}

type memEvents struct {
	orders      []domain.OrderEvent
	withdrawals []domain.WithdrawalEvent
	insertErr   error
}

func (m *memEvents) InsertOrderEvents(_ context.Context, evs []domain.OrderEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.orders = append(m.orders, evs...)
	return nil
}

func (m *memEvents) InsertWithdrawalEvents(_ context.Context, evs []domain.WithdrawalEvent) error {
	m.withdrawals = append(m.withdrawals, evs...)
	return nil
}

func (m *memEvents) ListOrderEvents(context.Context, domain.ListOpts) ([]domain.OrderEvent, error) {
	return m.orders, nil
}

func (m *memEvents) ListOrderEventsBefore(context.Context, time.Time) ([]domain.OrderEvent, error) {
	return nil, nil
}

func (m *memEvents) ListWithdrawalEventsBefore(context.Context, time.Time) ([]domain.WithdrawalEvent, error) {
	return nil, nil
}

func (m *memEvents) CountOrderEvents(context.Context) (int64, error) {
	return int64(len(m.orders)), nil
}

type recordingForwarder struct {
	forwarded []string
	err       error
}

func (r *recordingForwarder) Forward(_ context.Context, ev domain.OrderEvent) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.forwarded = append(r.forwarded, ev.TxHash)
	return "ord-" + ev.TxHash, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		ErrorBackoff:   time.Millisecond,
		LookbackBlocks: 10,
	}
}

func orderAt(block uint64, tx string) domain.OrderEvent {
	return domain.OrderEvent{
		BlockNumber: block,
		TxHash:      tx,
		Sender:      "0x1111111111111111111111111111111111111111",
		Token:       "0x2222222222222222222222222222222222222222",
		Amount:      "1000",
		OrderType:   domain.OrderKindLimit,
		Size:        "10",
		Side:        "buy",
		MarketCode:  "ETH-TST",
	}
}

func TestCycleColdStartUsesLookback(t *testing.T) {
	src := &fakeSource{head: 100}
	cur := &memCursor{}
	evs := &memEvents{}
	fwd := &recordingForwarder{}

	l := New(src, cur, evs, fwd, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if src.fetchedFrom != 90 || src.fetchedTo != 100 {
		t.Fatalf("cold start range: [%d,%d], want [90,100]", src.fetchedFrom, src.fetchedTo)
	}
	if cur.block != 100 {
		t.Fatalf("cursor should land on head: %d", cur.block)
	}
}

func TestCycleColdStartNearGenesis(t *testing.T) {
	src := &fakeSource{head: 5}
	l := New(src, &memCursor{}, &memEvents{}, &recordingForwarder{}, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if src.fetchedFrom != 1 {
		t.Fatalf("start clamped wrong: %d", src.fetchedFrom)
	}
}

func TestCycleResumesAfterCursor(t *testing.T) {
	src := &fakeSource{head: 110, orders: []domain.OrderEvent{orderAt(105, "0xaa")}}
	cur := &memCursor{block: 100, set: true}
	evs := &memEvents{}
	fwd := &recordingForwarder{}

	l := New(src, cur, evs, fwd, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if src.fetchedFrom != 101 || src.fetchedTo != 110 {
		t.Fatalf("range: [%d,%d], want [101,110]", src.fetchedFrom, src.fetchedTo)
	}
	if len(evs.orders) != 1 || len(fwd.forwarded) != 1 {
		t.Fatalf("persist/forward counts: %d/%d", len(evs.orders), len(fwd.forwarded))
	}
	if cur.block != 110 {
		t.Fatalf("cursor: %d", cur.block)
	}
}

func TestCycleNoNewBlocksIsNoop(t *testing.T) {
	src := &fakeSource{head: 100}
	cur := &memCursor{block: 100, set: true}

	l := New(src, cur, &memEvents{}, &recordingForwarder{}, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if src.fetches != 0 {
		t.Fatal("should not fetch when cursor is at head")
	}
	if cur.sets != 0 {
		t.Fatal("cursor must not move without a processed range")
	}
}

func TestCycleFetchErrorLeavesCursor(t *testing.T) {
	src := &fakeSource{head: 110, fetchErr: errors.New("rpc timeout")}
	cur := &memCursor{block: 100, set: true}

	l := New(src, cur, &memEvents{}, &recordingForwarder{}, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if cur.block != 100 || cur.sets != 0 {
		t.Fatalf("cursor moved on failure: %d", cur.block)
	}
}

func TestCycleInsertErrorLeavesCursor(t *testing.T) {
	src := &fakeSource{head: 110, orders: []domain.OrderEvent{orderAt(105, "0xaa")}}
	cur := &memCursor{block: 100, set: true}
	evs := &memEvents{insertErr: errors.New("db down")}
	fwd := &recordingForwarder{}

	l := New(src, cur, evs, fwd, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err == nil {
		t.Fatal("expected insert error")
	}
	if len(fwd.forwarded) != 0 {
		t.Fatal("must not relay when persistence failed")
	}
	if cur.sets != 0 {
		t.Fatal("cursor moved on failure")
	}
}

func TestCycleRelayFailureStillAdvancesCursor(t *testing.T) {
	src := &fakeSource{head: 110, orders: []domain.OrderEvent{orderAt(105, "0xaa")}}
	cur := &memCursor{block: 100, set: true}
	evs := &memEvents{}
	fwd := &recordingForwarder{err: domain.ErrRelayExhausted}

	l := New(src, cur, evs, fwd, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("relay failure must not abort the cycle: %v", err)
	}
	if len(evs.orders) != 1 {
		t.Fatal("event must stay in the ledger")
	}
	if cur.block != 110 {
		t.Fatalf("cursor: %d", cur.block)
	}
}

func TestCycleIdempotentReplay(t *testing.T) {
	// Two identical cycles over the same range must leave the cursor at the
	// same place; the ledger dedups on (tx_hash, log_index) at the SQL layer
	// so the listener itself never filters.
	src := &fakeSource{head: 110, orders: []domain.OrderEvent{orderAt(105, "0xaa")}}
	cur := &memCursor{block: 100, set: true}
	evs := &memEvents{}
	fwd := &recordingForwarder{}

	l := New(src, cur, evs, fwd, nil, testConfig(), discard())
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	cur.block = 100 // simulate a crash before the cursor write
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if cur.block != 110 {
		t.Fatalf("cursor after replay: %d", cur.block)
	}
}

type redialSource struct {
	fakeSource
	redials int
}

func (r *redialSource) Redial(context.Context) error {
	r.redials++
	return nil
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func TestRunRedialsAndEscalatesOnCycleError(t *testing.T) {
	src := &redialSource{fakeSource: fakeSource{headErr: errors.New("rpc down")}}
	notes := &recordingNotifier{}

	l := New(src, &memCursor{}, &memEvents{}, &recordingForwarder{}, nil, testConfig(), discard()).
		WithNotifier(notes)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if src.redials == 0 {
		t.Fatal("failed cycle should redial the rpc connection")
	}
	if len(notes.events) == 0 || notes.events[0] != "listener_error" {
		t.Fatalf("escalations: %v", notes.events)
	}
}

func TestForwardEscalatesRelayFailure(t *testing.T) {
	src := &fakeSource{head: 110, orders: []domain.OrderEvent{orderAt(105, "0xaa")}}
	notes := &recordingNotifier{}
	fwd := &recordingForwarder{err: domain.ErrRelayExhausted}

	l := New(src, &memCursor{block: 100, set: true}, &memEvents{}, fwd, nil, testConfig(), discard()).
		WithNotifier(notes)
	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(notes.events) != 1 || notes.events[0] != "relay_failed" {
		t.Fatalf("escalations: %v", notes.events)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{head: 100}
	l := New(src, &memCursor{}, &memEvents{}, &recordingForwarder{}, nil, testConfig(), discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
