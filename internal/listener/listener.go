// Package listener runs the chain ingestion loop: it advances a block
// cursor, decodes contract logs into the event ledger, and forwards order
// events to the matcher.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// ChainSource is the slice of the chain client the listener needs.
type ChainSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, from, to uint64) ([]domain.OrderEvent, []domain.WithdrawalEvent, error)
}

// Forwarder relays one order event to the matcher.
type Forwarder interface {
	Forward(ctx context.Context, ev domain.OrderEvent) (string, error)
}

// Redialer is implemented by chain sources that can replace a wedged RPC
// connection. The listener redials after a failed cycle.
type Redialer interface {
	Redial(ctx context.Context) error
}

// Notifier escalates ingestion failures for manual review.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the listener loop parameters.
type Config struct {
	PollInterval   time.Duration
	ErrorBackoff   time.Duration
	LookbackBlocks uint64
}

// Listener polls the chain for new blocks and processes their logs. Exactly
// one rule governs the cursor: it only moves to a block whose logs are fully
// persisted, so a crash mid-cycle replays the range and the ledger's
// (tx_hash, log_index) dedup absorbs the duplicates.
type Listener struct {
	source   ChainSource
	cursor   domain.CursorStore
	events   domain.EventStore
	relay    Forwarder
	bus      domain.SignalBus
	notifier Notifier
	cfg      Config
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Listener. bus may be nil when no ops fan-out is wanted.
func New(source ChainSource, cursor domain.CursorStore, events domain.EventStore, relay Forwarder, bus domain.SignalBus, cfg Config, log *slog.Logger) *Listener {
	return &Listener{
		source: source,
		cursor: cursor,
		events: events,
		relay:  relay,
		bus:    bus,
		cfg:    cfg,
		log:    log.With("component", "listener"),
		sleep:  sleepCtx,
	}
}

// WithNotifier attaches a notifier for failure escalation and returns the
// listener for chaining.
func (l *Listener) WithNotifier(n Notifier) *Listener {
	l.notifier = n
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried
// after the error backoff; the cursor is untouched so the next cycle re-reads
// the same range.
func (l *Listener) Run(ctx context.Context) error {
	l.log.Info("listener started",
		"poll_interval", l.cfg.PollInterval,
		"lookback_blocks", l.cfg.LookbackBlocks)

	for {
		if err := l.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.Error("ingestion cycle failed", "error", err, "backoff", l.cfg.ErrorBackoff)
			l.escalate(ctx, "listener_error", "Ingestion cycle failed", err.Error())
			if r, ok := l.source.(Redialer); ok {
				if rerr := r.Redial(ctx); rerr != nil {
					l.log.Warn("rpc redial failed", "error", rerr)
				}
			}
			if err := l.sleep(ctx, l.cfg.ErrorBackoff); err != nil {
				return err
			}
			continue
		}

		if err := l.sleep(ctx, l.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// Cycle processes every block from the cursor to the chain head. It is
// exported so a cold start or an operator can force a single pass.
func (l *Listener) Cycle(ctx context.Context) error {
	latest, err := l.source.LatestBlock(ctx)
	if err != nil {
		return err
	}

	start, err := l.startBlock(ctx, latest)
	if err != nil {
		return err
	}
	if start > latest {
		l.log.Debug("no new blocks", "head", latest)
		return nil
	}

	orders, withdrawals, err := l.source.FetchEvents(ctx, start, latest)
	if err != nil {
		return err
	}

	// Persist before relaying: the ledger is the source of truth and must
	// hold every decoded event, valid or not.
	if err := l.events.InsertOrderEvents(ctx, orders); err != nil {
		return err
	}
	if err := l.events.InsertWithdrawalEvents(ctx, withdrawals); err != nil {
		return err
	}

	for _, ev := range orders {
		l.forward(ctx, ev)
	}

	if err := l.cursor.Set(ctx, latest); err != nil {
		return fmt.Errorf("listener: advance cursor to %d: %w", latest, err)
	}

	if len(orders) > 0 || len(withdrawals) > 0 {
		l.log.Info("processed block range",
			"from", start, "to", latest,
			"orders", len(orders), "withdrawals", len(withdrawals))
	}
	return nil
}

// startBlock resolves the first block of the cycle. On a cold start (no
// cursor yet) the listener looks back a fixed window instead of replaying
// the whole chain.
func (l *Listener) startBlock(ctx context.Context, latest uint64) (uint64, error) {
	last, err := l.cursor.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		if latest <= l.cfg.LookbackBlocks {
			return 1, nil
		}
		return latest - l.cfg.LookbackBlocks, nil
	}
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// forward relays one order event. Per-event failures never abort the cycle:
// an invalid event is skipped, an exhausted relay is dropped. Either way the
// ledger already holds the event for replay by hand.
func (l *Listener) forward(ctx context.Context, ev domain.OrderEvent) {
	orderID, err := l.relay.Forward(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrValidation):
		l.log.Warn("skipping malformed event", "tx_hash", ev.TxHash, "log_index", ev.LogIndex, "error", err)
		return
	case err != nil:
		l.log.Error("order relay failed", "tx_hash", ev.TxHash, "log_index", ev.LogIndex, "error", err)
		l.publish(ctx, "bridge:relay_failed", map[string]any{
			"tx_hash": ev.TxHash,
			"error":   err.Error(),
		})
		l.escalate(ctx, "relay_failed", "Order relay failed",
			fmt.Sprintf("event %s/%d: %v", ev.TxHash, ev.LogIndex, err))
		return
	}

	l.publish(ctx, "bridge:order_relayed", map[string]any{
		"tx_hash":  ev.TxHash,
		"order_id": orderID,
		"side":     ev.Side,
		"market":   ev.MarketCode,
	})
}

// escalate routes a failure through the notifier; best effort only.
func (l *Listener) escalate(ctx context.Context, event, title, message string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, event, title, message); err != nil {
		l.log.Debug("notify failed", "event", event, "error", err)
	}
}

// publish fans a signal out on the bus; best effort only.
func (l *Listener) publish(ctx context.Context, channel string, payload map[string]any) {
	if l.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, channel, data); err != nil {
		l.log.Debug("signal publish failed", "channel", channel, "error", err)
	}
}
