// Package reconciler polls the matcher's trade feed, diffs it against the
// settlement ledger, and executes on-chain settlement for each new trade.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// settlementLockKey names the distributed lock that serialises reconcilers
// across bridge processes sharing one database.
const settlementLockKey = "settlement:reconcile"

// TradeFeed is the slice of the matcher client the reconciler needs.
type TradeFeed interface {
	ListTrades(ctx context.Context) ([]domain.Trade, error)
}

// Settler executes one on-chain settlement transfer and returns the
// transaction hash.
type Settler interface {
	Settle(ctx context.Context, recipient string, amountEther float64) (string, error)
}

// Notifier escalates settlement failures for manual review.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the reconciler loop parameters.
type Config struct {
	CheckInterval time.Duration
	// DustThreshold: price*quantity below this triggers the market-order
	// fallback amount of quantity*ReferencePrice.
	DustThreshold  float64
	ReferencePrice float64
	NotifyFailures bool
	LockTTL        time.Duration
}

// Reconciler drives the settlement loop. Each trade is attempted exactly
// once: the settlement record is written whether or not the attempt
// succeeded, and its presence alone excludes the trade from future polls.
// Failed trades are escalated through the notifier, never retried.
type Reconciler struct {
	feed     TradeFeed
	settler  Settler
	store    domain.SettlementStore
	cache    domain.SettledIDCache
	locks    domain.LockManager
	bus      domain.SignalBus
	notifier Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a Reconciler. cache, locks, bus, and notifier may each be nil;
// the reconciler degrades to store-only dedup, no cross-process exclusion,
// and no fan-out.
func New(feed TradeFeed, settler Settler, store domain.SettlementStore, cache domain.SettledIDCache, locks domain.LockManager, bus domain.SignalBus, notifier Notifier, cfg Config, log *slog.Logger) *Reconciler {
	return &Reconciler{
		feed:     feed,
		settler:  settler,
		store:    store,
		cache:    cache,
		locks:    locks,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With("component", "reconciler"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
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

// Run polls until ctx is cancelled. Poll errors are logged and the loop
// continues on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("reconciler started", "check_interval", r.cfg.CheckInterval)

	for {
		if n, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("settlement cycle failed", "error", err)
		} else if n > 0 {
			r.log.Info("settlement cycle complete", "trades_processed", n)
		}

		if err := r.sleep(ctx, r.cfg.CheckInterval); err != nil {
			return err
		}
	}
}

// Cycle runs one settlement pass and returns how many new trades it
// processed. When another process holds the settlement lock the cycle is a
// silent no-op.
func (r *Reconciler) Cycle(ctx context.Context) (int, error) {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, settlementLockKey, r.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			r.log.Debug("settlement lock held elsewhere, skipping cycle")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer unlock()
	}

	trades, err := r.feed.ListTrades(ctx)
	if err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, nil
	}

	processed, err := r.store.ProcessedIDs(ctx)
	if err != nil {
		return 0, err
	}

	var handled int
	for _, trade := range trades {
		seen, err := r.alreadyHandled(ctx, trade.ID, processed)
		if err != nil {
			return handled, err
		}
		if seen {
			continue
		}

		if err := r.settleOne(ctx, trade); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}

// alreadyHandled consults the cache first, then the authoritative processed
// set. A cache hit short-circuits; a miss never does.
func (r *Reconciler) alreadyHandled(ctx context.Context, tradeID string, processed map[string]bool) (bool, error) {
	if r.cache != nil {
		hit, err := r.cache.Contains(ctx, tradeID)
		if err != nil {
			// Cache trouble must not stall settlement; fall through to the
			// store set.
			r.log.Warn("settled cache lookup failed", "trade_id", tradeID, "error", err)
		} else if hit {
			return true, nil
		}
	}
	return processed[tradeID], nil
}

// settleOne attempts settlement for a single trade and records the outcome.
// Only record-write errors propagate; a failed transfer is final for that
// trade.
func (r *Reconciler) settleOne(ctx context.Context, trade domain.Trade) error {
	recipient, amount := r.settlementParams(trade)

	r.log.Info("settling trade",
		"trade_id", trade.ID,
		"taker_side", trade.TakerSide,
		"recipient", recipient,
		"amount", amount)

	txHash, err := r.settler.Settle(ctx, recipient, amount)
	if err != nil {
		r.log.Error("settlement failed", "trade_id", trade.ID, "error", err)
		r.escalate(ctx, trade, err)
	}

	rec := domain.SettlementRecord{
		TradeID:        trade.ID,
		Maker:          trade.Maker,
		Taker:          trade.Taker,
		TakerSide:      trade.TakerSide,
		Price:          trade.Price,
		Quantity:       trade.Quantity,
		TradeTimestamp: trade.Timestamp,
		ProcessedAt:    r.now().UTC(),
	}
	if err == nil {
		rec.SettlementTxHash = &txHash
	}

	// The record goes in regardless of the transfer outcome so the trade is
	// never attempted twice.
	if err := r.store.Insert(ctx, rec); err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.Add(ctx, trade.ID); err != nil {
			r.log.Warn("settled cache update failed", "trade_id", trade.ID, "error", err)
		}
	}

	r.publishOutcome(ctx, rec)
	return nil
}

// settlementParams derives the token recipient and the ether-denominated
// transfer amount from the trade.
//
// The taker's side names what the taker does with the base asset: when the
// taker buys, the maker gave up the base asset and receives the settlement
// token; when the taker sells, the taker does.
func (r *Reconciler) settlementParams(trade domain.Trade) (recipient string, amount float64) {
	amount = trade.Price * trade.Quantity
	if amount < r.cfg.DustThreshold {
		// Market orders report a zero price; fall back to a reference price
		// so the transfer is not dust.
		amount = trade.Quantity * r.cfg.ReferencePrice
	}

	if trade.TakerSide == domain.OrderSideBuy {
		return trade.Maker, amount
	}
	return trade.Taker, amount
}

// escalate routes a failed settlement to the notifier when configured.
func (r *Reconciler) escalate(ctx context.Context, trade domain.Trade, cause error) {
	if !r.cfg.NotifyFailures || r.notifier == nil {
		return
	}
	title := "Settlement failed"
	msg := fmt.Sprintf("trade %s (maker %s, taker %s, side %s): %v",
		trade.ID, trade.Maker, trade.Taker, trade.TakerSide, cause)
	if err := r.notifier.Notify(ctx, "settlement_failed", title, msg); err != nil {
		r.log.Warn("failure escalation failed", "trade_id", trade.ID, "error", err)
	}
}

// publishOutcome fans the settlement result out on the bus; best effort.
func (r *Reconciler) publishOutcome(ctx context.Context, rec domain.SettlementRecord) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"trade_id":  rec.TradeID,
		"succeeded": rec.Succeeded(),
		"tx_hash":   rec.SettlementTxHash,
	})
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, "bridge:settlement", payload); err != nil {
		r.log.Debug("signal publish failed", "error", err)
	}
}
