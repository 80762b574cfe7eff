package relay

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dextrustee/dexbridge/internal/domain"
	"github.com/dextrustee/dexbridge/internal/matcher"
)

// Submitter is the slice of the matcher client the relay needs.
type Submitter interface {
	SubmitOrder(ctx context.Context, req matcher.OrderRequest) (string, error)
}

// Relay converts decoded order events into matcher submissions. Submission
// failures are retried per the Policy; an event that exhausts its retries is
// dropped with an error, never requeued. The event ledger already holds the
// event either way, so a dropped submission can be replayed by hand.
type Relay struct {
	submitter Submitter
	policy    Policy
	sleep     func(ctx context.Context, d time.Duration) error
	log       *slog.Logger
}

// New builds a Relay around the given submitter.
func New(submitter Submitter, policy Policy, log *slog.Logger) *Relay {
	return &Relay{
		submitter: submitter,
		policy:    policy,
		sleep:     sleepCtx,
		log:       log.With("component", "relay"),
	}
}

// sleepCtx waits for d or until ctx is cancelled.
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

// Forward validates the event, maps it onto a matcher order, and submits it
// with retries. It returns the matcher order id on success. Validation
// failures return the wrapped domain.ErrValidation immediately without
// touching the matcher; exhausted retries return domain.ErrRelayExhausted
// wrapping the last submission error.
func (r *Relay) Forward(ctx context.Context, ev domain.OrderEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	req, err := buildRequest(ev)
	if err != nil {
		return "", err
	}

	// Correlation id ties the retry log lines of one event together.
	corrID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt - 1)
			r.log.Warn("retrying order submission",
				"relay_id", corrID,
				"tx_hash", ev.TxHash,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		orderID, err := r.submitter.SubmitOrder(ctx, req)
		if err == nil {
			r.log.Info("order relayed",
				"relay_id", corrID,
				"tx_hash", ev.TxHash,
				"order_id", orderID,
				"type", req.Type.String(),
				"side", req.Side,
				"quantity", req.Quantity)
			return orderID, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("relay: event %s after %d attempts: %w: %w",
		ev.TxHash, r.policy.MaxRetries, domain.ErrRelayExhausted, lastErr)
}

// buildRequest maps an order event onto the matcher's order parameters.
// Quantity is the on-chain size. For limit orders the price is derived as
// amount divided by size; market orders carry no price.
func buildRequest(ev domain.OrderEvent) (matcher.OrderRequest, error) {
	side, _ := ev.NormalizedSide() // Validate already checked it

	req := matcher.OrderRequest{
		User: ev.Sender,
		Type: ev.OrderType,
		Side: side,
	}

	size, ok := new(big.Float).SetString(ev.Size)
	if !ok {
		return matcher.OrderRequest{}, fmt.Errorf("relay: %w: size %q", domain.ErrValidation, ev.Size)
	}
	req.Quantity, _ = size.Float64()

	if ev.OrderType == domain.OrderKindLimit {
		amount, ok := new(big.Float).SetString(ev.Amount)
		if !ok {
			return matcher.OrderRequest{}, fmt.Errorf("relay: %w: amount %q", domain.ErrValidation, ev.Amount)
		}
		if size.Sign() == 0 {
			return matcher.OrderRequest{}, fmt.Errorf("relay: %w: zero size", domain.ErrValidation)
		}
		price := new(big.Float).Quo(amount, size)
		req.Price, _ = price.Float64()
		if req.Price <= 0 {
			return matcher.OrderRequest{}, fmt.Errorf("relay: %w: limit order with non-positive price", domain.ErrValidation)
		}
	}

	return req, nil
}
