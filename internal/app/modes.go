package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dextrustee/dexbridge/internal/chain"
	"github.com/dextrustee/dexbridge/internal/crypto"
	"github.com/dextrustee/dexbridge/internal/listener"
	"github.com/dextrustee/dexbridge/internal/reconciler"
	"github.com/dextrustee/dexbridge/internal/relay"
	"github.com/dextrustee/dexbridge/internal/server"
	"github.com/dextrustee/dexbridge/internal/server/handler"
	"github.com/dextrustee/dexbridge/internal/server/ws"
)

// ListenMode starts the event listener loop that ingests on-chain order
// events, ledgers them, and relays them to the matcher.
func (a *App) ListenMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting listen mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startListener(ctx, g, deps); err != nil {
		return fmt.Errorf("listen mode: %w", err)
	}
	a.startOpsServer(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// SettleMode starts the settlement reconciler loop that polls the matcher for
// trades and executes on-chain transfers for the ones not yet settled.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startReconciler(ctx, g, deps); err != nil {
		return fmt.Errorf("settle mode: %w", err)
	}
	a.startOpsServer(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// FullMode runs both the listener and the reconciler in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startListener(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if err := a.startReconciler(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startOpsServer(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	return g.Wait()
}

// startListener dials the chain RPC, builds the relay, and launches the
// listener loop on the errgroup.
func (a *App) startListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	source, err := chain.NewSource(ctx, a.cfg.Chain.RPCURL, a.cfg.Chain.ContractAddress, a.logger)
	if err != nil {
		return fmt.Errorf("chain source: %w", err)
	}
	a.closers = append(a.closers, source.Close)

	fwd := relay.New(deps.Matcher, relay.Policy{
		MaxRetries: a.cfg.Matcher.MaxRetries,
		BaseDelay:  a.cfg.Matcher.BaseDelay.Duration,
	}, a.logger)

	l := listener.New(source, deps.CursorStore, deps.EventStore, fwd, deps.SignalBus,
		listener.Config{
			PollInterval:   a.cfg.Listener.PollInterval.Duration,
			ErrorBackoff:   a.cfg.Listener.ErrorBackoff.Duration,
			LookbackBlocks: a.cfg.Listener.LookbackBlocks,
		}, a.logger).WithNotifier(deps.Notifier)

	g.Go(func() error {
		return l.Run(ctx)
	})
	return nil
}

// startReconciler loads the settlement key, dials the chain RPC for the
// executor, warms the settled-id cache, and launches the reconciler loop.
func (a *App) startReconciler(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("settlement key: %w", err)
	}

	exec, err := chain.NewExecutor(ctx,
		a.cfg.Chain.RPCURL,
		a.cfg.Chain.ContractAddress,
		a.cfg.Chain.SettlementToken,
		key,
		a.cfg.Chain.ChainID,
		a.cfg.Chain.GasLimit,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("chain executor: %w", err)
	}
	a.closers = append(a.closers, exec.Close)

	// Seed the settled cache from the store so a fresh Redis does not force
	// the first cycle through Postgres lookups for every trade.
	if ids, err := deps.SettlementStore.ProcessedIDs(ctx); err != nil {
		a.logger.WarnContext(ctx, "settled cache warm skipped",
			slog.String("error", err.Error()),
		)
	} else {
		warm := make([]string, 0, len(ids))
		for id := range ids {
			warm = append(warm, id)
		}
		if err := deps.SettledCache.Warm(ctx, warm); err != nil {
			a.logger.WarnContext(ctx, "settled cache warm failed",
				slog.String("error", err.Error()),
			)
		}
	}

	r := reconciler.New(deps.Matcher, exec, deps.SettlementStore, deps.SettledCache,
		deps.LockManager, deps.SignalBus, deps.Notifier,
		reconciler.Config{
			CheckInterval:  a.cfg.Settlement.CheckInterval.Duration,
			DustThreshold:  a.cfg.Settlement.DustThreshold,
			ReferencePrice: a.cfg.Settlement.ReferencePrice,
			NotifyFailures: a.cfg.Settlement.NotifyFailures,
			LockTTL:        a.cfg.Settlement.LockTTL.Duration,
		}, a.logger)

	g.Go(func() error {
		return r.Run(ctx)
	})
	return nil
}

// startOpsServer launches the HTTP/WebSocket ops API when enabled.
func (a *App) startOpsServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}

	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, startedAt, deps.CursorStore, deps.EventStore, a.logger),
		Events:      handler.NewEventsHandler(deps.EventStore, a.logger),
		Settlements: handler.NewSettlementsHandler(deps.SettlementStore, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiveLoop launches the periodic cold-storage export when S3 is
// wired. Rows older than the retention window are exported as JSONL; deleting
// them from Postgres stays a manual step.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := a.cfg.Archive.RetentionDays
	if retention <= 0 {
		retention = 90
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				before := time.Now().UTC().AddDate(0, 0, -retention)

				events, err := deps.Archiver.ArchiveEvents(ctx, before)
				if err != nil {
					a.logger.ErrorContext(ctx, "event archive failed",
						slog.String("error", err.Error()),
					)
				}
				settlements, err := deps.Archiver.ArchiveSettlements(ctx, before)
				if err != nil {
					a.logger.ErrorContext(ctx, "settlement archive failed",
						slog.String("error", err.Error()),
					)
				}
				if events > 0 || settlements > 0 {
					a.logger.InfoContext(ctx, "archive cycle complete",
						slog.Int64("events", events),
						slog.Int64("settlements", settlements),
						slog.Time("before", before),
					)
				}
			}
		}
	})
}
