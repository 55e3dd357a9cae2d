package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cardmarket/internal/crypto"
	"github.com/alanyoungcy/cardmarket/internal/market"
	"github.com/alanyoungcy/cardmarket/internal/server"
	"github.com/alanyoungcy/cardmarket/internal/server/handler"
	"github.com/alanyoungcy/cardmarket/internal/server/ws"
	"github.com/alanyoungcy/cardmarket/internal/service"
)

// janitorInterval is how often expired replay signatures and in-memory rate
// limit windows are pruned.
const janitorInterval = time.Minute

// ServerMode runs the engine behind the HTTP API and websocket hub. The
// auto-settler runs beside it when market.auto_settle is set.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	engine, err := a.startEngine(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	var settleTrigger chan<- struct{}
	if a.cfg.Market.AutoSettle {
		settleTrigger = a.startSettler(ctx, g, deps, engine)
	} else {
		a.logger.InfoContext(ctx, "market.auto_settle is false; ended auctions wait for a manual finalize")
	}
	a.startHTTPServer(ctx, g, deps, engine, settleTrigger)

	return g.Wait()
}

// ArchiveMode exports settlements and audit rows older than the retention
// window to object storage once, then returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not configured")
	}
	runner := service.NewArchiveRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return nil
}

// FullMode runs everything: the API, the auto-settler, and the scheduled
// archive job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	if deps.Archiver == nil {
		return fmt.Errorf("full mode: archiver not configured")
	}

	g, ctx := errgroup.WithContext(ctx)

	engine, err := a.startEngine(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if !a.cfg.Market.AutoSettle {
		a.logger.WarnContext(ctx, "market.auto_settle is false, but full mode runs the settler")
	}
	settleTrigger := a.startSettler(ctx, g, deps, engine)
	a.startHTTPServer(ctx, g, deps, engine, settleTrigger)

	runner := service.NewArchiveRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		return runner.RunCron(ctx, a.cfg.Archive.Cron)
	})

	return g.Wait()
}

// startEngine builds the engine, restores its persisted state, and hooks the
// event publisher and notification queue onto it.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*market.Engine, error) {
	engine := market.NewEngine(market.Config{
		Address:            a.cfg.EngineAddress(),
		Operators:          a.cfg.OperatorAddresses(),
		MaxAuctionDuration: a.cfg.Market.MaxAuctionDuration.Duration,
		MinIncrementPct:    a.cfg.Market.MinIncrementPct,
	}, deps.Assets, deps.Payments, a.logger)
	engine.SetStateStore(deps.StateStore)

	publisher := service.NewEventPublisher(deps.SignalBus, deps.AuditStore, deps.Settlements, a.logger)
	publisher.SetNotifier(deps.Notifier)
	engine.SetEventSink(publisher)

	if err := engine.Restore(ctx); err != nil {
		return nil, err
	}

	g.Go(func() error {
		return deps.Notifier.Run(ctx)
	})

	a.logger.InfoContext(ctx, "engine ready",
		slog.String("engine_address", engine.Address().Hex()),
		slog.Int("operators", len(a.cfg.Market.Operators)),
		slog.Bool("paused", engine.Paused()),
	)
	return engine, nil
}

// startSettler runs the auto-settler and returns the channel that requests
// an immediate sweep.
func (a *App) startSettler(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *market.Engine) chan<- struct{} {
	trigger := make(chan struct{}, 1)
	settler := service.NewSettler(engine, a.cfg.SettlerAddress(), a.cfg.Market.SettleInterval.Duration, a.logger)
	settler.SetLockManager(deps.LockManager)
	settler.SetTrigger(trigger)
	g.Go(func() error {
		return settler.Run(ctx)
	})
	return trigger
}

// startHTTPServer adds the HTTP server, the websocket hub, and the janitor
// that prunes request-auth state to the errgroup. The server is shut down
// gracefully when the context is cancelled.
// settleTrigger may be nil when the settler is not running.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *market.Engine, settleTrigger chan<- struct{}) {
	verifier := crypto.NewVerifier(a.cfg.Server.SignatureTTL.Duration)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		Paused:         engine.Paused,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		Status: handler.StatusInfo{
			Mode:               a.cfg.Mode,
			EngineAddress:      engine.Address(),
			Operators:          a.cfg.OperatorAddresses(),
			AutoSettle:         settleTrigger != nil,
			MaxAuctionDuration: a.cfg.Market.MaxAuctionDuration.String(),
			MinIncrementPct:    a.cfg.Market.MinIncrementPct,
		},
	}, server.Deps{
		Market:        engine,
		Settlements:   deps.Settlements,
		Verifier:      verifier,
		Limiter:       deps.RateLimiter,
		Hub:           hub,
		SettleTrigger: settleTrigger,
	}, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				verifier.Cleanup()
				if deps.sweepLimiter != nil {
					deps.sweepLimiter(a.cfg.Server.RateWindow.Duration)
				}
			}
		}
	})
}
