// Package app provides the top-level application lifecycle for the round
// engine. It wires together all dependencies (stores, caches, the chain
// client, the price feed, and the round manager) and runs them until the
// context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/monarena/monarena/internal/config"
	"github.com/monarena/monarena/internal/service"
)

// engineLockTTL bounds how long a crashed process can hold the round-engine
// lock before another instance may take over.
const engineLockTTL = 5 * time.Minute

// serverShutdownTimeout bounds graceful drain of in-flight API requests.
const serverShutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, seeds the agent
// roster, starts the feed and the round manager, and blocks until the context
// is cancelled. On return all registered cleanup functions run.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("symbol", a.cfg.Feed.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Only one instance may drive rounds against the contract at a time.
	release, err := deps.LockManager.Acquire(ctx, "round-engine", engineLockTTL)
	if err != nil {
		return fmt.Errorf("app: acquire engine lock: %w", err)
	}
	a.closers = append(a.closers, release)

	if err := service.EnsureRoster(ctx, deps.AgentStore); err != nil {
		return fmt.Errorf("app: seed agent roster: %w", err)
	}

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- deps.Feed.Run(ctx)
	}()

	serverDone := make(chan error, 1)
	if deps.Server != nil {
		go func() {
			if err := deps.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("websocket hub stopped", slog.String("error", err.Error()))
			}
		}()
		go func() {
			serverDone <- deps.Server.Start()
		}()
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			if err := deps.Server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
			}
		})
	}

	if deps.Alerter != nil {
		go func() {
			if err := deps.Alerter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("round alerter stopped", slog.String("error", err.Error()))
			}
		}()
	}

	deps.Manager.Start(ctx)
	defer deps.Manager.Stop()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return nil
	case err := <-feedDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: price feed: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		return nil
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
