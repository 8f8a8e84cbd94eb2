package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"DecideInbox/internal/activity"
	"DecideInbox/internal/config"
	"DecideInbox/internal/disclosure"
	"DecideInbox/internal/gateway"
	"DecideInbox/internal/inbox"
	"DecideInbox/internal/infrastructure/scheduler"
	"DecideInbox/internal/infrastructure/storage"
	"DecideInbox/internal/infrastructure/telegram"
	"DecideInbox/internal/ports"
	"DecideInbox/internal/registry"
	"DecideInbox/internal/server"
)

const shutdownGrace = 10 * time.Second

// Coordinator is the wired coordinating service.
type Coordinator struct {
	cfg        config.Coordinator
	store      ports.Store
	registry   *registry.Service
	reconciler *registry.Reconciler
	server     *server.Server
	logger     *slog.Logger
}

// OpenStore opens the configured persistence backend.
func OpenStore(ctx context.Context, cfg config.Coordinator) (ports.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		return storage.OpenSQLite(ctx, cfg.Storage.Path, cfg.Gateway.InboxCap)
	case config.StorageMemory:
		return storage.NewMemory(cfg.Gateway.InboxCap), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", config.ErrInvalid, cfg.Storage.Driver)
	}
}

// NewRegistry builds the registry service over store.
func NewRegistry(cfg config.Coordinator, store ports.WorkerStore, logger *slog.Logger) *registry.Service {
	return registry.New(store, registry.Settings{
		IdleAfter:    cfg.Registry.IdleAfter.Duration,
		OfflineAfter: cfg.Registry.OfflineAfter.Duration,
		ErrorHistory: cfg.Registry.ErrorHistory,
	}, time.Now, logger)
}

// NewCoordinator opens the store and wires every service behind the HTTP API.
func NewCoordinator(ctx context.Context, cfg config.Coordinator, version string, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry(cfg, store, logger.With("component", "registry"))
	machine := disclosure.NewMachine(store,
		disclosure.NewEnvCapabilities(cfg.Disclosure.Capabilities, nil),
		cfg.Disclosure.Location(), time.Now, logger.With("component", "disclosure"))
	feed := activity.NewFeed(cfg.Gateway.FeedCap)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier("", cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	gw := gateway.New(gateway.Deps{
		Workers:    reg,
		Dedup:      store,
		Inbox:      store,
		Disclosure: machine,
		Activity:   feed,
		Notifier:   notifier,
		Logger:     logger.With("component", "gateway"),
	}, cfg.Gateway.DedupWindow.Duration)

	srv := server.New(server.Services{
		Registry:   reg,
		Gateway:    gw,
		Inbox:      inbox.New(store, machine, time.Now, logger.With("component", "inbox")),
		Disclosure: machine,
		Feed:       feed,
	}, server.Options{
		WorkerToken:   cfg.Auth.WorkerToken,
		RatePerSecond: cfg.Auth.RatePerSecond,
		Burst:         cfg.Auth.Burst,
		Version:       version,
		Logger:        logger.With("component", "http"),
	})

	return &Coordinator{
		cfg:        cfg,
		store:      store,
		registry:   reg,
		reconciler: registry.NewReconciler(reg, scheduler.RealClock{}, cfg.Registry.ReconcileInterval.Duration),
		server:     srv,
		logger:     logger,
	}, nil
}

// Handler exposes the HTTP API.
func (c *Coordinator) Handler() http.Handler { return c.server }

// Run serves HTTP and runs the reconciler until ctx is cancelled, then shuts
// the listener down gracefully.
func (c *Coordinator) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              c.cfg.Listen,
		Handler:           c.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("coordinator listening", "addr", c.cfg.Listen, "storage", c.cfg.Storage.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return c.reconciler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the store.
func (c *Coordinator) Close() error {
	return c.store.Close()
}
