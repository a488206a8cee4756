package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"registrar/internal/platform/config"
	"registrar/internal/platform/httpserver"
	"registrar/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/registry.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := httpserver.New(cfg.Server.Addr, app.router)
	log.Info("starting registrar",
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Backend,
		"max_owned", cfg.Registry.MaxOwned,
		"event_sinks", app.sinks,
	)
	if cfg.UsesDevSigningKey() {
		log.Warn("using development JWT signing key; set JWT_SIGNING_KEY in production")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return app.publisher.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("registrar stopped", "events_dropped", app.publisher.Dropped())
	return nil
}
