package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/server"
	"github.com/haasonsaas/nexus/internal/storage"
)

// applyPendingMigrations runs the full migration set before the server
// starts accepting connections, gated by database.run_migrations.
func applyPendingMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := server.OpenMigrationDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db)
	if err != nil {
		return err
	}
	mctx, cancel := context.WithTimeout(ctx, server.MigrationTimeout)
	defer cancel()
	applied, err := migrator.Up(mctx, 0)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("nexus: applied migrations", "count", len(applied), "ids", applied)
	}
	return nil
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging, debug)
	logger.Info("nexus: starting", "config", configPath, "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	if cfg.Database.RunMigrations && cfg.Database.URL != "" {
		if err := applyPendingMigrations(ctx, cfg, logger); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	srv, err := server.New(server.Config{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(runCtx)
	}()

	select {
	case <-runCtx.Done():
		logger.Info("nexus: shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func runHealthcheck(ctx context.Context, addr string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return fmt.Errorf("healthcheck: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: unhealthy status %d", resp.StatusCode)
	}
	fmt.Println("ok")
	return nil
}
