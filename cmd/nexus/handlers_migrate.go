package main

import (
	"context"
	"fmt"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/server"
	"github.com/haasonsaas/nexus/internal/storage"
)

func runMigrateUp(ctx context.Context, configPath string, steps int) error {
	_, migrator, closeDB, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	mctx, cancel := context.WithTimeout(ctx, server.MigrationTimeout)
	defer cancel()
	applied, err := migrator.Up(mctx, steps)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if len(applied) == 0 {
		fmt.Println("no pending migrations")
		return nil
	}
	for _, id := range applied {
		fmt.Printf("applied %s\n", id)
	}
	return nil
}

func runMigrateDown(ctx context.Context, configPath string, steps int) error {
	_, migrator, closeDB, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	mctx, cancel := context.WithTimeout(ctx, server.MigrationTimeout)
	defer cancel()
	rolled, err := migrator.Down(mctx, steps)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if len(rolled) == 0 {
		fmt.Println("nothing to roll back")
		return nil
	}
	for _, id := range rolled {
		fmt.Printf("rolled back %s\n", id)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, configPath string) error {
	_, migrator, closeDB, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer closeDB()

	mctx, cancel := context.WithTimeout(ctx, server.MigrationTimeout)
	defer cancel()
	applied, pending, err := migrator.Status(mctx)
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	fmt.Printf("applied: %d\n", len(applied))
	for _, a := range applied {
		fmt.Printf("  %s (applied %s)\n", a.ID, a.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Printf("pending: %d\n", len(pending))
	for _, p := range pending {
		fmt.Printf("  %s\n", p.ID)
	}
	return nil
}

func openMigrator(configPath string) (*config.Config, *storage.Migrator, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := server.OpenMigrationDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	migrator, err := storage.NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("build migrator: %w", err)
	}
	return cfg, migrator, func() { _ = db.Close() }, nil
}
