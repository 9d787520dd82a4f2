package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/config"
	"github.com/Veraticus/statement-reconciler/internal/storage"
)

// regexCacheSize bounds the compiled rule patterns kept per command.
const regexCacheSize = 1000

// app bundles what a command needs: resolved config and a migrated store.
type app struct {
	cfg   *config.Config
	store *storage.SQLiteStorage
	out   io.Writer
}

// openApp loads configuration and opens the store. The caller closes it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	store, err := initStorage(cmd.Context(), cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store, out: cmd.OutOrStdout()}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		common.LogError(err, "Failed to close storage", common.Fields{"path": a.store.Path()})
	}
}

func (a *app) println(args ...any) {
	if _, err := fmt.Fprintln(a.out, args...); err != nil {
		slog.Warn("Failed to write output", "error", err)
	}
}

// initStorage opens the database at dbPath and brings its schema up to date.
func initStorage(ctx context.Context, dbPath string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}
