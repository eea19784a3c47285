package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"powerwatch-backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}
	ctx := context.Background()
	store, err := storage.NewStore(ctx, dsn, 1)
	if err != nil {
		logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	applied, err := store.Migrate(ctx, dir)
	for _, name := range applied {
		logger.Info("applied migration", slog.String("file", name))
	}
	if err != nil {
		logger.Error("migration failed", slog.String("dir", dir), slog.String("error", err.Error()))
		store.Close()
		os.Exit(1)
	}
	if len(applied) == 0 {
		logger.Info("schema up to date", slog.String("dir", dir))
		return
	}
	logger.Info("migrations complete", slog.String("applied", strings.Join(applied, ",")))
}
