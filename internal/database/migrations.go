package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func newMigrationProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return provider, nil
}

// RunMigrations applies every pending migration found at the root of fsys
func RunMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, logger *zap.Logger) error {
	provider, err := newMigrationProvider(db, fsys)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	for _, result := range results {
		logger.Info("Migration applied",
			zap.Int64("version", result.Source.Version),
			zap.String("file", result.Source.Path),
			zap.Duration("duration", result.Duration),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Schema up to date", zap.Int64("version", version), zap.Int("applied", len(results)))
	return nil
}

// GetMigrationStatus logs the state of every known migration and returns the
// number still pending
func GetMigrationStatus(ctx context.Context, db *sql.DB, fsys fs.FS, logger *zap.Logger) (int, error) {
	provider, err := newMigrationProvider(db, fsys)
	if err != nil {
		return 0, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration status: %w", err)
	}

	pending := 0
	for _, status := range statuses {
		fields := []zap.Field{
			zap.Int64("version", status.Source.Version),
			zap.String("file", status.Source.Path),
			zap.String("state", string(status.State)),
		}
		if status.State == goose.StatePending {
			pending++
		} else {
			fields = append(fields, zap.Time("applied_at", status.AppliedAt))
		}
		logger.Info("Migration", fields...)
	}
	return pending, nil
}
