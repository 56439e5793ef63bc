package repository

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func newMigrator(databaseURL, migrationsPath string) (*migrate.Migrate, error) {
	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path %q: %w", migrationsPath, err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, logger *zap.Logger) {
	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		logger.Warn("migration source close failed", zap.Error(sourceErr))
	}
	if dbErr != nil {
		logger.Warn("migration database close failed", zap.Error(dbErr))
	}
}

// RunMigrations applies every pending up migration
func RunMigrations(databaseURL, migrationsPath string, logger *zap.Logger) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("database migrations up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("database migrations applied", zap.Uint("version", version))
	return nil
}

// RollbackMigration reverts the most recent migration
func RollbackMigration(databaseURL, migrationsPath string, logger *zap.Logger) error {
	m, err := newMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logger.Info("rolled back one migration")
	return nil
}
