package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationResult reports the schema version after a run.
type MigrationResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// RunMigrations applies every pending "up" migration found in source.
// It opens a short-lived database/sql connection through the pgx stdlib driver.
func RunMigrations(databaseURL string, source fs.FS, logger *slog.Logger) (*MigrationResult, error) {
	migrationDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection for migrations: %w", err)
	}
	defer func() {
		if cerr := migrationDB.Close(); cerr != nil {
			logger.Error("Error closing migration DB connection", slog.String("error", cerr.Error()))
		}
	}()
	if err := migrationDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create postgres driver instance for migrations: %w", err)
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("could not open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return nil, fmt.Errorf("failed to apply migrations: %w", upErr)
	}
	version, dirty, verErr := m.Version()
	if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to read migration version: %w", verErr)
	}
	// Closing the source and the database instance; migrationDB is closed by the defer.
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		return nil, fmt.Errorf("failed to close migrator: %w", errors.Join(sourceErr, dbErr))
	}

	result := &MigrationResult{Version: version, Dirty: dirty, Changed: !errors.Is(upErr, migrate.ErrNoChange)}
	if result.Changed {
		logger.Info("Database migrations applied successfully.", slog.Uint64("version", uint64(version)))
	} else {
		logger.Info("No new migrations to apply.", slog.Uint64("version", uint64(version)))
	}
	return result, nil
}
