package repository

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/wb-go/wbf/zlog"
)

const migrationPath = "migrations"

// Migrate applies all pending schema migrations against the given database.
func Migrate(db *sql.DB) error {
	const op = "repository.migrate"

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.Up(db, migrationPath); err != nil {
		if err == goose.ErrNoNextVersion {
			zlog.Logger.Info().Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	zlog.Logger.Info().Msg("database migrations applied")
	return nil
}
