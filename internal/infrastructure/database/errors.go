package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrNoDownSQL is returned by MigrateDown when the latest migration
	// cannot be reverted.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
