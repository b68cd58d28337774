package database

import "errors"

var (
	// ErrEmptyPath is returned by Open when no database path is configured.
	ErrEmptyPath = errors.New("database: path is empty")

	// ErrNoDownMigration is returned by MigrateDown when the latest migration
	// has no .down.sql file.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")

	// ErrMigrationMissing is returned by MigrateDown when an applied version
	// is not present in the migration source.
	ErrMigrationMissing = errors.New("database: applied migration not found in source")
)
