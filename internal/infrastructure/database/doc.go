// Package database provides SQLite connectivity for the operation history.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - A single-connection pool matching SQLite's single writer
//   - Schema migrations read from an fs.FS (see the migrations package)
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600 after creation
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every NNN_name.up.sql should ship with a matching NNN_name.down.sql.
package database
