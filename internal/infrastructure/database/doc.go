// Package database provides SQLite connectivity for the bridge's status store.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only. Each has an .up.sql and a .down.sql file.
package database
