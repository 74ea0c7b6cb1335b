// Package database provides the SQLite connection used by the bridge's
// stores: the issued API key and the lock operation history.
//
// The connection runs in WAL mode with a busy timeout and a single writer.
// Schema changes are numbered .up.sql/.down.sql pairs applied in order and
// recorded in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
