// Package database opens the SQLite file that stores connection history.
//
// Only the record of connect, disconnect and state-query attempts is kept
// on disk. The discovered resource graph and the active connection cache
// live in memory and are rebuilt from the registry on every discover, so
// losing this file loses history and nothing else.
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	repo := connection.NewSQLiteHistoryRepository(db.DB)
//
// # Migrations
//
// Schema files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are registered with RegisterMigrations
// (the top-level migrations package does this from an embedded FS).
// Applied versions are tracked in schema_migrations; Rollback walks them
// newest first.
package database
