// Package database provides the SQLite connection used for registry snapshots.
//
// The simulator keeps all live state in memory. When persistence is enabled
// the registry is written here periodically and on shutdown, and reloaded on
// startup. The schema is applied from embedded migration files:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Applied versions are recorded in
// schema_migrations.
package database
