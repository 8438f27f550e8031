// Package database opens the SQLite file that holds macros, run records
// and variables, and applies the schema migrations registered by the
// migrations package.
//
// Foreign keys are always on: macro_runs rows cascade with their macro.
// WAL mode is on by default so API reads do not block a run's writes.
//
//	db, err := database.OpenMigrated(ctx, database.Config{
//		Path:        cfg.Database.Path,
//		WALMode:     cfg.Database.WALMode,
//		BusyTimeout: cfg.Database.BusyTimeout,
//	})
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql (and
// .down.sql). They apply in version order, one transaction each. The up
// script's checksum is recorded, and editing an applied migration makes
// Migrate fail with ErrMigrationChanged.
package database
