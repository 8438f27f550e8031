package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// ErrMigrationChanged is returned when an applied migration's SQL no
// longer matches the file it was applied from.
var ErrMigrationChanged = errors.New("applied migration has been modified")

// migrationSource is the filesystem migrations are read from. The
// migrations package registers its embedded files at init.
var migrationSource struct {
	fsys fs.FS
	dir  string
}

// RegisterMigrations sets the filesystem and directory that Migrate reads
// YYYYMMDD_HHMMSS_name.{up,down}.sql files from. A nil fsys disables
// migrations.
//
//	//go:embed *.sql
//	var files embed.FS
//
//	func init() { database.RegisterMigrations(files, ".") }
func RegisterMigrations(fsys fs.FS, dir string) {
	migrationSource.fsys = fsys
	migrationSource.dir = dir
}

// Migration is one schema change read from the migration source.
type Migration struct {
	// Version orders migrations: YYYYMMDD_HHMMSS from the filename.
	Version string

	// Name is the description part of the filename.
	Name string

	UpSQL   string
	DownSQL string
}

// Checksum identifies the up SQL so edits to applied files are detected.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationRecord is a row in the schema_migrations table.
type MigrationRecord struct {
	Version   string
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// MigrationStatus compares the migration source with the database.
type MigrationStatus struct {
	Applied []MigrationRecord
	Pending []Migration
}

// Current returns the version of the newest applied migration, or "" if
// none have been applied.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

// Migrate applies pending migrations oldest first.
//
// Each migration runs in its own transaction: when migration N fails,
// 1..N-1 stay committed and a later Migrate continues from N. Applied
// migrations whose up SQL has changed since they ran stop the process
// with ErrMigrationChanged before anything new is applied.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range status.Pending {
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recent migration. It is meant for
// development and tests.
func (db *DB) MigrateDown(ctx context.Context) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	latest := status.Current()
	if latest == "" {
		return nil
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	idx := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == latest })
	if idx < 0 {
		return fmt.Errorf("migration %s not found in source", latest)
	}
	m := migrations[idx]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest)
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
			return fmt.Errorf("removing migration record: %w", err)
		}
		return nil
	})
}

// MigrationStatus reports applied and pending migrations. The schema
// table must exist; Migrate creates it.
func (db *DB) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("loading migrations: %w", err)
	}

	byVersion := make(map[string]MigrationRecord, len(applied))
	for _, r := range applied {
		byVersion[r.Version] = r
	}

	status := MigrationStatus{Applied: applied}
	for _, m := range migrations {
		rec, ok := byVersion[m.Version]
		if !ok {
			status.Pending = append(status.Pending, m)
			continue
		}
		// Rows written before checksums were recorded have none.
		if rec.Checksum != "" && rec.Checksum != m.Checksum() {
			return MigrationStatus{}, fmt.Errorf("%w: %s (%s)", ErrMigrationChanged, m.Version, m.Name)
		}
	}
	return status, nil
}

// SchemaVersion returns the newest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (string, error) {
	var version sql.NullString
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return version.String, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			checksum   TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.DB.QueryContext(ctx,
		"SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			r         MigrationRecord
			appliedAt string
		)
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // written by applyMigration
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			m.Version, m.Name, m.Checksum(), time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// migrationFile is a parsed migration filename.
type migrationFile struct {
	version string
	name    string
	up      bool
}

// parseMigrationFilename splits YYYYMMDD_HHMMSS_name.{up,down}.sql.
func parseMigrationFilename(filename string) (migrationFile, bool) {
	base, ok := strings.CutSuffix(filename, ".sql")
	if !ok {
		return migrationFile{}, false
	}

	var f migrationFile
	if b, up := strings.CutSuffix(base, ".up"); up {
		base, f.up = b, true
	} else if b, down := strings.CutSuffix(base, ".down"); down {
		base = b
	} else {
		return migrationFile{}, false
	}

	date, rest, ok := strings.Cut(base, "_")
	if !ok || date == "" {
		return migrationFile{}, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if clock == "" {
		return migrationFile{}, false
	}
	f.version = date + "_" + clock
	f.name = name
	return f, true
}

// loadMigrations reads every migration from the registered source,
// sorted by version. Down files without an up file are ignored.
func loadMigrations() ([]Migration, error) {
	fsys, dir := migrationSource.fsys, migrationSource.dir
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		if !f.up {
			downs[f.version] = string(data)
			continue
		}
		byVersion[f.version] = &Migration{Version: f.version, Name: f.name, UpSQL: string(data)}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		m.DownSQL = downs[version]
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return migrations, nil
}
