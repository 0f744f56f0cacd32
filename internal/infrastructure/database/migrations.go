package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"
)

// migrationFile matches YYYYMMDD_HHMMSS_description.(up|down).sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// source is the registered migration set. The top-level migrations
// package registers its embedded files at init.
var source struct {
	fsys fs.FS
	dir  string
}

// RegisterMigrations sets the filesystem and directory Migrate reads from.
// A nil fsys means there is nothing to migrate.
func RegisterMigrations(fsys fs.FS, dir string) {
	if dir == "" {
		dir = "."
	}
	source.fsys = fsys
	source.dir = dir
}

// Migration is one schema change with its optional rollback.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// MigrationStatus summarises the schema state.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Current returns the newest applied version, or "" for an empty schema.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

// LoadMigrations reads every migration in dir, oldest first. Files that do
// not follow the naming scheme are ignored; a down file without a matching
// up file is an error.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %q: %w", dir, err)
	}

	byVersion := make(map[string]*Migration)
	downs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, name, direction := m[1], m[2], m[3]

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		if direction == "down" {
			downs[version] = string(body)
			continue
		}
		if _, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s", version)
		}
		byVersion[version] = &Migration{Version: version, Name: name, Up: string(body)}
	}

	for version, down := range downs {
		mig, ok := byVersion[version]
		if !ok {
			return nil, fmt.Errorf("down migration %s has no up migration", version)
		}
		mig.Down = down
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies every pending migration in version order. Each migration
// runs in its own transaction; a failure leaves earlier ones committed and
// a re-run resumes at the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Name, time.Now().UnixMilli(),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts up to steps of the most recent migrations and returns
// how many were reverted. A migration without down SQL stops the rollback
// with an error.
func (db *DB) Rollback(ctx context.Context, steps int) (int, error) {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return 0, err
	}
	known, err := LoadMigrations(source.fsys, source.dir)
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}
	downs := make(map[string]string, len(known))
	for _, m := range known {
		downs[m.Version] = m.Down
	}

	reverted := 0
	for i := len(status.Applied) - 1; i >= 0 && reverted < steps; i-- {
		version := status.Applied[i].Version
		down := downs[version]
		if down == "" {
			return reverted, fmt.Errorf("migration %s has no down SQL", version)
		}

		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, down); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", version)
			return err
		})
		if err != nil {
			return reverted, fmt.Errorf("reverting migration %s: %w", version, err)
		}
		reverted++
	}
	return reverted, nil
}

// MigrationStatus reports applied and pending migrations, creating the
// bookkeeping table on first use.
func (db *DB) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	if _, err := db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating migrations table: %w", err)
	}

	rows, err := db.DB.QueryContext(ctx, "SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var status MigrationStatus
	done := make(map[string]bool)
	for rows.Next() {
		var (
			a  AppliedMigration
			ms int64
		)
		if err := rows.Scan(&a.Version, &a.Name, &ms); err != nil {
			return MigrationStatus{}, fmt.Errorf("scanning migration row: %w", err)
		}
		a.AppliedAt = time.UnixMilli(ms).UTC()
		status.Applied = append(status.Applied, a)
		done[a.Version] = true
	}
	if err := rows.Err(); err != nil {
		return MigrationStatus{}, fmt.Errorf("iterating migrations: %w", err)
	}

	known, err := LoadMigrations(source.fsys, source.dir)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("loading migrations: %w", err)
	}
	for _, m := range known {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // first error wins
		return err
	}
	return tx.Commit()
}
