package database

import (
	"io/fs"
	"testing"
	"testing/fstest"
)

var testMigrations = fstest.MapFS{
	"testdata/20260301_090000_create_receivers.up.sql": &fstest.MapFile{
		Data: []byte("CREATE TABLE test_receivers (id TEXT PRIMARY KEY, label TEXT NOT NULL DEFAULT '');"),
	},
	"testdata/20260301_090000_create_receivers.down.sql": &fstest.MapFile{
		Data: []byte("DROP TABLE test_receivers;"),
	},
	"testdata/20260302_100000_add_sender_column.up.sql": &fstest.MapFile{
		Data: []byte("ALTER TABLE test_receivers ADD COLUMN sender_id TEXT;"),
	},
	"testdata/README.txt": &fstest.MapFile{Data: []byte("ignored")},
}

// useMigrations registers fsys for the duration of the test.
func useMigrations(t *testing.T, fsys fs.FS, dir string) {
	t.Helper()
	prev := source
	RegisterMigrations(fsys, dir)
	t.Cleanup(func() { source = prev })
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(t.Context(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestLoadMigrations(t *testing.T) {
	got, err := LoadMigrations(testMigrations, "testdata")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first, second := got[0], got[1]
	if first.Version != "20260301_090000" || first.Name != "create_receivers" {
		t.Errorf("first = %+v", first)
	}
	if first.Down == "" {
		t.Error("first migration lost its down SQL")
	}
	if second.Version != "20260302_100000" || second.Down != "" {
		t.Errorf("second = %+v", second)
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "orphan down",
			fsys: fstest.MapFS{
				"m/20260301_090000_x.down.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
			},
		},
		{
			name: "missing directory",
			fsys: fstest.MapFS{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMigrations(tt.fsys, "m"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMigrations_IgnoresUnmatchedNames(t *testing.T) {
	fsys := fstest.MapFS{
		"invalid.up.sql":                   &fstest.MapFile{Data: []byte("x")},
		"20260118_120000_no_direction.sql": &fstest.MapFile{Data: []byte("x")},
		"notes.md":                         &fstest.MapFile{Data: []byte("x")},
	}
	got, err := LoadMigrations(fsys, ".")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d migrations, want 0", len(got))
	}
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations, "testdata")
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_receivers") {
		t.Fatal("test_receivers not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_receivers (id, sender_id) VALUES ('r1', 's1')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 || len(status.Pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(status.Applied), len(status.Pending))
	}
	if status.Current() != "20260302_100000" {
		t.Errorf("Current() = %q", status.Current())
	}
	if status.Applied[0].Name != "create_receivers" || status.Applied[0].AppliedAt.IsZero() {
		t.Errorf("applied[0] = %+v", status.Applied[0])
	}

	// Idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_NothingRegistered(t *testing.T) {
	useMigrations(t, nil, "")
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	status, err := db.MigrationStatus(t.Context())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Current() != "" || len(status.Pending) != 0 {
		t.Errorf("status = %+v, want empty", status)
	}
}

func TestMigrate_FailureResumes(t *testing.T) {
	broken := fstest.MapFS{
		"m/20260301_090000_ok.up.sql":     &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/20260302_090000_broken.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE b (;")},
	}
	useMigrations(t, broken, "m")
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() should fail on broken SQL")
	}
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Current() != "20260301_090000" || len(status.Pending) != 1 {
		t.Fatalf("status = %+v, want first applied and one pending", status)
	}

	broken["m/20260302_090000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id TEXT);")}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
	if !tableExists(t, db, "b") {
		t.Error("table b not created after re-run")
	}
}

func TestRollback(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260301_090000_a.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/20260301_090000_a.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE a;")},
		"m/20260302_090000_b.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE b (id TEXT);")},
		"m/20260302_090000_b.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE b;")},
	}
	useMigrations(t, fsys, "m")
	db := openTestDB(t)
	ctx := t.Context()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	n, err := db.Rollback(ctx, 1)
	if err != nil || n != 1 {
		t.Fatalf("Rollback(1) = %d, %v", n, err)
	}
	if tableExists(t, db, "b") || !tableExists(t, db, "a") {
		t.Error("Rollback(1) should drop only the newest table")
	}

	n, err = db.Rollback(ctx, 5)
	if err != nil || n != 1 {
		t.Fatalf("Rollback(5) = %d, %v, want 1 remaining", n, err)
	}
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Current() != "" || len(status.Pending) != 2 {
		t.Errorf("status = %+v, want everything pending", status)
	}
}

func TestRollback_NoDownSQL(t *testing.T) {
	useMigrations(t, testMigrations, "testdata")
	db := openTestDB(t)

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	n, err := db.Rollback(t.Context(), 1)
	if err == nil || n != 0 {
		t.Errorf("Rollback() = %d, %v, want error for migration without down SQL", n, err)
	}
}
