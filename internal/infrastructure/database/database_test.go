package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		rel     string
		wal     bool
		journal string
	}{
		{name: "wal mode", rel: "vega.db", wal: true, journal: "wal"},
		{name: "rollback journal", rel: "vega.db", wal: false, journal: "delete"},
		{name: "creates nested directory", rel: filepath.Join("data", "nested", "vega.db"), wal: true, journal: "wal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), tt.rel)

			db, err := Open(t.Context(), Config{Path: dbPath, WALMode: tt.wal, BusyTimeout: 5})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // test cleanup

			if _, err := os.Stat(dbPath); err != nil {
				t.Errorf("database file not created: %v", err)
			}
			if db.Path() != dbPath {
				t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
			}

			var mode string
			if err := db.QueryRowContext(t.Context(), "PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("PRAGMA journal_mode: %v", err)
			}
			if strings.ToLower(mode) != tt.journal {
				t.Errorf("journal_mode = %q, want %q", mode, tt.journal)
			}
		})
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(t.Context(), Config{}); !errors.Is(err, ErrNoPath) {
		t.Fatalf("Open() error = %v, want ErrNoPath", err)
	}
}

func TestConfig_DSN(t *testing.T) {
	got := Config{Path: "/var/lib/vega/vega.db", WALMode: true, BusyTimeout: 3}.dsn()
	for _, want := range []string{"file:/var/lib/vega/vega.db?", "_busy_timeout=3000", "_foreign_keys=on", "_journal_mode=WAL"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}

	if got := (Config{Path: "x.db"}).dsn(); strings.Contains(got, "_journal_mode") {
		t.Errorf("dsn() without WAL = %q", got)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() after Close() should fail")
	}

	var zero DB
	if err := zero.Close(); err != nil {
		t.Errorf("zero Close() error = %v", err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenMemory(t *testing.T) {
	ctx := t.Context()
	db, err := OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if db.Path() != ":memory:" {
		t.Errorf("Path() = %q, want :memory:", db.Path())
	}

	// Tables must survive across statements on the single pooled connection.
	if _, err := db.ExecContext(ctx, "CREATE TABLE receivers (id TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO receivers (id) VALUES (?)", "r1"); err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM receivers").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.DatabaseConfig{Path: "/var/lib/vega/vega.db", WALMode: true, BusyTimeout: 3})
	want := Config{Path: "/var/lib/vega/vega.db", WALMode: true, BusyTimeout: 3}
	if got != want {
		t.Errorf("FromConfig() = %+v, want %+v", got, want)
	}
}

// openTestDB opens a file-backed database closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.Context(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}
