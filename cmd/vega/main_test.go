package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/vega-nmos-core/internal/nmos"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when history is enabled
// without a database path.
func TestRun_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: ""
connection:
  history_enabled: true
logging:
  level: error
  format: text
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, configPath)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want database.path validation error", err)
	}
}

// TestRun_StartupAndShutdown starts the service without optional
// components and stops it through the context.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	port := freePort(t)
	configPath := writeConfig(t, fmt.Sprintf(`
database:
  path: %q
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: text
api:
  host: "127.0.0.1"
  port: %d
`, filepath.Join(tmpDir, "vega.db"), port))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, configPath) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		select {
		case err := <-errc:
			cancel()
			t.Fatalf("run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("API never became healthy")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("run() error = %v, want clean shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestGetConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{name: "default", want: defaultConfigPath},
		{name: "env override", env: "/custom/path/config.yaml", want: "/custom/path/config.yaml"},
		{name: "flag wins", flag: "/flag/config.yaml", env: "/custom/path/config.yaml", want: "/flag/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VEGA_CONFIG", tt.env)
			if got := getConfigPath(tt.flag); got != tt.want {
				t.Errorf("getConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "vega "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestDiscoverCommand_JSON(t *testing.T) {
	reg := newQueryAPI(t)

	out, err := execute(t, "discover", "--registry", reg)
	if err != nil {
		t.Fatalf("discover error = %v", err)
	}

	var snap resource.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(snap.Nodes) != 1 || snap.Nodes[0].ID() != "node-1" {
		t.Errorf("nodes = %v", snap.Nodes)
	}
	if len(snap.Receivers) != 1 || snap.Receivers[0].DeviceID() != "device-1" {
		t.Errorf("receivers = %v", snap.Receivers)
	}
	if snap.Flows == nil || len(snap.Flows) != 0 {
		t.Errorf("flows = %v, want empty list", snap.Flows)
	}
}

func TestDiscoverCommand_YAML(t *testing.T) {
	reg := newQueryAPI(t)

	out, err := execute(t, "discover", "--registry", reg, "--format", "yaml")
	if err != nil {
		t.Fatalf("discover error = %v", err)
	}
	for _, want := range []string{"nodes:", "id: node-1", "label: Studio A"} {
		if !strings.Contains(out, want) {
			t.Errorf("yaml output missing %q:\n%s", want, out)
		}
	}
}

func TestDiscoverCommand_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(failing.Close)

	t.Setenv("VEGA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "invalid format", args: []string{"discover", "--registry", "http://registry.test", "--format", "xml"}},
		{name: "no registry and no config", args: []string{"discover"}},
		{name: "upstream failure", args: []string{"discover", "--registry", failing.URL}, want: nmos.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ─── Helpers ────────────────────────────────────────────────────────

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

// newQueryAPI serves a single-page Query API and returns its base URL.
func newQueryAPI(t *testing.T) string {
	t.Helper()
	collections := map[string]string{
		"nodes":     `[{"id":"node-1","version":"1:0","label":"Studio A"}]`,
		"devices":   `[{"id":"device-1","version":"1:0","node_id":"node-1"}]`,
		"senders":   `[]`,
		"receivers": `[{"id":"rx-1","version":"1:0","device_id":"device-1"}]`,
		"flows":     `[]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := collections[strings.TrimPrefix(r.URL.Path, "/x-nmos/query/v1.3/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/x-nmos/query/v1.3"
}
