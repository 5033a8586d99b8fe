package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/version"
)

// writeConfig creates n sqlite shards and a config file pointing at them
func writeConfig(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("log:\n  level: ERROR\nquery:\n  connection_mode: stream\ndatasources:\n")
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("ds_%d.db", i))
		db, err := sql.Open(datasource.DriverSQLite, path)
		if err != nil {
			t.Fatalf("Failed to open shard: %v", err)
		}
		if _, err := db.Exec("CREATE TABLE t_user (user_id INTEGER)"); err != nil {
			t.Fatalf("Failed to create table: %v", err)
		}
		if _, err := db.Exec("INSERT INTO t_user VALUES (?)", i); err != nil {
			t.Fatalf("Failed to insert: %v", err)
		}
		db.Close()
		fmt.Fprintf(&b, "  ds_%d:\n    driver: sqlite\n    dsn: %s\n", i, path)
	}

	cfgPath := filepath.Join(dir, "shardmerge.yaml")
	if err := os.WriteFile(cfgPath, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return cfgPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := run(t, "version")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, want := range []string{"ShardMerge Version Information", version.Get().Version, "Git Commit:", "Go Version:"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

func TestVersionCommand_Short(t *testing.T) {
	output, err := run(t, "version", "--short")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.TrimSpace(output) != version.Version {
		t.Errorf("Expected %q, got %q", version.Version, output)
	}
}

func TestVersionFlag(t *testing.T) {
	output, err := run(t, "--version")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if strings.TrimSpace(output) != version.Get().String() {
		t.Errorf("Expected %q, got %q", version.Get().String(), output)
	}
	if !strings.HasPrefix(output, version.Name+" "+version.Version) {
		t.Errorf("Expected output to start with name and version, got %q", output)
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	output, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	var info version.Info
	if err := json.Unmarshal([]byte(output), &info); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", output, err)
	}
	if info.Version != version.Version {
		t.Errorf("Expected version %s, got %s", version.Version, info.Version)
	}
}

func TestHelpListsCommands(t *testing.T) {
	output, err := run(t, "--help")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, want := range []string{"serve", "ping", "version", "--config"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in help output, got: %s", want, output)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "migrate"); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestPingCommand(t *testing.T) {
	output, err := run(t, "ping", "--config", writeConfig(t, 2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(output, "ds_0\tok") || !strings.Contains(output, "ds_1\tok") {
		t.Errorf("Expected both data sources ok, got: %s", output)
	}
}

func TestPingCommand_InvalidConfig(t *testing.T) {
	_, err := run(t, "ping")
	if err == nil || !strings.Contains(err.Error(), "at least one data source") {
		t.Errorf("Expected missing data source error, got: %v", err)
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	_, err := run(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestApp_RouterServesMergedQuery(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, 3))
	if err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}
	a, err := newApp(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	defer a.Close()

	body := `{
		"groups": [
			{"units": [{"sql": "SELECT user_id FROM t_user", "data_source": "ds_0"}]},
			{"units": [{"sql": "SELECT user_id FROM t_user", "data_source": "ds_1"}]},
			{"units": [{"sql": "SELECT user_id FROM t_user", "data_source": "ds_2"}]}
		],
		"statement": {"order_by": [{"index": 0, "descending": true}]}
	}`
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Rows [][]float64 `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Rows) != 3 || resp.Rows[0][0] != 2 || resp.Rows[2][0] != 0 {
		t.Errorf("Expected rows [[2] [1] [0]], got %v", resp.Rows)
	}
}
