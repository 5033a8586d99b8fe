package datasource

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		user     string
		password string
		dbname   string
		expected string
	}{
		{
			name:     "Basic connection without password",
			host:     "localhost",
			port:     5432,
			user:     "postgres",
			password: "",
			dbname:   "shard_0",
			expected: "host=localhost port=5432 user=postgres dbname=shard_0 sslmode=disable statement_timeout=5000",
		},
		{
			name:     "Connection with password",
			host:     "127.0.0.1",
			port:     5433,
			user:     "admin",
			password: "secret",
			dbname:   "shard_1",
			expected: "host=127.0.0.1 port=5433 user=admin dbname=shard_1 sslmode=disable statement_timeout=5000 password=secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildPostgresDSN(tt.host, tt.port, tt.user, tt.password, tt.dbname)
			if result != tt.expected {
				t.Errorf("BuildPostgresDSN() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestConfig_ConnString(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{"dsn wins", Config{Driver: DriverPgx, DSN: "postgres://db/shard", Host: "ignored"}, "postgres://db/shard"},
		{"host fields", Config{Driver: DriverPostgres, Host: "db0", User: "app", DBName: "shard_0"},
			"host=db0 port=5432 user=app dbname=shard_0 sslmode=disable statement_timeout=5000"},
		{"pgx with port and password", Config{Driver: DriverPgx, Host: "db1", Port: 6432, User: "app", Password: "pw", DBName: "shard_1"},
			"host=db1 port=6432 user=app dbname=shard_1 sslmode=disable statement_timeout=5000 password=pw"},
		{"sqlite needs dsn", Config{Driver: DriverSQLite, Host: "db0"}, ""},
		{"nothing set", Config{Driver: DriverPostgres}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnString(); got != tt.expected {
				t.Errorf("ConnString() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSupportedDriver(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverPgx, DriverSQLite} {
		if !SupportedDriver(driver) {
			t.Errorf("Expected driver %s to be supported", driver)
		}
	}
	if SupportedDriver("oracle") {
		t.Error("Expected driver oracle to be unsupported")
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mssql", DSN: "x"})
	if err == nil {
		t.Fatal("Expected error for unsupported driver, got nil")
	}
}

func openSQLiteRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	registry := NewRegistry()
	dir := t.TempDir()
	for _, name := range names {
		cfg := Config{Driver: DriverSQLite, DSN: filepath.Join(dir, name+".db")}
		if err := registry.Open(name, cfg); err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}
	}
	t.Cleanup(func() { registry.Close() })
	return registry
}

func TestRegistry_OpenAndGet(t *testing.T) {
	registry := openSQLiteRegistry(t, "ds_1", "ds_0")

	if registry.Len() != 2 {
		t.Errorf("Expected 2 data sources, got %d", registry.Len())
	}

	names := registry.Names()
	if len(names) != 2 || names[0] != "ds_0" || names[1] != "ds_1" {
		t.Errorf("Expected sorted names [ds_0 ds_1], got %v", names)
	}

	db, err := registry.Get("ds_0")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if db == nil {
		t.Fatal("Expected database, got nil")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("missing")
	if err == nil {
		t.Fatal("Expected error for unknown data source, got nil")
	}

	var shardErr *ShardError
	if !errors.As(err, &shardErr) {
		t.Fatalf("Expected ShardError, got %T", err)
	}
	if shardErr.Code != ErrorCodeUnknownDataSource {
		t.Errorf("Expected code %s, got %s", ErrorCodeUnknownDataSource, shardErr.Code)
	}
	if shardErr.DataSource != "missing" {
		t.Errorf("Expected data source 'missing', got %q", shardErr.DataSource)
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	registry := openSQLiteRegistry(t, "ds_0")
	db, _ := registry.Get("ds_0")

	if err := registry.Add("ds_0", db); err == nil {
		t.Error("Expected error registering a duplicate name")
	}
	if err := registry.Add("", db); err == nil {
		t.Error("Expected error registering an empty name")
	}
	if err := registry.Add("ds_9", nil); err == nil {
		t.Error("Expected error registering a nil database")
	}
}

func TestRegistry_PingAll(t *testing.T) {
	registry := openSQLiteRegistry(t, "ds_0", "ds_1", "ds_2")

	if err := registry.PingAll(context.Background()); err != nil {
		t.Fatalf("Expected all data sources to respond, got: %v", err)
	}
}

func TestRegistry_PingAll_ClosedSource(t *testing.T) {
	registry := openSQLiteRegistry(t, "ds_0", "ds_1")
	db, _ := registry.Get("ds_1")
	db.Close()

	err := registry.PingAll(context.Background())
	if err == nil {
		t.Fatal("Expected error pinging a closed data source, got nil")
	}

	var shardErr *ShardError
	if !errors.As(err, &shardErr) {
		t.Fatalf("Expected ShardError, got %T", err)
	}
	if shardErr.DataSource != "ds_1" {
		t.Errorf("Expected failure attributed to ds_1, got %q", shardErr.DataSource)
	}
}

func TestRegistry_Close(t *testing.T) {
	registry := openSQLiteRegistry(t, "ds_0")

	if err := registry.Close(); err != nil {
		t.Fatalf("Expected no error closing, got: %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("Expected empty registry after close, got %d", registry.Len())
	}
}
