package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxOpenConnections = 5
	defaultMaxIdleConnections = 2
	connMaxLifetime           = 1 * time.Hour
	connMaxIdleTime           = 10 * time.Minute
)

// Supported database/sql driver names
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

const defaultPostgresPort = 5432

// Config describes one shard data source. Postgres sources may give the
// connection fields instead of a DSN.
type Config struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// ConnString returns DSN when set, otherwise a connection string built from
// the host fields for the postgres drivers. It is empty when neither is given.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Host == "" || (c.Driver != DriverPostgres && c.Driver != DriverPgx) {
		return ""
	}
	port := c.Port
	if port <= 0 {
		port = defaultPostgresPort
	}
	return BuildPostgresDSN(c.Host, port, c.User, c.Password, c.DBName)
}

// SupportedDriver reports whether the driver name can be opened
func SupportedDriver(driver string) bool {
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
		return true
	}
	return false
}

// Registry holds the connection pools of every shard, keyed by data source name
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*sql.DB
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*sql.DB)}
}

// Open opens a connection pool for cfg without verifying it
func Open(cfg Config) (*sql.DB, error) {
	if !SupportedDriver(cfg.Driver) {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxOpen := cfg.MaxOpen
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConnections
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConnections
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return db, nil
}

// Open opens and registers a data source
func (r *Registry) Open(name string, cfg Config) error {
	db, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("data source %s: %w", name, err)
	}
	if err := r.Add(name, db); err != nil {
		db.Close()
		return err
	}
	return nil
}

// Add registers an already opened pool. Names must be unique.
func (r *Registry) Add(name string, db *sql.DB) error {
	if name == "" {
		return fmt.Errorf("data source name is required")
	}
	if db == nil {
		return fmt.Errorf("data source %s: database is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("data source %s already registered", name)
	}
	r.sources[name] = db
	return nil
}

// Get returns the pool registered under name
func (r *Registry) Get(name string) (*sql.DB, error) {
	r.mu.RLock()
	db, ok := r.sources[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &ShardError{
			Code:       ErrorCodeUnknownDataSource,
			Message:    "Unknown data source",
			Detail:     fmt.Sprintf("No data source is registered under %q", name),
			DataSource: name,
		}
	}
	return db, nil
}

// Names returns the registered data source names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered data sources
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// PingAll verifies every data source concurrently and returns the first failure
func (r *Registry) PingAll(ctx context.Context) error {
	r.mu.RLock()
	sources := make(map[string]*sql.DB, len(r.sources))
	for name, db := range r.sources {
		sources[name] = db
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for name, db := range sources {
		g.Go(func() error {
			if err := db.PingContext(ctx); err != nil {
				return TranslateError(err).WithDataSource(name)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every registered pool
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, db := range r.sources {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close data source %s: %w", name, err)
		}
		delete(r.sources, name)
	}
	return firstErr
}

// BuildPostgresDSN constructs a lib/pq style connection string
func BuildPostgresDSN(host string, port int, user string, password string, dbname string) string {
	connStr := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable statement_timeout=5000",
		host, port, user, dbname)

	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}

	return connStr
}
