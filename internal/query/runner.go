package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/executor"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// DefaultTimeout bounds one unit in memory mode
var DefaultTimeout = 5 * time.Second

// ConnectionMode decides how shard rows reach the merge engine
type ConnectionMode string

const (
	// ModeMemory drains every unit into memory and releases its connection
	ModeMemory ConnectionMode = "memory"
	// ModeStream keeps single-unit groups open as driver cursors until the
	// session closes. Groups with more units share one connection and are
	// always loaded into memory.
	ModeStream ConnectionMode = "stream"
)

// ParseConnectionMode maps a configured name to its mode
func ParseConnectionMode(name string) (ConnectionMode, error) {
	switch ConnectionMode(name) {
	case ModeMemory, "":
		return ModeMemory, nil
	case ModeStream:
		return ModeStream, nil
	}
	return "", fmt.Errorf("unknown connection mode %q", name)
}

// Runner turns execution groups into shard results
type Runner struct {
	sources *datasource.Registry
	mode    ConnectionMode
	maxRows int
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a runner over the registered data sources. maxRows caps
// each memory-loaded unit; <= 0 disables the cap.
func NewRunner(sources *datasource.Registry, mode ConnectionMode, maxRows int, timeout time.Duration, logger *slog.Logger) *Runner {
	if mode == "" {
		mode = ModeMemory
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		sources: sources,
		mode:    mode,
		maxRows: maxRows,
		timeout: timeout,
		logger:  logger,
	}
}

// Mode returns the runner's connection mode
func (r *Runner) Mode() ConnectionMode { return r.mode }

// Session owns the open cursors of one logical statement. Its Query and
// Update methods are executor.GroupCallback values.
type Session struct {
	runner *Runner
	mu     sync.Mutex
	open   []*queryresult.StreamQueryResult
	closed bool
}

// NewSession starts a session. Close must be called once the merged result
// has been consumed.
func (r *Runner) NewSession() *Session {
	return &Session{runner: r}
}

// Query runs every unit of a query group and returns one result per unit
func (s *Session) Query(ctx context.Context, group executor.Group) ([]queryresult.QueryResult, error) {
	if err := ValidateGroup(group, KindQuery); err != nil {
		return nil, err
	}
	ds := group.DataSource()
	db, err := s.runner.sources.Get(ds)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stream := s.runner.mode == ModeStream && len(group.Units) == 1

	var results []queryresult.QueryResult
	if stream {
		res, err := s.openStream(ctx, db, group.Units[0])
		if err != nil {
			return nil, err
		}
		results = []queryresult.QueryResult{res}
	} else {
		results, err = s.loadGroup(ctx, db, group)
		if err != nil {
			return nil, err
		}
	}

	s.runner.logger.Debug("query group executed",
		"data_source", ds,
		"units", len(group.Units),
		"stream", stream,
		"elapsed", time.Since(start))
	return results, nil
}

// loadGroup runs the units one after another on a single connection
func (s *Session) loadGroup(ctx context.Context, db *sql.DB, group executor.Group) ([]queryresult.QueryResult, error) {
	ds := group.DataSource()
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, datasource.TranslateError(err).WithDataSource(ds)
	}
	defer conn.Close()

	results := make([]queryresult.QueryResult, 0, len(group.Units))
	for _, unit := range group.Units {
		res, err := s.loadUnit(ctx, conn, unit)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Session) loadUnit(ctx context.Context, conn *sql.Conn, unit executor.Unit) (*queryresult.MemoryQueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.runner.timeout)
	defer cancel()

	rows, err := conn.QueryContext(ctx, unit.SQL, unit.Params...)
	if err != nil {
		return nil, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}
	defer rows.Close()

	res, err := queryresult.Load(rows, s.runner.maxRows)
	if err != nil {
		return nil, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}
	return res, nil
}

func (s *Session) openStream(ctx context.Context, db *sql.DB, unit executor.Unit) (*queryresult.StreamQueryResult, error) {
	rows, err := db.QueryContext(ctx, unit.SQL, unit.Params...)
	if err != nil {
		return nil, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}

	res, err := queryresult.NewStreamQueryResult(rows)
	if err != nil {
		rows.Close()
		return nil, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		res.Close()
		return nil, datasource.NewShardError(
			datasource.ErrorCodeQueryCanceled,
			"Query execution canceled",
			"Session was closed before the shard answered",
		).WithDataSource(unit.DataSource)
	}
	s.open = append(s.open, res)
	return res, nil
}

// Update runs every unit of an update group and returns the affected row
// count of each
func (s *Session) Update(ctx context.Context, group executor.Group) ([]int64, error) {
	if err := ValidateGroup(group, KindUpdate); err != nil {
		return nil, err
	}
	ds := group.DataSource()
	db, err := s.runner.sources.Get(ds)
	if err != nil {
		return nil, err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, datasource.TranslateError(err).WithDataSource(ds)
	}
	defer conn.Close()

	counts := make([]int64, 0, len(group.Units))
	for _, unit := range group.Units {
		n, err := s.execUnit(ctx, conn, unit)
		if err != nil {
			return nil, err
		}
		counts = append(counts, n)
	}

	s.runner.logger.Debug("update group executed", "data_source", ds, "units", len(group.Units))
	return counts, nil
}

func (s *Session) execUnit(ctx context.Context, conn *sql.Conn, unit executor.Unit) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.runner.timeout)
	defer cancel()

	res, err := conn.ExecContext(ctx, unit.SQL, unit.Params...)
	if err != nil {
		return 0, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}
	return n, nil
}

// Close releases every open cursor and its connection. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	open := s.open
	s.open = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, res := range open {
		if err := res.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
