// Package executor runs execution groups concurrently on a bounded worker
// pool and collects their outputs in routing order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/metrics"
)

// PoolMode selects how the worker pool is sized
type PoolMode string

const (
	PoolModeFixed    PoolMode = "fixed"
	PoolModeResource PoolMode = "resource"
	PoolModeDefault  PoolMode = "default"
)

var numCPU = runtime.NumCPU

// PoolSize returns the worker count for mode. fixed is used by PoolModeFixed,
// resources (usually the data source count) by PoolModeResource.
func PoolSize(mode PoolMode, fixed, resources int) (int, error) {
	cores := 2*numCPU() - 1
	switch mode {
	case PoolModeFixed:
		if fixed <= 0 {
			return 0, fmt.Errorf("fixed pool size must be positive, got %d", fixed)
		}
		return fixed, nil
	case PoolModeResource:
		return max(1, min(cores, resources)), nil
	case PoolModeDefault, "":
		return cores, nil
	}
	return 0, fmt.Errorf("unknown pool mode %q", mode)
}

// GroupCallback turns one group's units into outputs, one or more per unit
type GroupCallback[O any] func(ctx context.Context, group Group) ([]O, error)

// Engine owns the worker pool. It holds no per-execution state and may run
// many executions at once.
type Engine struct {
	pool    *ants.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine starts a pool of size workers. m may be nil.
func NewEngine(size int, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.Error("execution worker panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Engine{pool: pool, logger: logger, metrics: m}, nil
}

// Size returns the pool capacity
func (e *Engine) Size() int { return e.pool.Cap() }

// Close releases the worker pool. No execution may be in flight.
func (e *Engine) Close() {
	e.pool.Release()
}

// Execute runs every group with callback. See ExecuteWith.
func Execute[O any](ctx context.Context, e *Engine, gc GroupContext, callback GroupCallback[O]) ([]O, error) {
	return ExecuteWith(ctx, e, gc, nil, callback, false)
}

// ExecuteWith runs every group of gc and returns the outputs flattened in
// group order, regardless of completion order.
//
// When serial is false the first group runs on the calling goroutine with
// first (or callback when first is nil) before anything is dispatched; a
// failure there returns immediately. The remaining groups run on the pool.
// When serial is true every group runs on the calling goroutine in order.
//
// A *datasource.ShardError from a group is returned as is once every
// dispatched group has finished. Other failures, panics included, are
// wrapped as UNKNOWN_EXECUTION. Cancelling ctx while waiting fails the whole
// call with QUERY_CANCELED.
func ExecuteWith[O any](ctx context.Context, e *Engine, gc GroupContext, first, callback GroupCallback[O], serial bool) (out []O, err error) {
	if len(gc.Groups) == 0 {
		return []O{}, nil
	}
	if first == nil {
		first = callback
	}

	start := time.Now()
	defer func() {
		code := ""
		var shardErr *datasource.ShardError
		if errors.As(err, &shardErr) {
			code = shardErr.Code
		}
		e.metrics.ObserveExecute(len(gc.Groups), time.Since(start), code)
	}()

	e.logger.Debug("executing groups",
		"context", gc.ID,
		"groups", len(gc.Groups),
		"serial", serial,
		"pool_size", e.Size(),
	)

	if serial {
		return executeSerial(ctx, e, gc, first, callback)
	}

	out, err = runGroup(ctx, gc.Groups[0], first)
	if err != nil {
		e.logFailure(gc, 0, err)
		return nil, classify(err)
	}
	if len(gc.Groups) == 1 {
		return out, nil
	}

	rest, err := executeAsync(ctx, e, gc, callback)
	if err != nil {
		return nil, err
	}
	for _, outputs := range rest {
		out = append(out, outputs...)
	}
	return out, nil
}

func (e *Engine) logFailure(gc GroupContext, index int, err error) {
	e.logger.Error("execution group failed",
		"context", gc.ID,
		"group", index,
		"data_source", gc.Groups[index].DataSource(),
		"error", err,
	)
}

type slot[O any] struct {
	out []O
	err error
}

// executeAsync submits groups[1:] and waits for all of them
func executeAsync[O any](ctx context.Context, e *Engine, gc GroupContext, callback GroupCallback[O]) ([][]O, error) {
	groups := gc.Groups[1:]
	slots := make([]slot[O], len(groups))
	var wg sync.WaitGroup

	for i, group := range groups {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out, err := runGroup(ctx, group, callback)
			slots[i] = slot[O]{out: out, err: err}
		}
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			slots[i] = slot[O]{err: fmt.Errorf("failed to submit execution group: %w", err)}
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("execution wait interrupted", "context", gc.ID, "error", ctx.Err())
		return nil, datasource.NewShardError(
			datasource.ErrorCodeQueryCanceled,
			"Query canceled",
			"Execution was canceled while waiting for shard results",
		)
	}

	results := make([][]O, len(slots))
	var firstErr error
	for i, s := range slots {
		if s.err != nil {
			e.logFailure(gc, i+1, s.err)
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		results[i] = s.out
	}
	if firstErr != nil {
		return nil, classify(firstErr)
	}
	return results, nil
}

// executeSerial runs every group on the calling goroutine, stopping at the
// first failure
func executeSerial[O any](ctx context.Context, e *Engine, gc GroupContext, first, callback GroupCallback[O]) ([]O, error) {
	var out []O
	for i, group := range gc.Groups {
		cb := callback
		if i == 0 {
			cb = first
		}
		outputs, err := runGroup(ctx, group, cb)
		if err != nil {
			e.logFailure(gc, i, err)
			return nil, classify(err)
		}
		out = append(out, outputs...)
	}
	return out, nil
}

// runGroup invokes callback and turns a panic into an error
func runGroup[O any](ctx context.Context, group Group, callback GroupCallback[O]) (out []O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution group panicked: %v", r)
		}
	}()
	return callback(ctx, group)
}

// classify returns recognized shard errors unchanged and wraps the rest
func classify(err error) error {
	var shardErr *datasource.ShardError
	if errors.As(err, &shardErr) {
		return shardErr
	}
	return datasource.NewUnknownExecutionError(err)
}
