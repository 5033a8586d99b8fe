package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/executor"
	"github.com/vibesql/shardmerge/internal/merge"
	"github.com/vibesql/shardmerge/internal/metrics"
	"github.com/vibesql/shardmerge/internal/query"
)

const healthTimeout = 2 * time.Second

// HandlerOptions wires a Handler to the rest of the process
type HandlerOptions struct {
	Sources  *datasource.Registry
	Executor *executor.Engine
	Runner   *query.Runner
	Merger   *merge.Engine
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Dialect applies to pagination that names none
	Dialect merge.Dialect
	// MaxResultRows caps merged rows per response; <= 0 disables the cap
	MaxResultRows int
	// Timeout bounds one request end to end
	Timeout time.Duration
	// Serial forces every request onto the calling goroutine
	Serial bool
}

type Handler struct {
	opts HandlerOptions
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialect == "" {
		opts.Dialect = merge.DialectMySQL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = query.DefaultTimeout
	}
	return &Handler{opts: opts}
}

// HandleQuery runs a fan-out SELECT and returns the merged rows
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := requestLogger(r, h.opts.Logger)

	var req QueryRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, log, "Invalid query request", err)
		return
	}
	if err := requireGroups(req.Groups); err != nil {
		h.fail(w, log, "Invalid query request", err)
		return
	}
	stmt, err := req.Statement.Statement(h.opts.Dialect)
	if err != nil {
		h.fail(w, log, "Invalid statement shape", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	session := h.opts.Runner.NewSession()
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Failed to close shard cursors", "error", err)
		}
	}()

	gc := executor.GroupContext{ID: RequestID(r.Context()), Groups: req.Groups}
	results, err := executor.ExecuteWith(ctx, h.opts.Executor, gc, nil, session.Query, req.Serial || h.opts.Serial)
	if err != nil {
		h.fail(w, log, "Query execution failed", err)
		return
	}

	merged, err := h.opts.Merger.Merge(results, stmt)
	if err != nil {
		h.fail(w, log, "Merge failed", err)
		return
	}

	rows, err := collectRows(merged, h.opts.MaxResultRows)
	if err != nil {
		h.fail(w, log, "Reading merged rows failed", err)
		return
	}
	h.opts.Metrics.AddRows(len(rows))

	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	response := &QueryResponse{
		Columns:       merged.ColumnLabels(),
		Rows:          rows,
		RowCount:      len(rows),
		Strategy:      string(merged.Plan().Strategy),
		ExecutionTime: elapsed,
	}
	if err := WriteSuccess(w, response); err != nil {
		log.Error("Failed to write response", "error", err)
		return
	}

	log.Info("Query succeeded",
		"groups", len(req.Groups),
		"rows", len(rows),
		"strategy", response.Strategy,
		"elapsed_ms", elapsed)
}

// collectRows drains merged, failing once more than maxRows are produced
func collectRows(merged *merge.Result, maxRows int) ([][]any, error) {
	columns := len(merged.ColumnLabels())
	rows := [][]any{}
	for {
		ok, err := merged.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		if err := query.CheckRowLimit(len(rows), maxRows); err != nil {
			return nil, err
		}

		row := make([]any, columns)
		for i := range row {
			v, err := merged.Value(i)
			if err != nil {
				return nil, err
			}
			row[i] = jsonValue(v)
		}
		rows = append(rows, row)
	}
}

// HandleUpdate runs a fan-out DML statement and returns the summed count
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := requestLogger(r, h.opts.Logger)

	var req UpdateRequest
	if err := decodeRequest(r, &req); err != nil {
		h.fail(w, log, "Invalid update request", err)
		return
	}
	if err := requireGroups(req.Groups); err != nil {
		h.fail(w, log, "Invalid update request", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.Timeout)
	defer cancel()

	session := h.opts.Runner.NewSession()
	defer session.Close()

	gc := executor.GroupContext{ID: RequestID(r.Context()), Groups: req.Groups}
	counts, err := executor.ExecuteWith(ctx, h.opts.Executor, gc, nil, session.Update, req.Serial || h.opts.Serial)
	if err != nil {
		h.fail(w, log, "Update execution failed", err)
		return
	}

	total := merge.SumUpdateCounts(counts)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	if err := WriteSuccess(w, &QueryResponse{UpdateCount: &total, ExecutionTime: elapsed}); err != nil {
		log.Error("Failed to write response", "error", err)
		return
	}

	log.Info("Update succeeded", "groups", len(req.Groups), "updated", total, "elapsed_ms", elapsed)
}

// HandleHealth pings every data source
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{Status: "ok", DataSources: h.opts.Sources.Len()}
	if err := h.opts.Sources.PingAll(ctx); err != nil {
		shardErr := asShardError(err)
		requestLogger(r, h.opts.Logger).Warn("Health check failed", "error", shardErr)
		response.Status = "unavailable"
		response.Error = newErrorDetail(shardErr)
		WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	shardErr := asShardError(err)
	log.Error(msg,
		"code", shardErr.Code,
		"data_source", shardErr.DataSource,
		"error", shardErr)
	WriteError(w, shardErr)
}
