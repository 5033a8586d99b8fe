package merge

import (
	"fmt"
	"log/slog"

	"github.com/vibesql/shardmerge/internal/codec"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/metrics"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// Strategy names the merged result chosen for a statement
type Strategy string

const (
	StrategyIterator      Strategy = "iterator"
	StrategyOrderBy       Strategy = "order_by"
	StrategyGroupByStream Strategy = "group_by_stream"
	StrategyGroupByMemory Strategy = "group_by_memory"
)

// Plan is the outcome of strategy selection
type Plan struct {
	Strategy Strategy
	// Divided is set when shard cursors were wrapped by a DISTINCT divider
	Divided bool
	// Dialect is set when a pagination decorator wraps the result
	Dialect Dialect
}

// Select picks the merge plan for shards result cursors of stmt
func Select(shards int, stmt *Statement) Plan {
	if shards == 1 {
		return Plan{Strategy: StrategyIterator}
	}

	var plan Plan
	plan.Divided = (stmt.Distinct && !stmt.HasGroupBy()) || stmt.HasAggregationDistinct()

	switch {
	case stmt.HasGroupBy() && stmt.GroupBy.OrderMatchesGroup:
		plan.Strategy = StrategyGroupByStream
	case stmt.HasGroupBy() || stmt.HasAggregations():
		plan.Strategy = StrategyGroupByMemory
	case len(stmt.OrderBy) > 0:
		plan.Strategy = StrategyOrderBy
	default:
		plan.Strategy = StrategyIterator
	}

	if shards > 1 && stmt.Pagination.Bounded() {
		p := stmt.Pagination
		if p.Dialect != DialectOracle || p.RowCount != nil {
			plan.Dialect = p.Dialect
		}
	}
	return plan
}

// Engine builds merged results. It is safe for concurrent use.
type Engine struct {
	codecs  *codec.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine returns an engine whose results decode through codecs. m may be nil.
func NewEngine(codecs *codec.Registry, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if codecs == nil {
		codecs = codec.NewDefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{codecs: codecs, logger: logger, metrics: m}
}

// Merge combines the shard results of stmt into one cursor. The plan is
// fixed here; Next never re-dispatches on statement shape.
func (e *Engine) Merge(results []queryresult.QueryResult, stmt *Statement) (*Result, error) {
	if stmt == nil {
		stmt = &Statement{}
	}
	if err := validateIndexes(results, stmt); err != nil {
		return nil, err
	}

	plan := Select(len(results), stmt)

	if plan.Divided {
		if stmt.HasAggregationDistinct() {
			results = DivideAggregationDistinct(results, stmt.GroupBy)
		} else {
			results = DivideDistinct(results, stmt.DistinctColumns)
		}
	}

	var merged MergedResult
	switch plan.Strategy {
	case StrategyGroupByStream:
		merged = NewGroupByStreamMergedResult(results, stmt.GroupBy)
	case StrategyGroupByMemory:
		merged = NewGroupByMemoryMergedResult(results, stmt.GroupBy, stmt.OrderBy)
	case StrategyOrderBy:
		merged = NewOrderByMergedResult(results, stmt.OrderBy)
	default:
		merged = NewIteratorMergedResult(results)
	}

	if plan.Dialect != "" {
		merged = decorate(merged, stmt.Pagination)
	}

	e.logger.Debug("merge strategy selected",
		"strategy", plan.Strategy,
		"shards", len(results),
		"divided", plan.Divided,
		"dialect", plan.Dialect,
	)
	e.metrics.IncMerge(string(plan.Strategy))

	return &Result{merged: merged, plan: plan, codecs: e.codecs, labels: columnLabels(results)}, nil
}

// validateIndexes rejects sort and aggregate columns outside the result
func validateIndexes(results []queryresult.QueryResult, stmt *Statement) error {
	if len(results) == 0 {
		return nil
	}
	n := results[0].MetaData().ColumnCount()
	check := func(index int) error {
		if index < 0 || index >= n {
			return datasource.NewShardError(
				datasource.ErrorCodeInvalidSQL,
				"Statement references a column outside the result",
				fmt.Sprintf("Column %d requested, result has %d columns", index, n),
			)
		}
		return nil
	}
	for _, items := range [][]OrderByItem{stmt.OrderBy, stmt.GroupBy.Items} {
		for _, item := range items {
			if err := check(item.Index); err != nil {
				return err
			}
		}
	}
	for _, spec := range stmt.GroupBy.Aggregations {
		if err := check(spec.Index); err != nil {
			return err
		}
		if spec.Kind == aggregation.Avg && !spec.Distinct && spec.CountIndex == spec.SumIndex {
			return datasource.NewShardError(
				datasource.ErrorCodeInvalidSQL,
				"AVG needs separate count and sum columns",
				fmt.Sprintf("Aggregation at column %d reads count and sum from column %d", spec.Index, spec.CountIndex),
			)
		}
		for _, index := range spec.Inputs() {
			if err := check(index); err != nil {
				return err
			}
		}
	}
	for _, index := range stmt.DistinctColumns {
		if err := check(index); err != nil {
			return err
		}
	}
	return nil
}

// Result is the cursor handed to the response layer
type Result struct {
	merged MergedResult
	plan   Plan
	codecs *codec.Registry
	labels []string
}

func columnLabels(results []queryresult.QueryResult) []string {
	if len(results) == 0 {
		return nil
	}
	md := results[0].MetaData()
	labels := make([]string, md.ColumnCount())
	for i := range labels {
		labels[i] = md.ColumnLabel(i)
	}
	return labels
}

func (r *Result) Next() (bool, error) { return r.merged.Next() }

func (r *Result) Value(index int) (any, error) { return r.merged.Value(index) }

// ValueAs reads a column converted to t
func (r *Result) ValueAs(index int, t codec.Type) (any, error) {
	v, err := r.merged.Value(index)
	if err != nil {
		return nil, err
	}
	out, err := r.codecs.Decode(v, t)
	if err != nil {
		return nil, datasource.NewShardError(datasource.ErrorCodeUnsupported, "Cannot convert column value", err.Error())
	}
	return out, nil
}

func (r *Result) WasNull() bool { return r.merged.WasNull() }

// ColumnLabels returns the labels of the merged columns, taken from the
// first shard result
func (r *Result) ColumnLabels() []string { return r.labels }

// Plan returns the strategy chosen for this result
func (r *Result) Plan() Plan { return r.plan }

// Unwrap returns the outermost merged result
func (r *Result) Unwrap() MergedResult { return r.merged }
