package merge

import (
	"strconv"
	"strings"

	"github.com/vibesql/shardmerge/internal/codec"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// seenSet is shared by every shard cursor of one divider
type seenSet map[string]struct{}

// add reports whether key was new
func (s seenSet) add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func encodeKey(b *strings.Builder, v any, caseSensitive bool) {
	part := codec.Normalize(v, caseSensitive)
	b.WriteString(strconv.Itoa(len(part)))
	b.WriteByte(':')
	b.WriteString(part)
}

// DistinctQueryResult skips rows whose distinct columns were already produced
// by any shard of the same divider. Per-shard row order is kept.
type DistinctQueryResult struct {
	queryresult.QueryResult
	seen    seenSet
	columns []int
}

// DivideDistinct wraps every result so that rows repeated across shards
// are produced once. Empty columns means every column.
func DivideDistinct(results []queryresult.QueryResult, columns []int) []queryresult.QueryResult {
	seen := make(seenSet)
	divided := make([]queryresult.QueryResult, len(results))
	for i, r := range results {
		cols := columns
		if len(cols) == 0 {
			n := r.MetaData().ColumnCount()
			cols = make([]int, n)
			for j := range cols {
				cols[j] = j
			}
		}
		divided[i] = &DistinctQueryResult{QueryResult: r, seen: seen, columns: cols}
	}
	return divided
}

func (d *DistinctQueryResult) Next() (bool, error) {
	md := d.MetaData()
	for {
		ok, err := d.QueryResult.Next()
		if err != nil || !ok {
			return false, err
		}
		var b strings.Builder
		for _, index := range d.columns {
			v, err := d.QueryResult.Value(index)
			if err != nil {
				return false, err
			}
			encodeKey(&b, v, md.IsCaseSensitive(index))
		}
		if d.seen.add(b.String()) {
			return true, nil
		}
	}
}

// AggregationDistinctQueryResult hides repeated DISTINCT aggregate inputs.
// For every DISTINCT aggregate, a value already seen for the same group key
// reads as NULL so the aggregate ignores it. Rows are never dropped, which
// keeps non-distinct partial aggregates on the same row intact.
type AggregationDistinctQueryResult struct {
	queryresult.QueryResult
	seen    []seenSet
	items   []OrderByItem
	specs   []aggregation.Spec
	masked  map[int]bool
	wasNull bool
}

// DivideAggregationDistinct wraps every result so that DISTINCT aggregates
// see each value once per group across all shards.
func DivideAggregationDistinct(results []queryresult.QueryResult, groupBy GroupByContext) []queryresult.QueryResult {
	var specs []aggregation.Spec
	for _, spec := range groupBy.Aggregations {
		if spec.Distinct {
			specs = append(specs, spec)
		}
	}
	seen := make([]seenSet, len(specs))
	for i := range seen {
		seen[i] = make(seenSet)
	}

	divided := make([]queryresult.QueryResult, len(results))
	for i, r := range results {
		divided[i] = &AggregationDistinctQueryResult{
			QueryResult: r,
			seen:        seen,
			items:       groupBy.Items,
			specs:       specs,
			masked:      make(map[int]bool, len(specs)),
		}
	}
	return divided
}

func (d *AggregationDistinctQueryResult) Next() (bool, error) {
	ok, err := d.QueryResult.Next()
	if err != nil || !ok {
		return false, err
	}

	md := d.MetaData()
	var group strings.Builder
	for _, item := range d.items {
		v, err := d.QueryResult.Value(item.Index)
		if err != nil {
			return false, err
		}
		encodeKey(&group, v, md.IsCaseSensitive(item.Index))
	}
	prefix := group.String()

	clear(d.masked)
	for i, spec := range d.specs {
		v, err := d.QueryResult.Value(spec.Index)
		if err != nil {
			return false, err
		}
		if v == nil {
			continue
		}
		var b strings.Builder
		b.WriteString(prefix)
		encodeKey(&b, v, md.IsCaseSensitive(spec.Index))
		if !d.seen[i].add(b.String()) {
			d.masked[spec.Index] = true
		}
	}
	return true, nil
}

func (d *AggregationDistinctQueryResult) Value(index int) (any, error) {
	v, err := d.QueryResult.Value(index)
	if err != nil {
		return nil, err
	}
	if d.masked[index] {
		v = nil
	}
	d.wasNull = v == nil
	return v, nil
}

func (d *AggregationDistinctQueryResult) WasNull() bool { return d.wasNull }
