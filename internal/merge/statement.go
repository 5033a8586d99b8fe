package merge

import (
	"fmt"
	"strings"

	"github.com/vibesql/shardmerge/internal/merge/aggregation"
)

// OrderByItem is one sort key. Items earlier in a list take priority.
type OrderByItem struct {
	Index      int  `json:"index"`
	Descending bool `json:"descending,omitempty"`
	NullsFirst bool `json:"nulls_first,omitempty"`
}

// GroupByContext is the GROUP BY clause of a bound statement
type GroupByContext struct {
	Items        []OrderByItem
	Aggregations []aggregation.Spec
	// OrderMatchesGroup is true when the ORDER BY items equal the group
	// items, so every shard already returns rows sorted by group key.
	OrderMatchesGroup bool
}

// NewGroupByContext builds a GroupByContext and derives OrderMatchesGroup
// from orderBy.
func NewGroupByContext(items []OrderByItem, aggregations []aggregation.Spec, orderBy []OrderByItem) GroupByContext {
	return GroupByContext{
		Items:             items,
		Aggregations:      aggregations,
		OrderMatchesGroup: orderMatchesGroup(items, orderBy),
	}
}

func orderMatchesGroup(group, order []OrderByItem) bool {
	if len(group) == 0 || len(group) != len(order) {
		return false
	}
	for i := range group {
		if group[i] != order[i] {
			return false
		}
	}
	return true
}

// Statement is the shape of a bound SELECT that drives strategy selection
type Statement struct {
	// Distinct marks SELECT DISTINCT. DistinctColumns narrows the
	// de-duplication key; empty means every column.
	Distinct        bool
	DistinctColumns []int
	OrderBy         []OrderByItem
	GroupBy         GroupByContext
	Pagination      *PaginationContext
}

// HasGroupBy reports whether the statement groups rows
func (s *Statement) HasGroupBy() bool { return len(s.GroupBy.Items) > 0 }

// HasAggregations reports whether any projection is an aggregate
func (s *Statement) HasAggregations() bool { return len(s.GroupBy.Aggregations) > 0 }

// HasAggregationDistinct reports whether any aggregate is DISTINCT
func (s *Statement) HasAggregationDistinct() bool {
	for _, spec := range s.GroupBy.Aggregations {
		if spec.Distinct {
			return true
		}
	}
	return false
}

// Dialect selects how pagination bounds are trimmed after merging
type Dialect string

const (
	DialectMySQL      Dialect = "mysql"
	DialectPostgreSQL Dialect = "postgresql"
	DialectSQL92      Dialect = "sql92"
	DialectOracle     Dialect = "oracle"
	DialectSQLServer  Dialect = "sqlserver"
)

// ParseDialect validates a dialect name, case-insensitively
func ParseDialect(name string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(name)))
	switch d {
	case DialectMySQL, DialectPostgreSQL, DialectSQL92, DialectOracle, DialectSQLServer:
		return d, nil
	}
	return "", fmt.Errorf("unknown dialect %q", name)
}

// PaginationContext is a normalized (offset, row count) window
type PaginationContext struct {
	Offset int64 `json:"offset"`
	// RowCount is nil when the statement has no upper bound
	RowCount *int64  `json:"row_count,omitempty"`
	Dialect  Dialect `json:"dialect"`
}

// NewLimitPagination binds LIMIT rowCount OFFSET offset. A negative rowCount
// means no LIMIT.
func NewLimitPagination(dialect Dialect, offset, rowCount int64) *PaginationContext {
	p := &PaginationContext{Offset: max(offset, 0), Dialect: dialect}
	if rowCount >= 0 {
		p.RowCount = &rowCount
	}
	return p
}

// NewRowNumberPagination binds "ROWNUM > offset AND ROWNUM <= bound" (or
// "< bound" when inclusive is false). A negative bound means no upper bound.
func NewRowNumberPagination(offset, bound int64, inclusive bool) *PaginationContext {
	p := &PaginationContext{Offset: max(offset, 0), Dialect: DialectOracle}
	if bound >= 0 {
		if !inclusive {
			bound--
		}
		p.RowCount = ptr(max(bound-p.Offset, 0))
	}
	return p
}

// NewTopPagination binds "TOP top ... WHERE ROW_NUMBER > offset". A negative
// top means no TOP.
func NewTopPagination(offset, top int64) *PaginationContext {
	p := &PaginationContext{Offset: max(offset, 0), Dialect: DialectSQLServer}
	if top >= 0 {
		p.RowCount = ptr(max(top-p.Offset, 0))
	}
	return p
}

// Bounded reports whether there is anything to trim
func (p *PaginationContext) Bounded() bool {
	return p != nil && (p.Offset > 0 || p.RowCount != nil)
}

func ptr[T any](v T) *T { return &v }
