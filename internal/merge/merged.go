// Package merge combines per-shard cursors into one logical cursor that
// preserves ORDER BY, GROUP BY, DISTINCT and pagination semantics.
//
// Everything here is single-threaded and pull-driven. Nothing in this package
// closes the shard cursors it reads.
package merge

import (
	"fmt"

	"github.com/vibesql/shardmerge/internal/codec"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// MergedResult is a forward-only cursor over merged rows. Column indexes are
// 0-based and values are raw driver values.
type MergedResult interface {
	Next() (bool, error)
	Value(index int) (any, error)
	WasNull() bool
}

type cursorState int

const (
	beforeFirst cursorState = iota
	positioned
	exhausted
)

func (s cursorState) String() string {
	switch s {
	case beforeFirst:
		return "BEFORE_FIRST"
	case positioned:
		return "POSITIONED"
	case exhausted:
		return "EXHAUSTED"
	}
	return fmt.Sprintf("cursorState(%d)", int(s))
}

// cursor tracks the shared state machine and the WasNull flag. Variants embed
// it and call advanced after each Next.
type cursor struct {
	state   cursorState
	wasNull bool
}

func (c *cursor) advanced(ok bool, err error) (bool, error) {
	if err != nil || !ok {
		c.state = exhausted
		return false, err
	}
	c.state = positioned
	return true, nil
}

func (c *cursor) checkPositioned() error {
	if c.state != positioned {
		return datasource.NewShardError(
			datasource.ErrorCodeInvalidCursorState,
			"Cursor is not positioned on a row",
			fmt.Sprintf("Merged result is %s", c.state),
		)
	}
	return nil
}

func (c *cursor) read(v any) (any, error) {
	c.wasNull = v == nil
	return v, nil
}

func (c *cursor) WasNull() bool { return c.wasNull }

func columnOutOfRange(index, count int) error {
	return datasource.NewShardError(
		datasource.ErrorCodeInvalidCursorState,
		"Column index out of range",
		fmt.Sprintf("Column %d requested, merged row has %d columns", index, count),
	)
}

// compareItem orders two values under one sort key. Nulls are placed by
// NullsFirst regardless of direction.
func compareItem(a, b any, item OrderByItem, caseSensitive bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if item.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if item.NullsFirst {
			return 1
		}
		return -1
	}
	c := codec.Compare(a, b, caseSensitive)
	if item.Descending {
		return -c
	}
	return c
}

// compareRows orders two rows by items. Row slices are indexed by column.
func compareRows(a, b []any, items []OrderByItem, caseSensitive []bool) int {
	for i, item := range items {
		if c := compareItem(a[item.Index], b[item.Index], item, caseSensitive[i]); c != 0 {
			return c
		}
	}
	return 0
}

// caseFlags returns, per item, whether its column compares case-sensitively
func caseFlags(md queryresult.MetaData, items []OrderByItem) []bool {
	flags := make([]bool, len(items))
	for i, item := range items {
		flags[i] = md.IsCaseSensitive(item.Index)
	}
	return flags
}

// readRow copies the current row of r
func readRow(r queryresult.QueryResult, columns int) ([]any, error) {
	row := make([]any, columns)
	for i := range row {
		v, err := r.Value(i)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// rowResult serves Value from a materialized current row
type rowResult struct {
	cursor
	row []any
}

func (r *rowResult) Value(index int) (any, error) {
	if err := r.checkPositioned(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(r.row) {
		return nil, columnOutOfRange(index, len(r.row))
	}
	return r.read(r.row[index])
}
