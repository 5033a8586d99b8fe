// Package queryresult holds the per-shard row cursors handed from the query
// runner to the merge engine.
package queryresult

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibesql/shardmerge/internal/datasource"
)

// QueryResult is a forward-only cursor over one execution unit's rows.
// Column indexes are 0-based.
type QueryResult interface {
	Next() (bool, error)
	Value(index int) (any, error)
	WasNull() bool
	MetaData() MetaData
}

// MetaData describes the columns of a QueryResult
type MetaData interface {
	ColumnCount() int
	ColumnLabel(index int) string
	IsCaseSensitive(index int) bool
}

// Column is one result column. Numeric marks exact numeric types (NUMERIC,
// DECIMAL, MONEY) whose drivers hand back text.
type Column struct {
	Label         string
	CaseSensitive bool
	Numeric       bool
}

// Columns implements MetaData over a fixed column list
type Columns []Column

func (c Columns) ColumnCount() int { return len(c) }

func (c Columns) ColumnLabel(index int) string {
	if index < 0 || index >= len(c) {
		return ""
	}
	return c[index].Label
}

func (c Columns) IsCaseSensitive(index int) bool {
	if index < 0 || index >= len(c) {
		return false
	}
	return c[index].CaseSensitive
}

// NewColumns builds case-insensitive columns from labels
func NewColumns(labels ...string) Columns {
	cols := make(Columns, len(labels))
	for i, label := range labels {
		cols[i] = Column{Label: label}
	}
	return cols
}

// columnsFromRows reads column labels and a case-sensitivity hint from the
// driver's reported database types.
func columnsFromRows(rows *sql.Rows) (Columns, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, datasource.TranslateError(err)
	}
	cols := make(Columns, len(types))
	for i, ct := range types {
		cols[i] = Column{
			Label:         ct.Name(),
			CaseSensitive: binaryType(ct.DatabaseTypeName()),
			Numeric:       numericType(ct.DatabaseTypeName()),
		}
	}
	return cols, nil
}

func binaryType(name string) bool {
	switch strings.ToUpper(name) {
	case "BYTEA", "BLOB", "BINARY", "VARBINARY":
		return true
	}
	return false
}

// numericType matches exact numeric type names, with or without a
// precision suffix such as DECIMAL(10,2)
func numericType(name string) bool {
	name = strings.ToUpper(name)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch strings.TrimSpace(name) {
	case "NUMERIC", "DECIMAL", "MONEY":
		return true
	}
	return false
}

var moneyReplacer = strings.NewReplacer("$", "", ",", "")

// normalizeRow replaces the text form of exact numeric values with
// decimal.Decimal, in place. Text that does not parse (NaN) is kept.
func (c Columns) normalizeRow(row []any) {
	for i, col := range c {
		if !col.Numeric || i >= len(row) {
			continue
		}
		row[i] = toNumeric(row[i])
	}
}

func toNumeric(v any) any {
	var s string
	switch x := v.(type) {
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return v
	}
	s = strings.TrimSpace(s)
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	if d, err := decimal.NewFromString(moneyReplacer.Replace(s)); err == nil {
		return d
	}
	return v
}

func errNotPositioned() error {
	return datasource.NewShardError(
		datasource.ErrorCodeInvalidCursorState,
		"Cursor is not positioned on a row",
		"Call Next and check that it returned true before reading values",
	)
}

func errColumnIndex(index, count int) error {
	return datasource.NewShardError(
		datasource.ErrorCodeInvalidCursorState,
		"Column index out of range",
		fmt.Sprintf("Column %d requested, result has %d columns", index, count),
	)
}
