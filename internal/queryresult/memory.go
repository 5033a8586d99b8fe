package queryresult

import (
	"database/sql"
	"fmt"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// MemoryQueryResult is a QueryResult whose rows are fully loaded
type MemoryQueryResult struct {
	columns Columns
	rows    [][]any
	pos     int
	wasNull bool
}

// NewMemoryQueryResult wraps already materialized rows. Every row must have
// len(columns) values. Text in Numeric columns is converted to decimals.
func NewMemoryQueryResult(columns Columns, rows [][]any) *MemoryQueryResult {
	for _, row := range rows {
		columns.normalizeRow(row)
	}
	return &MemoryQueryResult{columns: columns, rows: rows, pos: -1}
}

// Load drains rows into a MemoryQueryResult. The caller still owns rows and
// must close it. maxRows <= 0 means unbounded.
func Load(rows *sql.Rows, maxRows int) (*MemoryQueryResult, error) {
	columns, err := columnsFromRows(rows)
	if err != nil {
		return nil, err
	}

	var results [][]any
	for rows.Next() {
		if maxRows > 0 && len(results) >= maxRows {
			return nil, datasource.NewShardError(
				datasource.ErrorCodeResultTooLarge,
				"Result set too large",
				fmt.Sprintf("Shard returned more than the maximum allowed %d rows", maxRows),
			)
		}

		values, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, err
		}
		results = append(results, values)
	}

	if err := rows.Err(); err != nil {
		return nil, datasource.TranslateError(err)
	}

	return NewMemoryQueryResult(columns, results), nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	valuePtrs := make([]any, n)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, datasource.TranslateError(err)
	}
	return values, nil
}

func (r *MemoryQueryResult) Next() (bool, error) {
	if r.pos < len(r.rows) {
		r.pos++
	}
	return r.pos < len(r.rows), nil
}

func (r *MemoryQueryResult) Value(index int) (any, error) {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return nil, errNotPositioned()
	}
	row := r.rows[r.pos]
	if index < 0 || index >= len(row) {
		return nil, errColumnIndex(index, len(row))
	}
	v := row[index]
	r.wasNull = v == nil
	return v, nil
}

func (r *MemoryQueryResult) WasNull() bool { return r.wasNull }

func (r *MemoryQueryResult) MetaData() MetaData { return r.columns }

// Len returns the number of loaded rows
func (r *MemoryQueryResult) Len() int { return len(r.rows) }
