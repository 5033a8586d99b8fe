package queryresult

import (
	"database/sql"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// StreamQueryResult reads rows from the driver as the merge engine asks for
// them. The connection behind rows stays busy until Close.
type StreamQueryResult struct {
	rows       *sql.Rows
	columns    Columns
	current    []any
	positioned bool
	done       bool
	wasNull    bool
}

// NewStreamQueryResult takes ownership of rows
func NewStreamQueryResult(rows *sql.Rows) (*StreamQueryResult, error) {
	columns, err := columnsFromRows(rows)
	if err != nil {
		return nil, err
	}
	return &StreamQueryResult{rows: rows, columns: columns}, nil
}

func (r *StreamQueryResult) Next() (bool, error) {
	if r.done {
		return false, nil
	}
	if !r.rows.Next() {
		r.done = true
		r.positioned = false
		if err := r.rows.Err(); err != nil {
			return false, datasource.TranslateError(err)
		}
		return false, nil
	}

	values, err := scanRow(r.rows, len(r.columns))
	if err != nil {
		r.done = true
		r.positioned = false
		return false, err
	}
	r.columns.normalizeRow(values)
	r.current = values
	r.positioned = true
	return true, nil
}

func (r *StreamQueryResult) Value(index int) (any, error) {
	if !r.positioned {
		return nil, errNotPositioned()
	}
	if index < 0 || index >= len(r.current) {
		return nil, errColumnIndex(index, len(r.current))
	}
	v := r.current[index]
	r.wasNull = v == nil
	return v, nil
}

func (r *StreamQueryResult) WasNull() bool { return r.wasNull }

func (r *StreamQueryResult) MetaData() MetaData { return r.columns }

// Close releases the underlying rows
func (r *StreamQueryResult) Close() error {
	r.done = true
	r.positioned = false
	return r.rows.Close()
}
