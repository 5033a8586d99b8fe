package merge

import (
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// IteratorMergedResult concatenates shard cursors in list order
type IteratorMergedResult struct {
	cursor
	results []queryresult.QueryResult
	current int
}

// NewIteratorMergedResult concatenates results
func NewIteratorMergedResult(results []queryresult.QueryResult) *IteratorMergedResult {
	return &IteratorMergedResult{results: results}
}

func (m *IteratorMergedResult) Next() (bool, error) {
	if m.state == exhausted {
		return false, nil
	}
	for m.current < len(m.results) {
		ok, err := m.results[m.current].Next()
		if err != nil {
			return m.advanced(false, err)
		}
		if ok {
			return m.advanced(true, nil)
		}
		m.current++
	}
	return m.advanced(false, nil)
}

func (m *IteratorMergedResult) Value(index int) (any, error) {
	if err := m.checkPositioned(); err != nil {
		return nil, err
	}
	v, err := m.results[m.current].Value(index)
	if err != nil {
		return nil, err
	}
	return m.read(v)
}
