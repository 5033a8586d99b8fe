package merge

import (
	"container/heap"

	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// GroupByStreamMergedResult folds groups while walking shard cursors that are
// already sorted by the group key. It buffers one row per shard.
type GroupByStreamMergedResult struct {
	rowResult
	results      []queryresult.QueryResult
	items        []OrderByItem
	aggregations []aggregation.Spec
	columns      int
	heap         orderByHeap
	primed       bool
}

// NewGroupByStreamMergedResult merges pre-sorted results grouped by groupBy
func NewGroupByStreamMergedResult(results []queryresult.QueryResult, groupBy GroupByContext) *GroupByStreamMergedResult {
	columns := 0
	if len(results) > 0 {
		columns = results[0].MetaData().ColumnCount()
	}
	return &GroupByStreamMergedResult{
		results:      results,
		items:        groupBy.Items,
		aggregations: groupBy.Aggregations,
		columns:      columns,
	}
}

func (m *GroupByStreamMergedResult) Next() (bool, error) {
	if m.state == exhausted {
		return false, nil
	}
	if !m.primed {
		h, err := primeHeap(m.results, m.items)
		if err != nil {
			return m.advanced(false, err)
		}
		m.heap = h
		m.primed = true
	}
	if m.heap.Len() == 0 {
		return m.advanced(false, nil)
	}

	row, err := m.foldGroup()
	if err != nil {
		return m.advanced(false, err)
	}
	m.row = row
	return m.advanced(true, nil)
}

// foldGroup consumes every shard row sharing the least group key
func (m *GroupByStreamMergedResult) foldGroup() ([]any, error) {
	first := m.heap[0]
	row, err := readRow(first.result, m.columns)
	if err != nil {
		return nil, err
	}
	groupKey := append([]any(nil), first.keys...)

	units := make([]aggregation.Unit, len(m.aggregations))
	for i, spec := range m.aggregations {
		units[i] = aggregation.NewUnit(spec)
	}

	for m.heap.Len() > 0 && m.heap[0].compareKeys(groupKey) == 0 {
		node := heap.Pop(&m.heap).(*orderByValue)
		for {
			if err := foldRow(node.result, m.aggregations, units); err != nil {
				return nil, err
			}
			ok, err := node.next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if node.compareKeys(groupKey) != 0 {
				heap.Push(&m.heap, node)
				break
			}
		}
	}

	for i, spec := range m.aggregations {
		row[spec.Index] = units[i].Result()
	}
	return row, nil
}

// foldRow feeds the current row of r into units
func foldRow(r queryresult.QueryResult, specs []aggregation.Spec, units []aggregation.Unit) error {
	for i, spec := range specs {
		inputs := spec.Inputs()
		values := make([]any, len(inputs))
		for j, index := range inputs {
			v, err := r.Value(index)
			if err != nil {
				return err
			}
			values[j] = v
		}
		if err := units[i].Merge(values...); err != nil {
			return err
		}
	}
	return nil
}
