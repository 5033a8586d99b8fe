package merge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vibesql/shardmerge/internal/codec"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// GroupByMemoryMergedResult drains every shard cursor on the first Next,
// groups rows in memory and then iterates the finished groups.
type GroupByMemoryMergedResult struct {
	rowResult
	results []queryresult.QueryResult
	groupBy GroupByContext
	orderBy []OrderByItem
	rows    [][]any
	pos     int
	loaded  bool
}

// NewGroupByMemoryMergedResult groups results by groupBy and orders the
// groups by orderBy, or by the group items when orderBy is empty.
func NewGroupByMemoryMergedResult(results []queryresult.QueryResult, groupBy GroupByContext, orderBy []OrderByItem) *GroupByMemoryMergedResult {
	return &GroupByMemoryMergedResult{results: results, groupBy: groupBy, orderBy: orderBy, pos: -1}
}

type memoryGroup struct {
	row   []any
	units []aggregation.Unit
}

func (m *GroupByMemoryMergedResult) Next() (bool, error) {
	if m.state == exhausted {
		return false, nil
	}
	if !m.loaded {
		rows, err := m.load()
		if err != nil {
			return m.advanced(false, err)
		}
		m.rows = rows
		m.loaded = true
	}

	m.pos++
	if m.pos >= len(m.rows) {
		m.row = nil
		return m.advanced(false, nil)
	}
	m.row = m.rows[m.pos]
	return m.advanced(true, nil)
}

func (m *GroupByMemoryMergedResult) load() ([][]any, error) {
	if len(m.results) == 0 {
		return nil, nil
	}
	md := m.results[0].MetaData()
	columns := md.ColumnCount()
	items := m.groupBy.Items
	specs := m.groupBy.Aggregations
	flags := caseFlags(md, items)

	groups := make(map[string]*memoryGroup)
	var order []*memoryGroup

	for _, r := range m.results {
		for {
			ok, err := r.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			row, err := readRow(r, columns)
			if err != nil {
				return nil, err
			}

			key := groupKey(row, items, flags)
			g, exists := groups[key]
			if !exists {
				g = &memoryGroup{row: row, units: make([]aggregation.Unit, len(specs))}
				for i, spec := range specs {
					g.units[i] = aggregation.NewUnit(spec)
				}
				groups[key] = g
				order = append(order, g)
			}
			if err := foldRow(r, specs, g.units); err != nil {
				return nil, err
			}
		}
	}

	// Aggregates without GROUP BY always produce one row, even over no rows.
	if len(order) == 0 && len(items) == 0 && len(specs) > 0 {
		row := make([]any, columns)
		for _, spec := range specs {
			row[spec.Index] = aggregation.EmptyResult(spec.Kind)
		}
		return [][]any{row}, nil
	}

	rows := make([][]any, len(order))
	for i, g := range order {
		for j, spec := range specs {
			g.row[spec.Index] = g.units[j].Result()
		}
		rows[i] = g.row
	}

	sortItems := m.orderBy
	if len(sortItems) == 0 {
		sortItems = items
	}
	if len(sortItems) > 0 {
		sortFlags := caseFlags(md, sortItems)
		sort.SliceStable(rows, func(i, j int) bool {
			return compareRows(rows[i], rows[j], sortItems, sortFlags) < 0
		})
	}
	return rows, nil
}

// groupKey encodes the group-by values of row into a map key. Text is
// case-folded unless its column is case-sensitive.
func groupKey(row []any, items []OrderByItem, caseSensitive []bool) string {
	var b strings.Builder
	for i, item := range items {
		part := codec.Normalize(row[item.Index], caseSensitive[i])
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
