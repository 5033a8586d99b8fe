package merge

import (
	"container/heap"

	"github.com/vibesql/shardmerge/internal/queryresult"
)

// orderByValue is one shard cursor together with the sort key of its
// current row.
type orderByValue struct {
	result        queryresult.QueryResult
	shard         int
	items         []OrderByItem
	caseSensitive []bool
	keys          []any
}

func newOrderByValue(result queryresult.QueryResult, shard int, items []OrderByItem) *orderByValue {
	return &orderByValue{
		result:        result,
		shard:         shard,
		items:         items,
		caseSensitive: caseFlags(result.MetaData(), items),
		keys:          make([]any, len(items)),
	}
}

// next advances the shard cursor and loads the new row's sort key
func (v *orderByValue) next() (bool, error) {
	ok, err := v.result.Next()
	if err != nil || !ok {
		return false, err
	}
	for i, item := range v.items {
		key, err := v.result.Value(item.Index)
		if err != nil {
			return false, err
		}
		v.keys[i] = key
	}
	return true, nil
}

func (v *orderByValue) compareKeys(keys []any) int {
	for i, item := range v.items {
		if c := compareItem(v.keys[i], keys[i], item, v.caseSensitive[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compareTo breaks ties by shard position so equal keys come out in shard
// list order.
func (v *orderByValue) compareTo(o *orderByValue) int {
	if c := v.compareKeys(o.keys); c != 0 {
		return c
	}
	return v.shard - o.shard
}

type orderByHeap []*orderByValue

func (h orderByHeap) Len() int { return len(h) }

func (h orderByHeap) Less(i, j int) bool { return h[i].compareTo(h[j]) < 0 }

func (h orderByHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *orderByHeap) Push(x any) {
	*h = append(*h, x.(*orderByValue))
}

func (h *orderByHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return node
}

// primeHeap positions every shard cursor on its first row and heapifies the
// non-empty ones.
func primeHeap(results []queryresult.QueryResult, items []OrderByItem) (orderByHeap, error) {
	h := make(orderByHeap, 0, len(results))
	for i, r := range results {
		v := newOrderByValue(r, i, items)
		ok, err := v.next()
		if err != nil {
			return nil, err
		}
		if ok {
			h = append(h, v)
		}
	}
	heap.Init(&h)
	return h, nil
}

// OrderByMergedResult is a k-way merge of shard cursors that are each sorted
// by the same items. Each Next costs O(log shards).
type OrderByMergedResult struct {
	cursor
	results []queryresult.QueryResult
	items   []OrderByItem
	heap    orderByHeap
	current *orderByValue
	primed  bool
}

// NewOrderByMergedResult merges results by items
func NewOrderByMergedResult(results []queryresult.QueryResult, items []OrderByItem) *OrderByMergedResult {
	return &OrderByMergedResult{results: results, items: items}
}

func (m *OrderByMergedResult) Next() (bool, error) {
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
	} else if m.current != nil {
		ok, err := m.current.next()
		if err != nil {
			return m.advanced(false, err)
		}
		if ok {
			heap.Push(&m.heap, m.current)
		}
		m.current = nil
	}

	if m.heap.Len() == 0 {
		return m.advanced(false, nil)
	}
	m.current = heap.Pop(&m.heap).(*orderByValue)
	return m.advanced(true, nil)
}

func (m *OrderByMergedResult) Value(index int) (any, error) {
	if err := m.checkPositioned(); err != nil {
		return nil, err
	}
	v, err := m.current.result.Value(index)
	if err != nil {
		return nil, err
	}
	return m.read(v)
}
