package merge

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

// columns: user_id, COUNT(*), SUM(amount), AVG(amount), MIN(amount), MAX(amount),
// AVG derived count, AVG derived sum
var orderLabels = []string{"user_id", "cnt", "total", "avg", "lo", "hi", "avg_cnt", "avg_sum"}

var orderAggregations = []aggregation.Spec{
	{Index: 1, Kind: aggregation.Count},
	{Index: 2, Kind: aggregation.Sum},
	{Index: 3, Kind: aggregation.Avg, CountIndex: 6, SumIndex: 7},
	{Index: 4, Kind: aggregation.Min},
	{Index: 5, Kind: aggregation.Max},
}

func orderRow(user string, cnt, sum, lo, hi int64) []any {
	return []any{user, cnt, sum, nil, lo, hi, cnt, sum}
}

func TestGroupByStream_FoldsAcrossShards(t *testing.T) {
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations, items)
	if !groupBy.OrderMatchesGroup {
		t.Fatal("Expected order to match group")
	}

	results := shards(
		shard(orderLabels, orderRow("a", 5, 10, 1, 4), orderRow("b", 1, 3, 3, 3)),
		shard(orderLabels, orderRow("a", 7, 20, 2, 6), orderRow("c", 2, 8, 4, 4)),
		shard(orderLabels, orderRow("a", 3, 6, 0, 5)),
	)

	rows := drain(t, NewGroupByStreamMergedResult(results, groupBy), len(orderLabels))
	assertColumn(t, rows, 0, "a", "b", "c")

	a := rows[0]
	if a[1] != int64(15) {
		t.Errorf("Expected COUNT 15, got %v", a[1])
	}
	if a[2] != int64(36) {
		t.Errorf("Expected SUM 36, got %v", a[2])
	}
	if avg, ok := a[3].(decimal.Decimal); !ok || !avg.Equal(decimal.RequireFromString("2.4")) {
		t.Errorf("Expected AVG 2.4, got %v", a[3])
	}
	if a[4] != int64(0) || a[5] != int64(6) {
		t.Errorf("Expected MIN 0 and MAX 6, got %v and %v", a[4], a[5])
	}
}

func TestGroupByStream_CaseInsensitiveKeys(t *testing.T) {
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations[:1], items)

	results := shards(
		shard(orderLabels, orderRow("Alice", 1, 0, 0, 0)),
		shard(orderLabels, orderRow("alice", 2, 0, 0, 0)),
	)

	rows := drain(t, NewGroupByStreamMergedResult(results, groupBy), len(orderLabels))
	if len(rows) != 1 {
		t.Fatalf("Expected one group, got %d", len(rows))
	}
	if rows[0][1] != int64(3) {
		t.Errorf("Expected COUNT 3, got %v", rows[0][1])
	}
}

func TestGroupByMemory_UnsortedInput(t *testing.T) {
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations, nil)
	if groupBy.OrderMatchesGroup {
		t.Fatal("Expected order not to match group")
	}

	results := shards(
		shard(orderLabels, orderRow("c", 2, 8, 4, 4), orderRow("a", 5, 10, 1, 4)),
		shard(orderLabels, orderRow("b", 1, 3, 3, 3), orderRow("a", 7, 20, 2, 6)),
		shard(orderLabels, orderRow("a", 3, 6, 0, 5)),
	)

	rows := drain(t, NewGroupByMemoryMergedResult(results, groupBy, nil), len(orderLabels))
	assertColumn(t, rows, 0, "a", "b", "c")
	assertColumn(t, rows, 1, int64(15), int64(1), int64(2))
}

func TestGroupByMemory_OrderedByOrderByItems(t *testing.T) {
	items := []OrderByItem{{Index: 0}}
	orderBy := []OrderByItem{{Index: 1, Descending: true}}
	groupBy := NewGroupByContext(items, orderAggregations[:1], orderBy)

	results := shards(
		shard(orderLabels, orderRow("a", 1, 0, 0, 0), orderRow("b", 4, 0, 0, 0)),
		shard(orderLabels, orderRow("c", 9, 0, 0, 0), orderRow("a", 1, 0, 0, 0)),
	)

	rows := drain(t, NewGroupByMemoryMergedResult(results, groupBy, orderBy), len(orderLabels))
	assertColumn(t, rows, 0, "c", "b", "a")
	assertColumn(t, rows, 1, int64(9), int64(4), int64(2))
}

func TestGroupByMemory_AggregationOnlyOverEmptyShards(t *testing.T) {
	labels := []string{"cnt", "total", "avg", "avg_cnt", "avg_sum"}
	specs := []aggregation.Spec{
		{Index: 0, Kind: aggregation.Count},
		{Index: 1, Kind: aggregation.Sum},
		{Index: 2, Kind: aggregation.Avg, CountIndex: 3, SumIndex: 4},
	}
	groupBy := NewGroupByContext(nil, specs, nil)

	rows := drain(t, NewGroupByMemoryMergedResult(shards(shard(labels), shard(labels)), groupBy, nil), len(labels))
	if len(rows) != 1 {
		t.Fatalf("Expected exactly one row, got %d", len(rows))
	}
	if rows[0][0] != int64(0) {
		t.Errorf("Expected COUNT 0, got %v", rows[0][0])
	}
	if rows[0][1] != nil || rows[0][2] != nil {
		t.Errorf("Expected SUM and AVG to be NULL, got %v and %v", rows[0][1], rows[0][2])
	}
}

func TestGroupByMemory_AggregationOnly(t *testing.T) {
	labels := []string{"cnt", "total"}
	specs := []aggregation.Spec{
		{Index: 0, Kind: aggregation.Count},
		{Index: 1, Kind: aggregation.Sum},
	}
	groupBy := NewGroupByContext(nil, specs, nil)

	results := shards(
		shard(labels, []any{int64(5), int64(10)}),
		shard(labels, []any{int64(7), int64(20)}),
		shard(labels, []any{int64(3), int64(6)}),
	)

	rows := drain(t, NewGroupByMemoryMergedResult(results, groupBy, nil), len(labels))
	if len(rows) != 1 || rows[0][0] != int64(15) || rows[0][1] != int64(36) {
		t.Errorf("Expected [15 36], got %v", rows)
	}
}

func TestGroupByMemory_GroupWithoutRowsIsEmpty(t *testing.T) {
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations, nil)

	rows := drain(t, NewGroupByMemoryMergedResult(shards(shard(orderLabels), shard(orderLabels)), groupBy, nil), len(orderLabels))
	if len(rows) != 0 {
		t.Errorf("Expected no rows for grouped query over empty shards, got %d", len(rows))
	}
}

func randomGroupedShard(r *rand.Rand, users int) queryresult.QueryResult {
	var rows [][]any
	for u := 0; u < users; u++ {
		if r.Intn(3) == 0 {
			continue
		}
		cnt := r.Int63n(10) + 1
		sum := r.Int63n(100)
		lo := r.Int63n(50)
		hi := lo + r.Int63n(50)
		rows = append(rows, orderRow(fmt.Sprintf("user_%02d", u), cnt, sum, lo, hi))
	}
	return shard(orderLabels, rows...)
}

func TestGroupBy_StreamAndMemoryAgree(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations, items)

	build := func() []queryresult.QueryResult {
		rr := rand.New(rand.NewSource(r.Int63()))
		return shards(randomGroupedShard(rr, 40), randomGroupedShard(rr, 40), randomGroupedShard(rr, 40), randomGroupedShard(rr, 40))
	}

	for trial := 0; trial < 5; trial++ {
		seed := r.Int63()
		r = rand.New(rand.NewSource(seed))
		streamed := drain(t, NewGroupByStreamMergedResult(build(), groupBy), len(orderLabels))
		r = rand.New(rand.NewSource(seed))
		buffered := drain(t, NewGroupByMemoryMergedResult(build(), groupBy, items), len(orderLabels))

		if len(streamed) != len(buffered) {
			t.Fatalf("Trial %d: stream produced %d groups, memory %d", trial, len(streamed), len(buffered))
		}
		key := func(rows [][]any) []string {
			out := make([]string, len(rows))
			for i, row := range rows {
				out[i] = fmt.Sprint(row[:6]...)
			}
			sort.Strings(out)
			return out
		}
		s, b := key(streamed), key(buffered)
		for i := range s {
			if s[i] != b[i] {
				t.Fatalf("Trial %d: stream row %q differs from memory row %q", trial, s[i], b[i])
			}
		}
	}
}

func BenchmarkGroupByMemory(b *testing.B) {
	r := rand.New(rand.NewSource(3))
	data := make([][][]any, 4)
	for s := range data {
		for i := 0; i < 2000; i++ {
			data[s] = append(data[s], orderRow(fmt.Sprintf("user_%03d", r.Intn(500)), 1, r.Int63n(100), 0, 0))
		}
	}
	items := []OrderByItem{{Index: 0}}
	groupBy := NewGroupByContext(items, orderAggregations, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := make([]queryresult.QueryResult, len(data))
		for s, rows := range data {
			results[s] = shard(orderLabels, rows...)
		}
		m := NewGroupByMemoryMergedResult(results, groupBy, nil)
		for {
			ok, err := m.Next()
			if err != nil {
				b.Fatal(err)
			}
			if !ok {
				break
			}
		}
	}
}
