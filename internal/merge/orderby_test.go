package merge

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

func sortedShard(r *rand.Rand, n int) queryresult.QueryResult {
	values := make([]int64, n)
	for i := range values {
		values[i] = r.Int63n(1000)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	rows := make([][]any, n)
	for i, v := range values {
		rows[i] = []any{v, int64(i)}
	}
	return shard([]string{"x", "seq"}, rows...)
}

func TestOrderBy_KWayMergeIsGloballySorted(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	results := shards(sortedShard(r, 100), sortedShard(r, 100), sortedShard(r, 100))

	m := NewOrderByMergedResult(results, []OrderByItem{{Index: 0}})
	rows := drain(t, m, 2)

	if len(rows) != 300 {
		t.Fatalf("Expected 300 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1][0].(int64) > rows[i][0].(int64) {
			t.Fatalf("Row %d (%v) sorts after row %d (%v)", i-1, rows[i-1][0], i, rows[i][0])
		}
	}
}

func TestOrderBy_Descending(t *testing.T) {
	labels := []string{"x"}
	results := shards(
		shard(labels, []any{int64(9)}, []any{int64(4)}, []any{int64(1)}),
		shard(labels, []any{int64(8)}, []any{int64(5)}),
		shard(labels),
	)

	rows := drain(t, NewOrderByMergedResult(results, []OrderByItem{{Index: 0, Descending: true}}), 1)
	assertColumn(t, rows, 0, int64(9), int64(8), int64(5), int64(4), int64(1))
}

func TestOrderBy_NullPlacement(t *testing.T) {
	labels := []string{"x"}
	build := func() []queryresult.QueryResult {
		return shards(
			shard(labels, []any{nil}, []any{int64(2)}),
			shard(labels, []any{int64(1)}, []any{int64(3)}),
		)
	}

	first := drain(t, NewOrderByMergedResult(build(), []OrderByItem{{Index: 0, NullsFirst: true}}), 1)
	assertColumn(t, first, 0, nil, int64(1), int64(2), int64(3))

	last := shards(
		shard(labels, []any{int64(2)}, []any{nil}),
		shard(labels, []any{int64(1)}, []any{int64(3)}),
	)
	rows := drain(t, NewOrderByMergedResult(last, []OrderByItem{{Index: 0}}), 1)
	assertColumn(t, rows, 0, int64(1), int64(2), int64(3), nil)
}

func TestOrderBy_SecondaryKeyAndShardTieBreak(t *testing.T) {
	labels := []string{"k", "v", "origin"}
	results := shards(
		shard(labels, []any{int64(1), "b", "s0"}, []any{int64(2), "a", "s0"}),
		shard(labels, []any{int64(1), "a", "s1"}, []any{int64(2), "a", "s1"}),
	)

	rows := drain(t, NewOrderByMergedResult(results, []OrderByItem{{Index: 0}, {Index: 1}}), 3)
	assertColumn(t, rows, 2, "s1", "s0", "s0", "s1")
}

func TestOrderBy_CaseInsensitiveText(t *testing.T) {
	labels := []string{"name"}
	results := shards(
		shard(labels, []any{"apple"}, []any{"Cherry"}),
		shard(labels, []any{"Banana"}),
	)

	rows := drain(t, NewOrderByMergedResult(results, []OrderByItem{{Index: 0}}), 1)
	assertColumn(t, rows, 0, "apple", "Banana", "Cherry")
}

func TestOrderBy_MixedNumericTypes(t *testing.T) {
	labels := []string{"x"}
	results := shards(
		shard(labels, []any{int64(1)}, []any{[]byte("2.5")}),
		shard(labels, []any{1.5}, []any{int32(3)}),
	)

	rows := drain(t, NewOrderByMergedResult(results, []OrderByItem{{Index: 0}}), 1)
	got := column(rows, 0)
	if got[0] != int64(1) || got[1] != 1.5 || got[3] != int32(3) {
		t.Errorf("Unexpected order: %v", got)
	}
}

func numericShard(rows ...[]any) queryresult.QueryResult {
	return queryresult.NewMemoryQueryResult(queryresult.Columns{{Label: "amount", Numeric: true}}, rows)
}

func TestOrderBy_NumericColumnText(t *testing.T) {
	results := shards(
		numericShard([]any{[]byte("9.50")}, []any{[]byte("100.00")}),
		numericShard([]any{"20.00"}),
	)

	rows := drain(t, NewOrderByMergedResult(results, []OrderByItem{{Index: 0}}), 1)
	want := []string{"9.5", "20", "100"}
	if len(rows) != len(want) {
		t.Fatalf("Expected %d rows, got %v", len(want), rows)
	}
	for i, row := range rows {
		d, ok := row[0].(decimal.Decimal)
		if !ok || !d.Equal(decimal.RequireFromString(want[i])) {
			t.Fatalf("Expected %v, got %v", want, column(rows, 0))
		}
	}
}

func TestGroupByMemory_NumericColumnMinMax(t *testing.T) {
	cols := queryresult.Columns{{Label: "lo", Numeric: true}, {Label: "hi", Numeric: true}}
	results := shards(
		queryresult.NewMemoryQueryResult(cols, [][]any{{[]byte("9.50"), []byte("9.50")}}),
		queryresult.NewMemoryQueryResult(cols, [][]any{{[]byte("100.00"), []byte("100.00")}}),
	)
	groupBy := NewGroupByContext(nil, []aggregation.Spec{
		{Index: 0, Kind: aggregation.Min},
		{Index: 1, Kind: aggregation.Max},
	}, nil)

	rows := drain(t, NewGroupByMemoryMergedResult(results, groupBy, nil), 2)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %v", rows)
	}
	lo, _ := rows[0][0].(decimal.Decimal)
	hi, _ := rows[0][1].(decimal.Decimal)
	if !lo.Equal(decimal.RequireFromString("9.5")) || !hi.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected MIN 9.5 and MAX 100, got %v and %v", rows[0][0], rows[0][1])
	}
}

func TestOrderBy_CursorState(t *testing.T) {
	m := NewOrderByMergedResult(shards(shard([]string{"x"}, []any{int64(1)})), []OrderByItem{{Index: 0}})

	_, err := m.Value(0)
	assertCode(t, err, datasource.ErrorCodeInvalidCursorState)

	if ok, _ := m.Next(); !ok {
		t.Fatal("Expected one row")
	}
	if ok, _ := m.Next(); ok {
		t.Fatal("Expected exhaustion")
	}
	_, err = m.Value(0)
	assertCode(t, err, datasource.ErrorCodeInvalidCursorState)
}

func TestOrderBy_ShardFailurePropagates(t *testing.T) {
	boom := datasource.NewShardError(datasource.ErrorCodeDatabaseUnavailable, "Database unavailable", "")
	results := shards(
		shard([]string{"v"}, []any{int64(1)}, []any{int64(5)}),
		newFailingResult(boom, []any{int64(2)}),
	)

	m := NewOrderByMergedResult(results, []OrderByItem{{Index: 0}})
	if ok, err := m.Next(); !ok || err != nil {
		t.Fatalf("Expected first row, got ok=%v err=%v", ok, err)
	}
	if ok, err := m.Next(); !ok || err != nil {
		t.Fatalf("Expected second row, got ok=%v err=%v", ok, err)
	}
	_, err := m.Next()
	if err != boom {
		t.Fatalf("Expected shard error verbatim, got %v", err)
	}
	if ok, _ := m.Next(); ok {
		t.Error("Expected cursor to stay exhausted after failure")
	}
}

func BenchmarkOrderByMerge(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	data := make([][][]any, 8)
	for s := range data {
		values := make([]int64, 1000)
		for i := range values {
			values[i] = r.Int63()
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for _, v := range values {
			data[s] = append(data[s], []any{v})
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := make([]queryresult.QueryResult, len(data))
		for s, rows := range data {
			results[s] = shard([]string{"x"}, rows...)
		}
		m := NewOrderByMergedResult(results, []OrderByItem{{Index: 0}})
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
