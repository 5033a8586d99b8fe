package merge

import (
	"errors"
	"testing"

	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/queryresult"
)

func shard(labels []string, rows ...[]any) queryresult.QueryResult {
	return queryresult.NewMemoryQueryResult(queryresult.NewColumns(labels...), rows)
}

func shards(results ...queryresult.QueryResult) []queryresult.QueryResult {
	return results
}

// drain reads every row of m
func drain(t *testing.T, m MergedResult, columns int) [][]any {
	t.Helper()
	var out [][]any
	for {
		ok, err := m.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if !ok {
			return out
		}
		row := make([]any, columns)
		for i := range row {
			v, err := m.Value(i)
			if err != nil {
				t.Fatalf("Value(%d) failed: %v", i, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
}

func column(rows [][]any, index int) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row[index]
	}
	return out
}

func assertColumn(t *testing.T, rows [][]any, index int, want ...any) {
	t.Helper()
	got := column(rows, index)
	if len(got) != len(want) {
		t.Fatalf("Expected %d rows %v, got %d rows %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected column %d = %v, got %v", index, want, got)
		}
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var shardErr *datasource.ShardError
	if !errors.As(err, &shardErr) {
		t.Fatalf("Expected ShardError with code %s, got %v", code, err)
	}
	if shardErr.Code != code {
		t.Fatalf("Expected code %s, got %s", code, shardErr.Code)
	}
}

// failingResult returns rows and then fails on the next advance
type failingResult struct {
	queryresult.QueryResult
	err error
}

func newFailingResult(err error, rows ...[]any) *failingResult {
	return &failingResult{QueryResult: shard([]string{"v"}, rows...), err: err}
}

func (f *failingResult) Next() (bool, error) {
	ok, err := f.QueryResult.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, f.err
	}
	return true, nil
}
