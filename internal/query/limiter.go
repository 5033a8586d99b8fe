package query

import (
	"fmt"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// DefaultMaxResultRows caps the rows a merged response may carry
const DefaultMaxResultRows = 1000

// CheckRowLimit fails once count reaches max. max <= 0 disables the check.
func CheckRowLimit(count, max int) error {
	if max > 0 && count >= max {
		return datasource.NewShardError(
			datasource.ErrorCodeResultTooLarge,
			"Result set too large",
			fmt.Sprintf("Query returned more than the maximum allowed %d rows", max),
		)
	}
	return nil
}
