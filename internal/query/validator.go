package query

import (
	"fmt"
	"strings"

	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/executor"
)

const (
	// MaxQuerySize is the maximum allowed SQL length of one execution unit (10KB)
	MaxQuerySize = 10 * 1024
)

// Kind says whether a unit is routed as a query or as an update
type Kind int

const (
	KindQuery Kind = iota
	KindUpdate
)

func (k Kind) String() string {
	if k == KindUpdate {
		return "update"
	}
	return "query"
}

var (
	queryKeywords  = []string{"SELECT", "WITH", "VALUES"}
	updateKeywords = []string{"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "TRUNCATE"}
)

// ValidateGroup checks the group shape and every unit in it
func ValidateGroup(group executor.Group, kind Kind) error {
	if err := group.Validate(); err != nil {
		return err
	}
	for _, unit := range group.Units {
		if err := ValidateUnit(unit, kind); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUnit validates the SQL of one execution unit. Detailed syntax
// checks are left to the shard, whose errors are translated on the way back.
func ValidateUnit(unit executor.Unit, kind Kind) error {
	trimmed := strings.TrimSpace(unit.SQL)
	if trimmed == "" {
		return datasource.NewShardError(
			datasource.ErrorCodeMissingRequiredField,
			"Missing required field",
			"Every execution unit needs a non-empty 'sql' field",
		).WithDataSource(unit.DataSource)
	}

	if len(unit.SQL) > MaxQuerySize {
		return datasource.NewShardError(
			datasource.ErrorCodeQueryTooLarge,
			"Query too large",
			"SQL query exceeds the maximum allowed size of 10KB",
		).WithDataSource(unit.DataSource)
	}

	keywords := queryKeywords
	if kind == KindUpdate {
		keywords = updateKeywords
	}
	if !hasLeadingKeyword(trimmed, keywords) {
		return datasource.NewShardError(
			datasource.ErrorCodeInvalidSQL,
			"Invalid SQL syntax",
			fmt.Sprintf("A %s unit must start with one of %s", kind, strings.Join(keywords, ", ")),
		).WithDataSource(unit.DataSource)
	}

	if err := CheckSafety(trimmed); err != nil {
		return datasource.TranslateError(err).WithDataSource(unit.DataSource)
	}
	return nil
}

func hasLeadingKeyword(sql string, keywords []string) bool {
	word := leadingKeyword(sql)
	for _, keyword := range keywords {
		if word == keyword {
			return true
		}
	}
	return false
}

// leadingKeyword returns the first word of sql in upper case, ignoring comments
func leadingKeyword(sql string) string {
	stripped := strings.TrimLeft(removeComments(sql), " \t\r\n(")
	end := strings.IndexFunc(stripped, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(stripped)
	}
	return strings.ToUpper(stripped[:end])
}
