package query

import (
	"regexp"
	"strings"

	"github.com/vibesql/shardmerge/internal/datasource"
)

var (
	whereClausePattern = regexp.MustCompile(`\bWHERE\b`)
	singleLineComment  = regexp.MustCompile(`--[^\n]*`)
	multiLineComment   = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	stringLiteral      = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// CheckSafety rejects UPDATE and DELETE statements that would touch every
// row of a shard. 'WHERE 1=1' opts in explicitly.
func CheckSafety(sql string) error {
	switch keyword := leadingKeyword(sql); keyword {
	case "UPDATE", "DELETE":
		if !hasWhereClause(sql) {
			return datasource.NewShardError(
				datasource.ErrorCodeUnsafeQuery,
				"Unsafe query: "+keyword+" without WHERE clause",
				keyword+" statements must include a WHERE clause. Use 'WHERE 1=1' to affect all rows explicitly",
			)
		}
	}
	return nil
}

// hasWhereClause ignores WHERE inside comments, string literals and longer
// identifiers such as "somewhere"
func hasWhereClause(sql string) bool {
	sql = removeStringLiterals(removeComments(sql))
	return whereClausePattern.MatchString(strings.ToUpper(sql))
}

// Nested /* */ comments are not supported
func removeComments(sql string) string {
	sql = singleLineComment.ReplaceAllString(sql, "")
	return multiLineComment.ReplaceAllString(sql, "")
}

// Doubled quotes ('can''t') stay inside the literal
func removeStringLiterals(sql string) string {
	return stringLiteral.ReplaceAllString(sql, "''")
}
