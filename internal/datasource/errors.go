package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Shard error codes
const (
	ErrorCodeInvalidSQL           = "INVALID_SQL"
	ErrorCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrorCodeUnsafeQuery          = "UNSAFE_QUERY"
	ErrorCodeQueryTimeout         = "QUERY_TIMEOUT"
	ErrorCodeQueryCanceled        = "QUERY_CANCELED"
	ErrorCodeQueryTooLarge        = "QUERY_TOO_LARGE"
	ErrorCodeResultTooLarge       = "RESULT_TOO_LARGE"
	ErrorCodeInternalError        = "INTERNAL_ERROR"
	ErrorCodeDatabaseUnavailable  = "DATABASE_UNAVAILABLE"
	ErrorCodeUnknownExecution     = "UNKNOWN_EXECUTION"
	ErrorCodeUnknownDataSource    = "UNKNOWN_DATA_SOURCE"
	ErrorCodeInvalidCursorState   = "INVALID_CURSOR_STATE"
	ErrorCodeUnsupported          = "UNSUPPORTED"
)

// HTTP status codes for shard errors
const (
	HTTPStatusInvalidSQL           = 400
	HTTPStatusMissingRequiredField = 400
	HTTPStatusUnsafeQuery          = 400
	HTTPStatusUnknownDataSource    = 400
	HTTPStatusUnsupported          = 400
	HTTPStatusQueryTimeout         = 408
	HTTPStatusQueryCanceled        = 408
	HTTPStatusQueryTooLarge        = 413
	HTTPStatusResultTooLarge       = 413
	HTTPStatusInternalError        = 500
	HTTPStatusUnknownExecution     = 500
	HTTPStatusInvalidCursorState   = 500
	HTTPStatusDatabaseUnavailable  = 503
)

// ShardError is the single error type raised by shard execution and merging.
// DataSource names the shard the failure came from, when known.
type ShardError struct {
	Code       string
	Message    string
	Detail     string
	DataSource string
	Cause      error
}

func (e *ShardError) Error() string {
	prefix := e.Code
	if e.DataSource != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.DataSource)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", prefix, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ShardError) Unwrap() error {
	return e.Cause
}

// NewShardError creates a new shard error
func NewShardError(code, message, detail string) *ShardError {
	return &ShardError{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// WithDataSource returns a copy of the error attributed to the named data source.
// An error that already names a data source is returned unchanged.
func (e *ShardError) WithDataSource(name string) *ShardError {
	if e.DataSource != "" {
		return e
	}
	cp := *e
	cp.DataSource = name
	return &cp
}

// NewUnknownExecutionError wraps a failure that is not a ShardError.
func NewUnknownExecutionError(cause error) *ShardError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &ShardError{
		Code:    ErrorCodeUnknownExecution,
		Message: "Unknown execution error",
		Detail:  detail,
		Cause:   cause,
	}
}

// SQLSTATE to shard error code mapping, shared by lib/pq and pgx
var sqlStateToCode = map[string]string{
	// Syntax errors → INVALID_SQL
	"42601": ErrorCodeInvalidSQL, // syntax_error
	"42703": ErrorCodeInvalidSQL, // undefined_column
	"42P01": ErrorCodeInvalidSQL, // undefined_table
	"42P02": ErrorCodeInvalidSQL, // undefined_parameter
	"42883": ErrorCodeInvalidSQL, // undefined_function
	"42804": ErrorCodeInvalidSQL, // datatype_mismatch

	// Query cancellation → QUERY_TIMEOUT
	"57014": ErrorCodeQueryTimeout, // query_canceled

	// Resource limits → DATABASE_UNAVAILABLE
	"53000": ErrorCodeDatabaseUnavailable, // insufficient_resources
	"53100": ErrorCodeDatabaseUnavailable, // disk_full
	"53200": ErrorCodeDatabaseUnavailable, // out_of_memory
	"53300": ErrorCodeDatabaseUnavailable, // too_many_connections
	"53400": ErrorCodeDatabaseUnavailable, // configuration_limit_exceeded

	// Connection errors → DATABASE_UNAVAILABLE
	"08000": ErrorCodeDatabaseUnavailable, // connection_exception
	"08003": ErrorCodeDatabaseUnavailable, // connection_does_not_exist
	"08006": ErrorCodeDatabaseUnavailable, // connection_failure
	"08001": ErrorCodeDatabaseUnavailable, // sqlclient_unable_to_establish_sqlconnection
	"08004": ErrorCodeDatabaseUnavailable, // sqlserver_rejected_establishment_of_sqlconnection

	// Statement limits → QUERY_TOO_LARGE
	"54000": ErrorCodeQueryTooLarge, // program_limit_exceeded
	"54001": ErrorCodeQueryTooLarge, // statement_too_complex
}

// TranslateError translates a driver error to a ShardError
func TranslateError(err error) *ShardError {
	if err == nil {
		return nil
	}

	var shardErr *ShardError
	if errors.As(err, &shardErr) {
		return shardErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ShardError{
			Code:    ErrorCodeQueryTimeout,
			Message: "Query execution timeout",
			Detail:  "Query exceeded the configured execution time",
			Cause:   err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &ShardError{
			Code:    ErrorCodeQueryCanceled,
			Message: "Query execution canceled",
			Detail:  "Query was canceled before completion",
			Cause:   err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		detail := buildErrorDetail(pqErr.Message, pqErr.Detail, pqErr.Hint, pqErr.Position)
		return translateSQLState(string(pqErr.Code), pqErr.Message, detail, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		position := ""
		if pgErr.Position != 0 {
			position = fmt.Sprintf("%d", pgErr.Position)
		}
		detail := buildErrorDetail(pgErr.Message, pgErr.Detail, pgErr.Hint, position)
		return translateSQLState(pgErr.Code, pgErr.Message, detail, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return translateSQLiteError(liteErr)
	}

	return &ShardError{
		Code:    ErrorCodeInternalError,
		Message: "An internal error occurred",
		Detail:  err.Error(),
		Cause:   err,
	}
}

func translateSQLState(sqlState, driverMessage, detail string, cause error) *ShardError {
	code, found := sqlStateToCode[sqlState]
	if !found {
		code = ErrorCodeInternalError
	}
	return &ShardError{
		Code:    code,
		Message: buildErrorMessage(code, driverMessage),
		Detail:  detail,
		Cause:   cause,
	}
}

func translateSQLiteError(liteErr *sqlite.Error) *ShardError {
	var code string
	switch liteErr.Code() & 0xff {
	case sqlite3.SQLITE_ERROR:
		code = ErrorCodeInvalidSQL
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_NOMEM, sqlite3.SQLITE_FULL, sqlite3.SQLITE_CANTOPEN:
		code = ErrorCodeDatabaseUnavailable
	case sqlite3.SQLITE_INTERRUPT:
		code = ErrorCodeQueryCanceled
	case sqlite3.SQLITE_TOOBIG:
		code = ErrorCodeQueryTooLarge
	default:
		code = ErrorCodeInternalError
	}
	return &ShardError{
		Code:    code,
		Message: buildErrorMessage(code, liteErr.Error()),
		Detail:  fmt.Sprintf("SQLite error: %s", liteErr.Error()),
		Cause:   liteErr,
	}
}

// buildErrorMessage creates a user-friendly error message
func buildErrorMessage(code, driverMessage string) string {
	switch code {
	case ErrorCodeInvalidSQL:
		return "Invalid SQL syntax"
	case ErrorCodeQueryTimeout:
		return "Query execution timeout"
	case ErrorCodeQueryCanceled:
		return "Query execution canceled"
	case ErrorCodeDatabaseUnavailable:
		return "Database is unavailable"
	case ErrorCodeQueryTooLarge:
		return "Query too large"
	default:
		if driverMessage != "" {
			return driverMessage
		}
		return "An error occurred"
	}
}

// buildErrorDetail creates detailed error information
func buildErrorDetail(message, detail, hint, position string) string {
	result := fmt.Sprintf("PostgreSQL error: %s", message)

	if detail != "" {
		result += fmt.Sprintf(" | Detail: %s", detail)
	}

	if hint != "" {
		result += fmt.Sprintf(" | Hint: %s", hint)
	}

	if position != "" {
		result += fmt.Sprintf(" | Position: %s", position)
	}

	return result
}

// GetHTTPStatusCode returns the HTTP status code for a shard error code
func GetHTTPStatusCode(errorCode string) int {
	switch errorCode {
	case ErrorCodeInvalidSQL:
		return HTTPStatusInvalidSQL
	case ErrorCodeMissingRequiredField:
		return HTTPStatusMissingRequiredField
	case ErrorCodeUnsafeQuery:
		return HTTPStatusUnsafeQuery
	case ErrorCodeUnknownDataSource:
		return HTTPStatusUnknownDataSource
	case ErrorCodeUnsupported:
		return HTTPStatusUnsupported
	case ErrorCodeQueryTimeout:
		return HTTPStatusQueryTimeout
	case ErrorCodeQueryCanceled:
		return HTTPStatusQueryCanceled
	case ErrorCodeQueryTooLarge:
		return HTTPStatusQueryTooLarge
	case ErrorCodeResultTooLarge:
		return HTTPStatusResultTooLarge
	case ErrorCodeUnknownExecution:
		return HTTPStatusUnknownExecution
	case ErrorCodeInvalidCursorState:
		return HTTPStatusInvalidCursorState
	case ErrorCodeDatabaseUnavailable:
		return HTTPStatusDatabaseUnavailable
	default:
		return HTTPStatusInternalError
	}
}
