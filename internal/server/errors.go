package server

import (
	"errors"
	"fmt"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// NewMissingFieldError creates an error for a missing required field
func NewMissingFieldError(fieldName string) *datasource.ShardError {
	return datasource.NewShardError(
		datasource.ErrorCodeMissingRequiredField,
		fmt.Sprintf("Missing required field: %s", fieldName),
		fmt.Sprintf("The request must include a '%s' field", fieldName),
	)
}

// NewInvalidRequestError creates an error for a malformed request body
func NewInvalidRequestError(detail string) *datasource.ShardError {
	return datasource.NewShardError(
		datasource.ErrorCodeInvalidSQL,
		"Invalid request",
		detail,
	)
}

// NewMethodNotAllowedError reports an unsupported HTTP method
func NewMethodNotAllowedError(method, path string) *datasource.ShardError {
	return datasource.NewShardError(
		datasource.ErrorCodeInvalidSQL,
		"Method not allowed",
		fmt.Sprintf("%s is not supported for %s", method, path),
	)
}

// NewInternalError creates an error for internal server errors
func NewInternalError(detail string) *datasource.ShardError {
	return datasource.NewShardError(
		datasource.ErrorCodeInternalError,
		"An internal error occurred",
		detail,
	)
}

// asShardError returns err as a ShardError, wrapping anything unrecognized
// as INTERNAL_ERROR
func asShardError(err error) *datasource.ShardError {
	if err == nil {
		return nil
	}
	var shardErr *datasource.ShardError
	if errors.As(err, &shardErr) {
		return shardErr
	}
	internal := NewInternalError(err.Error())
	internal.Cause = err
	return internal
}
