package server

import (
	"encoding/json"
	"net/http"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// QueryResponse is the body of every /v1 response, success or error
type QueryResponse struct {
	Success       bool         `json:"success"`
	Columns       []string     `json:"columns,omitempty"`
	Rows          [][]any      `json:"rows,omitempty"`
	RowCount      int          `json:"rowCount,omitempty"`
	UpdateCount   *int64       `json:"updateCount,omitempty"`
	Strategy      string       `json:"strategy,omitempty"`
	ExecutionTime float64      `json:"executionTime,omitempty"`
	Error         *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail represents error information in the response
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	DataSource string `json:"dataSource,omitempty"`
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status      string       `json:"status"`
	DataSources int          `json:"dataSources"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// NewErrorResponse creates an error response from a ShardError
func NewErrorResponse(err *datasource.ShardError) *QueryResponse {
	return &QueryResponse{
		Success: false,
		Error:   newErrorDetail(err),
	}
}

func newErrorDetail(err *datasource.ShardError) *ErrorDetail {
	if err == nil {
		return &ErrorDetail{
			Code:    datasource.ErrorCodeInternalError,
			Message: "Unknown error occurred",
		}
	}
	return &ErrorDetail{
		Code:       err.Code,
		Message:    err.Message,
		Detail:     err.Detail,
		DataSource: err.DataSource,
	}
}

// WriteJSON writes v as JSON with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a successful response with 200 OK status
func WriteSuccess(w http.ResponseWriter, response *QueryResponse) error {
	response.Success = true
	return WriteJSON(w, http.StatusOK, response)
}

// WriteError writes an error response with the status mapped from its code
func WriteError(w http.ResponseWriter, err *datasource.ShardError) error {
	response := NewErrorResponse(err)
	return WriteJSON(w, datasource.GetHTTPStatusCode(response.Error.Code), response)
}

// jsonValue keeps raw driver bytes readable in the response
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
