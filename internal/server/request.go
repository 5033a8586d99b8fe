package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vibesql/shardmerge/internal/executor"
	"github.com/vibesql/shardmerge/internal/merge"
	"github.com/vibesql/shardmerge/internal/merge/aggregation"
)

// MaxRequestBytes bounds a request body. Units are capped at 10KB each, so
// this leaves room for a wide fan-out.
const MaxRequestBytes = 8 << 20

// QueryRequest is a pre-routed SELECT: one execution group per connection and
// the statement shape the merge engine needs
type QueryRequest struct {
	Groups    []executor.Group `json:"groups"`
	Statement StatementRequest `json:"statement"`
	Serial    bool             `json:"serial,omitempty"`
}

// UpdateRequest is a pre-routed DML fan-out
type UpdateRequest struct {
	Groups []executor.Group `json:"groups"`
	Serial bool             `json:"serial,omitempty"`
}

// StatementRequest describes the shape of the logical SELECT
type StatementRequest struct {
	Distinct        bool                `json:"distinct,omitempty"`
	DistinctColumns []int               `json:"distinct_columns,omitempty"`
	OrderBy         []merge.OrderByItem `json:"order_by,omitempty"`
	GroupBy         []merge.OrderByItem `json:"group_by,omitempty"`
	Aggregations    []aggregation.Spec  `json:"aggregations,omitempty"`
	Pagination      *PaginationRequest  `json:"pagination,omitempty"`
}

// PaginationRequest carries the bound pagination values as the dialect
// writes them. RowCount is the LIMIT for mysql, postgresql and sql92, the
// ROWNUM bound for oracle and the TOP for sqlserver; nil means unbounded.
type PaginationRequest struct {
	Dialect   string `json:"dialect,omitempty"`
	Offset    int64  `json:"offset,omitempty"`
	RowCount  *int64 `json:"row_count,omitempty"`
	Inclusive bool   `json:"inclusive,omitempty"`
}

// Statement converts the request into a merge statement. Pagination without a
// dialect uses fallback.
func (s StatementRequest) Statement(fallback merge.Dialect) (*merge.Statement, error) {
	stmt := &merge.Statement{
		Distinct:        s.Distinct,
		DistinctColumns: s.DistinctColumns,
		OrderBy:         s.OrderBy,
		GroupBy:         merge.NewGroupByContext(s.GroupBy, s.Aggregations, s.OrderBy),
	}
	if s.Pagination != nil {
		p, err := s.Pagination.context(fallback)
		if err != nil {
			return nil, err
		}
		stmt.Pagination = p
	}
	return stmt, nil
}

func (p *PaginationRequest) context(fallback merge.Dialect) (*merge.PaginationContext, error) {
	dialect := fallback
	if p.Dialect != "" {
		d, err := merge.ParseDialect(p.Dialect)
		if err != nil {
			return nil, NewInvalidRequestError(err.Error())
		}
		dialect = d
	}

	bound := int64(-1)
	if p.RowCount != nil {
		if *p.RowCount < 0 {
			return nil, NewInvalidRequestError("pagination.row_count must not be negative")
		}
		bound = *p.RowCount
	}
	if p.Offset < 0 {
		return nil, NewInvalidRequestError("pagination.offset must not be negative")
	}

	switch dialect {
	case merge.DialectOracle:
		return merge.NewRowNumberPagination(p.Offset, bound, p.Inclusive), nil
	case merge.DialectSQLServer:
		return merge.NewTopPagination(p.Offset, bound), nil
	default:
		return merge.NewLimitPagination(dialect, p.Offset, bound), nil
	}
}

// decodeRequest reads a JSON body into v, rejecting unknown fields
func decodeRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewInvalidRequestError(fmt.Sprintf("Invalid JSON request body: %v", err))
	}
	return nil
}

func requireGroups(groups []executor.Group) error {
	if groups == nil {
		return NewMissingFieldError("groups")
	}
	return nil
}
