package executor

import (
	"fmt"

	"github.com/vibesql/shardmerge/internal/datasource"
)

// Unit is one routed statement: SQL text, its parameters and the data source
// it runs on.
type Unit struct {
	SQL        string `json:"sql"`
	Params     []any  `json:"params,omitempty"`
	DataSource string `json:"data_source"`
}

// Group is a non-empty list of units run one after another on a single
// connection. Different groups may run concurrently.
type Group struct {
	Units []Unit `json:"units"`
}

// DataSource returns the data source of the group's units
func (g Group) DataSource() string {
	if len(g.Units) == 0 {
		return ""
	}
	return g.Units[0].DataSource
}

// Validate checks that the group is non-empty and targets one data source
func (g Group) Validate() error {
	if len(g.Units) == 0 {
		return datasource.NewShardError(
			datasource.ErrorCodeMissingRequiredField,
			"Missing required field",
			"An execution group must contain at least one unit",
		)
	}
	ds := g.Units[0].DataSource
	if ds == "" {
		return datasource.NewShardError(
			datasource.ErrorCodeMissingRequiredField,
			"Missing required field",
			"Every execution unit must name a data source",
		)
	}
	for i, u := range g.Units[1:] {
		if u.DataSource != ds {
			return datasource.NewShardError(
				datasource.ErrorCodeInvalidSQL,
				"Execution group spans data sources",
				fmt.Sprintf("Unit %d targets %q, group targets %q", i+1, u.DataSource, ds),
			)
		}
	}
	return nil
}

// GroupContext is every execution group of one logical statement, in routing
// order. It may be empty.
type GroupContext struct {
	ID     string  `json:"id,omitempty"`
	Groups []Group `json:"groups"`
}

// UnitCount returns the total number of units across all groups
func (c GroupContext) UnitCount() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Units)
	}
	return n
}
