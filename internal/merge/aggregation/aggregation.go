// Package aggregation folds per-shard partial aggregate values into one
// value per group.
package aggregation

import (
	"fmt"
	"strings"

	"github.com/vibesql/shardmerge/internal/codec"
)

// AvgScale is the number of fractional digits kept by AVG, rounded half up
const AvgScale = 4

// Kind is an aggregate function
type Kind int

const (
	Count Kind = iota
	Sum
	Avg
	Min
	Max
)

func (k Kind) String() string {
	switch k {
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses an aggregate function name, case-insensitively
func ParseKind(name string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "COUNT":
		return Count, nil
	case "SUM":
		return Sum, nil
	case "AVG":
		return Avg, nil
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	}
	return 0, fmt.Errorf("unknown aggregation %q", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Spec describes one aggregate projection of the statement.
//
// Index is the output column. For a non-distinct AVG each shard returns a
// partial COUNT in CountIndex and a partial SUM in SumIndex; every other kind
// reads its partial (or, for DISTINCT, raw) value from Index.
type Spec struct {
	Index      int  `json:"index"`
	Kind       Kind `json:"kind"`
	Distinct   bool `json:"distinct,omitempty"`
	CountIndex int  `json:"count_index,omitempty"`
	SumIndex   int  `json:"sum_index,omitempty"`
}

// Inputs returns the column indexes whose values feed Unit.Merge, in order
func (s Spec) Inputs() []int {
	if s.Kind == Avg && !s.Distinct {
		return []int{s.CountIndex, s.SumIndex}
	}
	return []int{s.Index}
}

// Unit accumulates one aggregate for one group
type Unit interface {
	// Merge folds one shard row's input values, ordered as Spec.Inputs
	Merge(values ...any) error
	Result() any
}

// NewUnit returns an empty accumulator for spec
func NewUnit(spec Spec) Unit {
	switch spec.Kind {
	case Count:
		if spec.Distinct {
			return &distinctCountUnit{}
		}
		return &countUnit{}
	case Sum:
		return &sumUnit{}
	case Avg:
		if spec.Distinct {
			return &distinctAvgUnit{}
		}
		return &avgUnit{}
	case Min:
		return &comparableUnit{keepLower: true}
	case Max:
		return &comparableUnit{}
	}
	return &comparableUnit{}
}

// EmptyResult is the value an aggregate takes over zero input rows
func EmptyResult(kind Kind) any {
	if kind == Count {
		return int64(0)
	}
	return nil
}

// countUnit sums shard-local counts
type countUnit struct {
	acc accumulator
}

func (u *countUnit) Merge(values ...any) error {
	if values[0] == nil {
		return nil
	}
	return u.acc.add(values[0])
}

func (u *countUnit) Result() any {
	if !u.acc.set {
		return int64(0)
	}
	return u.acc.value()
}

// sumUnit serves SUM and SUM(DISTINCT); the divider has already removed
// duplicates for the latter.
type sumUnit struct {
	acc accumulator
}

func (u *sumUnit) Merge(values ...any) error {
	if values[0] == nil {
		return nil
	}
	return u.acc.add(values[0])
}

func (u *sumUnit) Result() any { return u.acc.value() }

type avgUnit struct {
	count accumulator
	sum   accumulator
}

func (u *avgUnit) Merge(values ...any) error {
	if values[0] == nil || values[1] == nil {
		return nil
	}
	if err := u.count.add(values[0]); err != nil {
		return err
	}
	return u.sum.add(values[1])
}

func (u *avgUnit) Result() any {
	return average(&u.sum, &u.count)
}

type distinctCountUnit struct {
	n int64
}

func (u *distinctCountUnit) Merge(values ...any) error {
	if values[0] != nil {
		u.n++
	}
	return nil
}

func (u *distinctCountUnit) Result() any { return u.n }

type distinctAvgUnit struct {
	n   int64
	sum accumulator
}

func (u *distinctAvgUnit) Merge(values ...any) error {
	if values[0] == nil {
		return nil
	}
	if err := u.sum.add(values[0]); err != nil {
		return err
	}
	u.n++
	return nil
}

func (u *distinctAvgUnit) Result() any {
	var count accumulator
	if u.n > 0 {
		count.add(u.n)
	}
	return average(&u.sum, &count)
}

func average(sum, count *accumulator) any {
	if count.isZero() || !sum.set {
		return nil
	}
	return sum.decimal().DivRound(count.decimal(), AvgScale)
}

// comparableUnit keeps the lowest (MIN) or highest (MAX) non-null value
type comparableUnit struct {
	keepLower bool
	value     any
}

func (u *comparableUnit) Merge(values ...any) error {
	v := values[0]
	if v == nil {
		return nil
	}
	if u.value == nil {
		u.value = v
		return nil
	}
	cmp := codec.Compare(v, u.value, true)
	if (u.keepLower && cmp < 0) || (!u.keepLower && cmp > 0) {
		u.value = v
	}
	return nil
}

func (u *comparableUnit) Result() any { return u.value }
