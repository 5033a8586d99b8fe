package aggregation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vibesql/shardmerge/internal/datasource"
)

type numKind int

const (
	numInt numKind = iota
	numFloat
	numDecimal
)

// accumulator sums values while keeping the narrowest numeric type that
// represents them: integers stay int64 until they overflow or meet a decimal,
// floats stay float64 until they meet a decimal.
type accumulator struct {
	set  bool
	kind numKind
	i    int64
	f    float64
	d    decimal.Decimal
}

func (a *accumulator) add(v any) error {
	kind, i, f, d, err := classify(v)
	if err != nil {
		return err
	}
	if !a.set {
		a.set = true
		a.kind, a.i, a.f, a.d = kind, i, f, d
		return nil
	}

	target := max(a.kind, kind)
	switch target {
	case numInt:
		sum := a.i + i
		if (sum > a.i) == (i > 0) {
			a.i = sum
			return nil
		}
		// overflow
		a.promote(numDecimal)
		a.d = a.d.Add(decimal.NewFromInt(i))
	case numFloat:
		a.promote(numFloat)
		if kind == numInt {
			f = float64(i)
		}
		a.f += f
	case numDecimal:
		a.promote(numDecimal)
		switch kind {
		case numInt:
			d = decimal.NewFromInt(i)
		case numFloat:
			d = decimal.NewFromFloat(f)
		}
		a.d = a.d.Add(d)
	}
	return nil
}

func (a *accumulator) promote(to numKind) {
	if a.kind >= to {
		return
	}
	switch {
	case a.kind == numInt && to == numFloat:
		a.f = float64(a.i)
	case a.kind == numInt && to == numDecimal:
		a.d = decimal.NewFromInt(a.i)
	case a.kind == numFloat && to == numDecimal:
		a.d = decimal.NewFromFloat(a.f)
	}
	a.kind = to
}

func (a *accumulator) value() any {
	if !a.set {
		return nil
	}
	switch a.kind {
	case numInt:
		return a.i
	case numFloat:
		return a.f
	}
	return a.d
}

func (a *accumulator) decimal() decimal.Decimal {
	switch a.kind {
	case numInt:
		return decimal.NewFromInt(a.i)
	case numFloat:
		return decimal.NewFromFloat(a.f)
	}
	return a.d
}

func (a *accumulator) isZero() bool {
	if !a.set {
		return true
	}
	switch a.kind {
	case numInt:
		return a.i == 0
	case numFloat:
		return a.f == 0
	}
	return a.d.IsZero()
}

func classify(v any) (numKind, int64, float64, decimal.Decimal, error) {
	var zero decimal.Decimal
	switch x := v.(type) {
	case int64:
		return numInt, x, 0, zero, nil
	case int:
		return numInt, int64(x), 0, zero, nil
	case int32:
		return numInt, int64(x), 0, zero, nil
	case int16:
		return numInt, int64(x), 0, zero, nil
	case int8:
		return numInt, int64(x), 0, zero, nil
	case uint32:
		return numInt, int64(x), 0, zero, nil
	case uint16:
		return numInt, int64(x), 0, zero, nil
	case uint8:
		return numInt, int64(x), 0, zero, nil
	case uint64:
		if x <= math.MaxInt64 {
			return numInt, int64(x), 0, zero, nil
		}
		return numDecimal, 0, 0, decimal.RequireFromString(strconv.FormatUint(x, 10)), nil
	case float64:
		return numFloat, 0, x, zero, nil
	case float32:
		return numFloat, 0, float64(x), zero, nil
	case decimal.Decimal:
		return numDecimal, 0, 0, x, nil
	case []byte:
		return parseNumeric(string(x))
	case string:
		return parseNumeric(x)
	}
	return 0, 0, 0, zero, notNumeric(v)
}

func parseNumeric(s string) (numKind, int64, float64, decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, 0, decimal.Decimal{}, notNumeric(s)
	}
	return numDecimal, 0, 0, d, nil
}

func notNumeric(v any) error {
	return datasource.NewShardError(
		datasource.ErrorCodeUnsupported,
		"Cannot aggregate non-numeric value",
		fmt.Sprintf("Value %v of type %T is not numeric", v, v),
	)
}
