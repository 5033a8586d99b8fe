package codec

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Compare orders two raw column values. nil sorts before every non-nil value;
// callers that need configurable null placement handle nil themselves.
// Numbers compare by value across Go numeric types and decimals. Text compares
// byte-wise, or case-folded when caseSensitive is false.
func Compare(a, b any, caseSensitive bool) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if na, ok := numericKind(a); ok {
		if nb, ok := numericKind(b); ok {
			return compareNumbers(a, na, b, nb)
		}
	}

	switch x := a.(type) {
	case string:
		if s, ok := textOf(b); ok {
			return compareText(x, s, caseSensitive)
		}
	case []byte:
		if s, ok := textOf(b); ok {
			if !caseSensitive {
				return compareText(string(x), s, false)
			}
			return bytes.Compare(x, []byte(s))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}

	// Mixed text and numbers: compare numerically when the text parses.
	da, okA := ToDecimal(a)
	db, okB := ToDecimal(b)
	if okA && okB {
		return da.Cmp(db)
	}
	return compareText(fmt.Sprint(a), fmt.Sprint(b), caseSensitive)
}

// Equal reports whether two values compare equal under Compare.
func Equal(a, b any, caseSensitive bool) bool {
	return Compare(a, b, caseSensitive) == 0
}

type numKind int

const (
	kindInt numKind = iota
	kindFloat
	kindDecimal
)

func numericKind(v any) (numKind, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt, true
	case uint64:
		return kindDecimal, true
	case float32, float64:
		return kindFloat, true
	case decimal.Decimal:
		return kindDecimal, true
	}
	return 0, false
}

func compareNumbers(a any, ka numKind, b any, kb numKind) int {
	if ka == kindInt && kb == kindInt {
		x, _ := decodeInt64(a)
		y, _ := decodeInt64(b)
		return cmpOrdered(x.(int64), y.(int64))
	}
	if ka != kindDecimal && kb != kindDecimal {
		x, _ := decodeFloat64(a)
		y, _ := decodeFloat64(b)
		return cmpOrdered(x.(float64), y.(float64))
	}
	x, _ := ToDecimal(a)
	y, _ := ToDecimal(b)
	return x.Cmp(y)
}

func cmpOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func textOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func compareText(a, b string, caseSensitive bool) int {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

// Normalize returns a comparable map-key form of v: text is case-folded unless
// caseSensitive, numbers collapse to their decimal representation so 1, 1.0
// and "1" (from a numeric column) share one key.
func Normalize(v any, caseSensitive bool) string {
	if v == nil {
		return "\x00null"
	}
	if _, ok := numericKind(v); ok {
		d, _ := ToDecimal(v)
		return "n:" + d.String()
	}
	switch x := v.(type) {
	case string:
		if !caseSensitive {
			x = strings.ToLower(x)
		}
		return "s:" + x
	case []byte:
		s := string(x)
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		return "s:" + s
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case bool:
		if x {
			return "b:1"
		}
		return "b:0"
	}
	return "v:" + fmt.Sprint(v)
}
