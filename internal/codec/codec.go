// Package codec converts raw driver values into the Go type a consumer asks for.
//
// A Registry is built once at startup and handed to the components that read
// merged rows. Nothing in this package keeps global state.
package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies the Go representation requested for a column value.
type Type int

const (
	TypeAny Type = iota
	TypeInt64
	TypeFloat64
	TypeDecimal
	TypeString
	TypeBool
	TypeBytes
	TypeTime
)

func (t Type) String() string {
	switch t {
	case TypeAny:
		return "any"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeTime:
		return "time"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Decoder converts a non-nil raw value.
type Decoder func(v any) (any, error)

// Registry maps a requested Type to its Decoder.
type Registry struct {
	decoders map[Type]Decoder
}

// NewRegistry returns an empty registry. Only TypeAny is decodable until
// decoders are registered.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[Type]Decoder)}
}

// NewDefaultRegistry returns a registry with decoders for every built-in Type.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeInt64, decodeInt64)
	r.Register(TypeFloat64, decodeFloat64)
	r.Register(TypeDecimal, decodeDecimal)
	r.Register(TypeString, decodeString)
	r.Register(TypeBool, decodeBool)
	r.Register(TypeBytes, decodeBytes)
	r.Register(TypeTime, decodeTime)
	return r
}

// Register installs or replaces the decoder for t.
func (r *Registry) Register(t Type, d Decoder) {
	r.decoders[t] = d
}

// Decode converts v to t. A nil v stays nil for every type.
func (r *Registry) Decode(v any, t Type) (any, error) {
	if v == nil || t == TypeAny {
		return v, nil
	}
	d, ok := r.decoders[t]
	if !ok {
		return nil, fmt.Errorf("codec: no decoder registered for %s", t)
	}
	return d(v)
}

func decodeInt64(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case decimal.Decimal:
		return x.IntPart(), nil
	case []byte:
		return parseInt(string(x))
	case string:
		return parseInt(x)
	}
	return nil, fmt.Errorf("codec: cannot convert %T to int64", v)
}

func parseInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: cannot convert %q to int64", s)
	}
	return d.IntPart(), nil
}

func decodeFloat64(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	}
	n, err := decodeInt64(v)
	if err != nil {
		return nil, fmt.Errorf("codec: cannot convert %T to float64", v)
	}
	return float64(n.(int64)), nil
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("codec: cannot convert %q to float64", s)
	}
	return f, nil
}

func decodeDecimal(v any) (any, error) {
	d, ok := ToDecimal(v)
	if !ok {
		return nil, fmt.Errorf("codec: cannot convert %T to decimal", v)
	}
	return d, nil
}

// ToDecimal converts numeric values and numeric text to a decimal.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int64:
		return decimal.NewFromInt(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int16:
		return decimal.NewFromInt(int64(x)), true
	case int8:
		return decimal.NewFromInt(int64(x)), true
	case uint64:
		return decimal.RequireFromString(strconv.FormatUint(x, 10)), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case uint16:
		return decimal.NewFromInt(int64(x)), true
	case uint8:
		return decimal.NewFromInt(int64(x)), true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(x)))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func decodeString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case decimal.Decimal:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return fmt.Sprint(v), nil
}

func decodeBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	n, err := decodeInt64(v)
	if err != nil {
		return nil, fmt.Errorf("codec: cannot convert %T to bool", v)
	}
	return n.(int64) != 0, nil
}

func decodeBytes(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	s, _ := decodeString(v)
	return []byte(s.(string)), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func decodeTime(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		s = string(x)
	case string:
		s = x
	case int64:
		return time.Unix(x, 0).UTC(), nil
	default:
		return nil, fmt.Errorf("codec: cannot convert %T to time", v)
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return nil, fmt.Errorf("codec: cannot parse %q as time", s)
}
