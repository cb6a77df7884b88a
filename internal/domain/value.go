package domain

import "math"

// ValueKind discriminates the closed set of decoded value variants.
type ValueKind uint8

const (
	ValueNumeric ValueKind = iota
	ValueText
)

// Value is the tagged variant produced by the register codec. Numeric
// carries every non-string data type widened to float64; Text carries
// decoded STRING payloads.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

// Numeric constructs a numeric value.
func Numeric(f float64) Value { return Value{Kind: ValueNumeric, Num: f} }

// Text constructs a text value.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// IsNumeric reports whether the value carries a number.
func (v Value) IsNumeric() bool { return v.Kind == ValueNumeric }

// Truthy reports boolean truthiness at write time: 0 is false, anything
// else (including NaN) is true. Text values are never truthy.
func (v Value) Truthy() bool {
	return v.Kind == ValueNumeric && v.Num != 0
}

// IntegralNum returns the value as int64 when it is numeric, integral and
// within the representable range. Used for enum label resolution.
func (v Value) IntegralNum() (int64, bool) {
	if v.Kind != ValueNumeric {
		return 0, false
	}
	f := v.Num
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Processed is the output of the post-decode pipeline: the processed value
// plus an optional enum display label.
type Processed struct {
	Value Value
	Label *string
}
