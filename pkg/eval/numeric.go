package eval

import (
	"math"

	"github.com/chazu/loupe/pkg/jvm"
)

// Binary numeric promotion per the Java language: byte, short and char
// widen to int; then the wider of the two operand kinds wins, double over
// float over long over int. Boolean and Object never promote.
func promoteBinary(a, b jvm.Kind) (jvm.Kind, bool) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return jvm.Void, false
	}
	switch {
	case a == jvm.Double || b == jvm.Double:
		return jvm.Double, true
	case a == jvm.Float || b == jvm.Float:
		return jvm.Float, true
	case a == jvm.Long || b == jvm.Long:
		return jvm.Long, true
	default:
		return jvm.Int, true
	}
}

// Unary numeric promotion: sub-int integrals widen to int.
func promoteUnary(k jvm.Kind) jvm.Kind {
	switch k {
	case jvm.Byte, jvm.Short, jvm.Char:
		return jvm.Int
	}
	return k
}

// isWideningConversion reports whether a method-invocation conversion from
// kind from to kind to is allowed without a cast (identity or widening
// primitive conversion; no boxing, no narrowing).
func isWideningConversion(from, to jvm.Kind) bool {
	if from == to {
		return true
	}
	widenings := map[jvm.Kind][]jvm.Kind{
		jvm.Byte:  {jvm.Short, jvm.Int, jvm.Long, jvm.Float, jvm.Double},
		jvm.Short: {jvm.Int, jvm.Long, jvm.Float, jvm.Double},
		jvm.Char:  {jvm.Int, jvm.Long, jvm.Float, jvm.Double},
		jvm.Int:   {jvm.Long, jvm.Float, jvm.Double},
		jvm.Long:  {jvm.Float, jvm.Double},
		jvm.Float: {jvm.Double},
	}
	for _, k := range widenings[from] {
		if k == to {
			return true
		}
	}
	return false
}

// integralValue extracts any integral-kind value as int64.
func integralValue(v jvm.Value) (int64, bool) {
	switch v.Type() {
	case jvm.Char:
		c, _ := v.AsChar()
		return int64(c), true
	case jvm.Byte:
		b, _ := v.AsByte()
		return int64(b), true
	case jvm.Short:
		s, _ := v.AsShort()
		return int64(s), true
	case jvm.Int:
		i, _ := v.AsInt()
		return int64(i), true
	case jvm.Long:
		l, _ := v.AsLong()
		return l, true
	}
	return 0, false
}

// floatingValue extracts any numeric-kind value as float64.
func floatingValue(v jvm.Value) (float64, bool) {
	if i, ok := integralValue(v); ok {
		return float64(i), true
	}
	switch v.Type() {
	case jvm.Float:
		f, _ := v.AsFloat()
		return float64(f), true
	case jvm.Double:
		d, _ := v.AsDouble()
		return d, true
	}
	return 0, false
}

// doubleToLong narrows a floating value to long with Java semantics:
// NaN becomes zero, out-of-range values saturate.
func doubleToLong(d float64) int64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt64:
		return math.MaxInt64
	case d <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(d)
	}
}

// doubleToInt narrows a floating value to int with Java semantics.
func doubleToInt(d float64) int32 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(d)
	}
}

// promotedFloat32 extracts a numeric value as float32, converting integrals
// exactly as a Java widening to float would.
func promotedFloat32(v jvm.Value) (float32, bool) {
	if v.Type() == jvm.Float {
		return v2f32(v), true
	}
	if i, ok := integralValue(v); ok {
		return float32(i), true
	}
	return 0, false
}

func v2f32(v jvm.Value) float32 {
	f, _ := v.AsFloat()
	return f
}

// convertNumeric converts a numeric value to the target kind with Java cast
// semantics: widenings are exact, integral narrowings keep the low bits,
// floating-to-integral truncates toward zero with NaN/overflow handling.
// ok is false when the source value is not numeric.
func convertNumeric(v jvm.Value, to jvm.Kind) (jvm.Value, bool) {
	if !v.Type().IsNumeric() {
		return jvm.Value{}, false
	}

	// Floating-point sources narrow through long (or directly to int) per
	// the JLS; integral sources reinterpret low bits.
	if v.Type() == jvm.Float || v.Type() == jvm.Double {
		d, _ := floatingValue(v)
		switch to {
		case jvm.Float:
			return jvm.FromFloat(float32(d)), true
		case jvm.Double:
			return jvm.FromDouble(d), true
		case jvm.Int:
			return jvm.FromInt(doubleToInt(d)), true
		case jvm.Long:
			return jvm.FromLong(doubleToLong(d)), true
		case jvm.Byte:
			return jvm.FromByte(int8(doubleToInt(d))), true
		case jvm.Short:
			return jvm.FromShort(int16(doubleToInt(d))), true
		case jvm.Char:
			return jvm.FromChar(uint16(doubleToInt(d))), true
		}
		return jvm.Value{}, false
	}

	i, _ := integralValue(v)
	switch to {
	case jvm.Byte:
		return jvm.FromByte(int8(i)), true
	case jvm.Short:
		return jvm.FromShort(int16(i)), true
	case jvm.Char:
		return jvm.FromChar(uint16(i)), true
	case jvm.Int:
		return jvm.FromInt(int32(i)), true
	case jvm.Long:
		return jvm.FromLong(i), true
	case jvm.Float:
		return jvm.FromFloat(float32(i)), true
	case jvm.Double:
		return jvm.FromDouble(float64(i)), true
	}
	return jvm.Value{}, false
}
