package eval

import (
	"math"
	"testing"

	"github.com/chazu/loupe/pkg/jvm"
)

func TestPromoteBinary(t *testing.T) {
	tests := []struct {
		a, b jvm.Kind
		want jvm.Kind
		ok   bool
	}{
		{jvm.Byte, jvm.Byte, jvm.Int, true},
		{jvm.Byte, jvm.Short, jvm.Int, true},
		{jvm.Char, jvm.Char, jvm.Int, true},
		{jvm.Int, jvm.Int, jvm.Int, true},
		{jvm.Int, jvm.Long, jvm.Long, true},
		{jvm.Long, jvm.Float, jvm.Float, true},
		{jvm.Int, jvm.Float, jvm.Float, true},
		{jvm.Float, jvm.Double, jvm.Double, true},
		{jvm.Long, jvm.Double, jvm.Double, true},
		{jvm.Boolean, jvm.Int, jvm.Void, false},
		{jvm.Object, jvm.Int, jvm.Void, false},
		{jvm.Boolean, jvm.Boolean, jvm.Void, false},
	}
	for _, tc := range tests {
		got, ok := promoteBinary(tc.a, tc.b)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("promoteBinary(%v, %v) = %v, %v; want %v, %v", tc.a, tc.b, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPromoteUnary(t *testing.T) {
	tests := []struct{ in, want jvm.Kind }{
		{jvm.Byte, jvm.Int},
		{jvm.Short, jvm.Int},
		{jvm.Char, jvm.Int},
		{jvm.Int, jvm.Int},
		{jvm.Long, jvm.Long},
		{jvm.Float, jvm.Float},
		{jvm.Double, jvm.Double},
	}
	for _, tc := range tests {
		if got := promoteUnary(tc.in); got != tc.want {
			t.Errorf("promoteUnary(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsWideningConversion(t *testing.T) {
	allowed := []struct{ from, to jvm.Kind }{
		{jvm.Byte, jvm.Short}, {jvm.Byte, jvm.Double},
		{jvm.Char, jvm.Int}, {jvm.Char, jvm.Long},
		{jvm.Int, jvm.Long}, {jvm.Int, jvm.Float},
		{jvm.Long, jvm.Double}, {jvm.Float, jvm.Double},
		{jvm.Int, jvm.Int},
	}
	for _, tc := range allowed {
		if !isWideningConversion(tc.from, tc.to) {
			t.Errorf("isWideningConversion(%v, %v) = false", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to jvm.Kind }{
		{jvm.Short, jvm.Byte}, {jvm.Short, jvm.Char}, {jvm.Char, jvm.Short},
		{jvm.Long, jvm.Int}, {jvm.Double, jvm.Float},
		{jvm.Byte, jvm.Char}, {jvm.Boolean, jvm.Int}, {jvm.Int, jvm.Boolean},
	}
	for _, tc := range denied {
		if isWideningConversion(tc.from, tc.to) {
			t.Errorf("isWideningConversion(%v, %v) = true", tc.from, tc.to)
		}
	}
}

func TestDoubleNarrowing(t *testing.T) {
	if got := doubleToLong(math.NaN()); got != 0 {
		t.Errorf("doubleToLong(NaN) = %d", got)
	}
	if got := doubleToLong(1e300); got != math.MaxInt64 {
		t.Errorf("doubleToLong(1e300) = %d", got)
	}
	if got := doubleToLong(-1e300); got != math.MinInt64 {
		t.Errorf("doubleToLong(-1e300) = %d", got)
	}
	if got := doubleToInt(math.NaN()); got != 0 {
		t.Errorf("doubleToInt(NaN) = %d", got)
	}
	if got := doubleToInt(1e10); got != math.MaxInt32 {
		t.Errorf("doubleToInt(1e10) = %d", got)
	}
	if got := doubleToInt(-1e10); got != math.MinInt32 {
		t.Errorf("doubleToInt(-1e10) = %d", got)
	}
	if got := doubleToInt(-2.75); got != -2 {
		t.Errorf("doubleToInt(-2.75) = %d", got)
	}
}

func TestConvertNumeric(t *testing.T) {
	tests := []struct {
		in   jvm.Value
		to   jvm.Kind
		want jvm.Value
	}{
		{jvm.FromLong(1111111111111111), jvm.Short, jvm.FromShort(29127)},
		{jvm.FromLong(1111111111111111), jvm.Int, jvm.FromInt(-1223331385)},
		{jvm.FromInt(300), jvm.Byte, jvm.FromByte(44)},
		{jvm.FromInt(-1), jvm.Char, jvm.FromChar(0xffff)},
		{jvm.FromChar('a'), jvm.Int, jvm.FromInt(97)},
		{jvm.FromDouble(2.99), jvm.Int, jvm.FromInt(2)},
		{jvm.FromDouble(-2.99), jvm.Long, jvm.FromLong(-2)},
		{jvm.FromFloat(1.5), jvm.Double, jvm.FromDouble(1.5)},
		{jvm.FromInt(382), jvm.Double, jvm.FromDouble(382)},
		{jvm.FromByte(-1), jvm.Long, jvm.FromLong(-1)},
	}
	for _, tc := range tests {
		got, ok := convertNumeric(tc.in, tc.to)
		if !ok {
			t.Errorf("convertNumeric(%s, %v): not ok", tc.in.ToString(false), tc.to)
			continue
		}
		if got != tc.want {
			t.Errorf("convertNumeric(%s, %v) = %s, want %s",
				tc.in.ToString(false), tc.to, got.ToString(false), tc.want.ToString(false))
		}
	}

	if _, ok := convertNumeric(jvm.FromBool(true), jvm.Int); ok {
		t.Error("boolean converted to int")
	}
	if _, ok := convertNumeric(jvm.Null(), jvm.Int); ok {
		t.Error("null converted to int")
	}
}
