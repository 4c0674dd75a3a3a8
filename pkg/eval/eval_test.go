package eval_test

import (
	"strings"
	"testing"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/eval/evaltest"
	"github.com/chazu/loupe/pkg/jvm"
)

// newFactory builds the synthetic compilation context shared by most tests:
// an evaluation point inside com/prod/MyClass1 with a few locals and fields.
func newFactory() *evaltest.Factory {
	f := evaltest.NewFactory("com/prod/MyClass1")
	f.AddClass("com/prod/MyClass2")

	f.AddFakeLocal("myint", jvm.FromInt(382))
	f.AddFakeLocal("mybyte", jvm.FromByte(3))
	f.AddFakeLocal("myshort", jvm.FromShort(7))
	f.AddFakeLocal("mylong", jvm.FromLong(1<<40))
	f.AddFakeLocal("myfloat", jvm.FromFloat(1.5))
	f.AddFakeLocal("mydouble", jvm.FromDouble(2.25))
	f.AddFakeLocal("mybool", jvm.FromBool(true))
	f.AddFakeLocal("mychar", jvm.FromChar('a'))

	myarr := evaltest.NewObject("[I")
	myarr.ElementAt = func(index int64) (jvm.Value, *eval.Message) {
		if index < 0 || index >= 200 {
			return jvm.Value{}, eval.NewMessage("Array index out of bounds")
		}
		return jvm.FromInt(int32(-index)), nil
	}
	f.AddFakeLocal("myarr", myarr.Value())

	other := evaltest.NewObject("com/prod/MyClass2")
	self := evaltest.NewObject("com/prod/MyClass1")
	self.Fields["fieldOtherObj"] = other.Value()
	f.AddFakeInstanceField("com/prod/MyClass1", "fieldOtherObj", jvm.Class("com/prod/MyClass2"))
	f.AddFakeLocal("myObj", self.Value())
	f.AddThis(self)

	return f
}

func compileExpr(t *testing.T, f *evaltest.Factory, source string) *eval.CompiledExpression {
	t.Helper()
	return eval.NewCompiler(f, eval.DefaultOptions()).Compile(source)
}

// evaluate compiles and runs source, failing the test on any error.
func evaluate(t *testing.T, f *evaltest.Factory, source string) jvm.Value {
	t.Helper()
	ce := compileExpr(t, f, source)
	if ce.Err() != nil {
		t.Fatalf("compile %q: %s", source, ce.Err())
	}
	ctx := &eval.EvaluationContext{Caller: evaltest.NewCaller(f)}
	value, msg := ce.Evaluate(ctx)
	if msg != nil {
		t.Fatalf("evaluate %q: %s", source, msg)
	}
	return value
}

// expectRendered compiles, evaluates and compares the diagnostic rendering.
func expectRendered(t *testing.T, f *evaltest.Factory, source, want string) {
	t.Helper()
	value := evaluate(t, f, source)
	if got := value.ToString(false); got != want {
		t.Errorf("%q = %s, want %s", source, got, want)
	}
	value.Release()
}

// expectCompileError asserts compilation fails with the given format.
func expectCompileError(t *testing.T, f *evaltest.Factory, source, format string) *eval.Message {
	t.Helper()
	ce := compileExpr(t, f, source)
	if ce.Err() == nil {
		t.Fatalf("compile %q: expected error %q, got none (type %s)", source, format, ce.StaticType())
	}
	if !ce.Err().Is(format) {
		t.Fatalf("compile %q: got %q, want format %q", source, ce.Err(), format)
	}
	return ce.Err()
}

// expectEvalError asserts evaluation fails with the given format.
func expectEvalError(t *testing.T, f *evaltest.Factory, source, format string) *eval.Message {
	t.Helper()
	ce := compileExpr(t, f, source)
	if ce.Err() != nil {
		t.Fatalf("compile %q: %s", source, ce.Err())
	}
	ctx := &eval.EvaluationContext{Caller: evaltest.NewCaller(f)}
	value, msg := ce.Evaluate(ctx)
	if msg == nil {
		value.Release()
		t.Fatalf("evaluate %q: expected error %q, got success", source, format)
	}
	if !msg.Is(format) {
		t.Fatalf("evaluate %q: got %q, want format %q", source, msg, format)
	}
	return msg
}

// ---------------------------------------------------------------------------
// Literals and rendering
// ---------------------------------------------------------------------------

func TestLiterals(t *testing.T) {
	f := newFactory()
	tests := []struct{ source, want string }{
		{"true", "<boolean>true"},
		{"false", "<boolean>false"},
		{"null", "null"},
		{"382", "<int>382"},
		{"0x10", "<int>16"},
		{"010", "<int>8"},
		{"5L", "<long>5"},
		{"0xFFFFFFFF", "<int>-1"},
		{"2147483647", "<int>2147483647"},
		{"9223372036854775807L", "<long>9223372036854775807"},
		{"1.5", "<double>1.5"},
		{"1.5f", "<float>1.5"},
		{"2d", "<double>2"},
		{"'a'", "<char>97"},
		{"'\\n'", "<char>10"},
	}
	for _, tc := range tests {
		expectRendered(t, f, tc.source, tc.want)
	}
}

func TestStringLiteral(t *testing.T) {
	f := newFactory()
	value := evaluate(t, f, "\"hello\\n\"")
	if got := value.ToString(true); got != "\"hello\n\"" {
		t.Errorf("string literal = %q", got)
	}
	value.Release()
}

func TestBadNumericLiterals(t *testing.T) {
	f := newFactory()
	tests := []struct{ source, param string }{
		{"0x111111111", "0x111111111"},
		{"2147483648", "2147483648"},
		{"9223372036854775808L", "9223372036854775808L"},
		{"099", "099"},
	}
	for _, tc := range tests {
		msg := expectCompileError(t, f, tc.source, eval.BadNumericLiteral)
		if len(msg.Parameters) != 1 || msg.Parameters[0] != tc.param {
			t.Errorf("%q: parameters = %v, want [%s]", tc.source, msg.Parameters, tc.param)
		}
	}
}

// ---------------------------------------------------------------------------
// Resource limits
// ---------------------------------------------------------------------------

func TestExpressionTooLong(t *testing.T) {
	f := newFactory()
	long := "1" + strings.Repeat("+1", eval.DefaultMaxExpressionLength)
	expectCompileError(t, f, long, eval.ExpressionTooLong)
}

func TestExpressionTreeTooDeep(t *testing.T) {
	f := newFactory()
	terms := make([]string, 30)
	for i := range terms {
		terms[i] = "2"
	}
	expectCompileError(t, f, strings.Join(terms, "+"), eval.ExpressionTreeTooDeep)
}

func TestShallowChainStillCompiles(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "2+2+2+2+2+2+2+2+2+2", "<int>20")
}

// ---------------------------------------------------------------------------
// Numeric promotion
// ---------------------------------------------------------------------------

func TestBinaryNumericPromotion(t *testing.T) {
	f := newFactory()
	tests := []struct {
		source string
		kind   jvm.Kind
	}{
		{"mybyte + myshort", jvm.Int},
		{"mybyte + mychar", jvm.Int},
		{"myint + mybyte", jvm.Int},
		{"myint + mylong", jvm.Long},
		{"mylong + myfloat", jvm.Float},
		{"myint + myfloat", jvm.Float},
		{"myfloat + mydouble", jvm.Double},
		{"mybyte + mydouble", jvm.Double},
		{"mychar + mychar", jvm.Int},
	}
	for _, tc := range tests {
		value := evaluate(t, f, tc.source)
		if value.Type() != tc.kind {
			t.Errorf("%q: kind = %v, want %v", tc.source, value.Type(), tc.kind)
		}
		value.Release()
	}
}

func TestPromotionValues(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "mybyte + mydouble", "<double>5.25")
	expectRendered(t, f, "mychar + 1", "<int>98")
	expectRendered(t, f, "myshort * myint", "<int>2674")
}

func TestBooleanObjectNeverPromote(t *testing.T) {
	f := newFactory()
	expectCompileError(t, f, "mybool + 1", eval.TypeMismatch)
	expectCompileError(t, f, "myObj + 1", eval.TypeMismatch)
	expectCompileError(t, f, "1 && true", eval.TypeMismatch)
	expectCompileError(t, f, "myint < mybool", eval.TypeMismatch)
}

// ---------------------------------------------------------------------------
// Arithmetic failure cases
// ---------------------------------------------------------------------------

func TestDivisionByZero(t *testing.T) {
	f := newFactory()
	for _, source := range []string{"1 / 0", "myint / 0", "5 % 0", "5L / 0L", "5L % 0", "myint % 0"} {
		expectEvalError(t, f, source, eval.DivisionByZero)
	}
}

func TestIntegerDivisionOverflow(t *testing.T) {
	f := newFactory()
	f.AddFakeLocal("minint", jvm.FromInt(-2147483648))
	f.AddFakeLocal("minlong", jvm.FromLong(-9223372036854775808))
	for _, source := range []string{
		"minint / -1", "minint % -1",
		"minlong / -1", "minlong % -1",
	} {
		expectEvalError(t, f, source, eval.IntegerDivisionOverflow)
	}
	// One above MIN divides fine.
	expectRendered(t, f, "(minint + 1) / -1", "<int>2147483647")
}

func TestFloatDivisionByZeroIsInfinity(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "1.0 / 0.0", "<double>+Inf")
}

// ---------------------------------------------------------------------------
// Short-circuit evaluation
// ---------------------------------------------------------------------------

func TestShortCircuit(t *testing.T) {
	f := newFactory()
	// The right operand would fail fatally if evaluated.
	expectRendered(t, f, "false && (1/0 == 1)", "<boolean>false")
	expectRendered(t, f, "true || (1/0 == 1)", "<boolean>true")
	// And it does fail when the left side does not decide.
	expectEvalError(t, f, "true && (1/0 == 1)", eval.DivisionByZero)
	expectEvalError(t, f, "false || (1/0 == 1)", eval.DivisionByZero)
}

// ---------------------------------------------------------------------------
// Casts
// ---------------------------------------------------------------------------

func TestPrimitiveCastTruncation(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "(short)1111111111111111L", "<short>29127")
	expectRendered(t, f, "(int)1111111111111111L", "<int>-1223331385")
	expectRendered(t, f, "(byte)300", "<byte>44")
	expectRendered(t, f, "(char)65", "<char>65")
	expectRendered(t, f, "(long)myint", "<long>382")
	expectRendered(t, f, "(int)2.75", "<int>2")
	expectRendered(t, f, "(int)-2.75", "<int>-2")
	expectRendered(t, f, "(double)myfloat", "<double>1.5")
}

func TestWideningRoundTrip(t *testing.T) {
	f := newFactory()
	tests := []struct{ source, want string }{
		{"(byte)(int)mybyte", "<byte>3"},
		{"(short)(long)myshort", "<short>7"},
		{"(int)(long)myint", "<int>382"},
		{"(int)(double)myint", "<int>382"},
		{"(char)(int)mychar", "<char>97"},
	}
	for _, tc := range tests {
		expectRendered(t, f, tc.source, tc.want)
	}
}

func TestInvalidCasts(t *testing.T) {
	f := newFactory()
	expectCompileError(t, f, "(int)mybool", eval.TypeCastCompileInvalid)
	expectCompileError(t, f, "(boolean)myint", eval.TypeCastCompileInvalid)
	expectCompileError(t, f, "(int)myObj", eval.TypeCastCompileInvalid)
	expectCompileError(t, f, "(java.lang.Integer)myint", eval.TypeCastUnsupported)
	expectCompileError(t, f, "(com.prod.MyClass2)myint", eval.TypeCastCompileInvalid)
}

func TestReferenceCast(t *testing.T) {
	f := newFactory()
	// Downcast that holds at runtime.
	expectRendered(t, f, "(com.prod.MyClass2)myObj.fieldOtherObj instanceof com.prod.MyClass2", "<boolean>true")
	// Cast of null succeeds.
	value := evaluate(t, f, "(com.prod.MyClass2)null")
	if !value.IsNull() {
		t.Error("cast of null should stay null")
	}
	// Runtime mismatch carries both class names.
	msg := expectEvalError(t, f, "(com.prod.MyClass2)myObj", eval.TypeCastEvaluateInvalid)
	if len(msg.Parameters) != 2 || msg.Parameters[0] != "com.prod.MyClass1" || msg.Parameters[1] != "com.prod.MyClass2" {
		t.Errorf("parameters = %v", msg.Parameters)
	}
}

// ---------------------------------------------------------------------------
// instanceof
// ---------------------------------------------------------------------------

func TestInstanceof(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "myObj.fieldOtherObj instanceof com.prod.MyClass2", "<boolean>true")
	expectRendered(t, f, "myObj instanceof com.prod.MyClass2", "<boolean>false")
	// null instanceof AnyType is true here; downstream depends on it.
	expectRendered(t, f, "null instanceof com.prod.MyClass2", "<boolean>true")
}

func TestInstanceofParserRejections(t *testing.T) {
	f := newFactory()
	expectCompileError(t, f, "myObj instanceof null", eval.ExpressionParserError)
	expectCompileError(t, f, "myObj instanceof int", eval.ExpressionParserError)
	expectCompileError(t, f, "myint instanceof com.prod.MyClass2", eval.TypeMismatch)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func TestArrayIndexing(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "myarr[myarr == null ? 3 : 8]", "<int>-8")
	expectRendered(t, f, "myarr[0]", "<int>0")
	expectRendered(t, f, "myarr[(byte)5]", "<int>-5")
}

func TestArrayErrors(t *testing.T) {
	f := newFactory()
	expectCompileError(t, f, "myint[0]", eval.ArrayTypeExpected)
	expectCompileError(t, f, "myarr[1.5]", eval.ArrayIndexNotInteger)
	expectCompileError(t, f, "myarr[mybool]", eval.ArrayIndexNotInteger)

	// The reader's own message surfaces verbatim.
	ce := compileExpr(t, f, "myarr[500]")
	if ce.Err() != nil {
		t.Fatalf("compile: %s", ce.Err())
	}
	_, msg := ce.Evaluate(&eval.EvaluationContext{})
	if msg == nil || msg.Format != "Array index out of bounds" {
		t.Errorf("got %v", msg)
	}
}

func TestNullArrayDereference(t *testing.T) {
	f := newFactory()
	// The array static type comes from the field declaration; the stored
	// value is null.
	holder := evaltest.NewObject("com/prod/MyClass1")
	holder.Fields["nullArr"] = jvm.Null()
	f.AddFakeInstanceField("com/prod/MyClass1", "nullArr", jvm.Class("[I"))
	f.AddFakeLocal("holder", holder.Value())
	expectEvalError(t, f, "holder.nullArr[0]", eval.NullPointerDereference)
}

// ---------------------------------------------------------------------------
// Identifiers and fields
// ---------------------------------------------------------------------------

func TestIdentifierResolutionOrder(t *testing.T) {
	f := newFactory()
	// Implicit instance field via "this".
	value := evaluate(t, f, "fieldOtherObj")
	ref, _ := value.Ref()
	if ref == nil || ref.ClassSignature() != "com/prod/MyClass2" {
		t.Error("implicit field did not resolve through this")
	}
	value.Release()

	// Static field on the enclosing class.
	f.AddFakeStaticField("com/prod/MyClass1", "COUNT", jvm.FromInt(7))
	expectRendered(t, f, "COUNT", "<int>7")

	// Local wins over field: add a local shadowing the static.
	f.AddFakeLocal("COUNT", jvm.FromInt(9))
	expectRendered(t, f, "COUNT", "<int>9")
}

func TestQualifiedStaticField(t *testing.T) {
	f := newFactory()
	f.AddClass("com/prod/Config")
	f.AddFakeStaticField("com/prod/Config", "LIMIT", jvm.FromLong(64))
	expectRendered(t, f, "com.prod.Config.LIMIT", "<long>64")
}

func TestInvalidIdentifier(t *testing.T) {
	f := newFactory()
	msg := expectCompileError(t, f, "nosuch", eval.InvalidIdentifier)
	if len(msg.Parameters) != 1 || msg.Parameters[0] != "nosuch" {
		t.Errorf("parameters = %v", msg.Parameters)
	}
}

func TestPrimitiveTypeField(t *testing.T) {
	f := newFactory()
	expectCompileError(t, f, "myint.value", eval.PrimitiveTypeField)
}

func TestNullFieldDereference(t *testing.T) {
	f := newFactory()
	holder := evaltest.NewObject("com/prod/MyClass1")
	holder.Fields["fieldOtherObj"] = jvm.Null()
	f.AddFakeLocal("nullHolder", holder.Value())
	// Reading a field off a null object fails at the second hop.
	f.AddFakeInstanceField("com/prod/MyClass2", "inner", jvm.Primitive(jvm.Int))
	expectEvalError(t, f, "nullHolder.fieldOtherObj.inner", eval.NullPointerDereference)
}

// ---------------------------------------------------------------------------
// Deferred compilation on unloaded classes
// ---------------------------------------------------------------------------

func TestDeferredCompilation(t *testing.T) {
	f := newFactory()
	ce := compileExpr(t, f, "null instanceof com.prod.NotYetLoaded")
	if ce.Err() == nil || !ce.IsDeferred() {
		t.Fatalf("expected deferred compile, got %v", ce.Err())
	}
	if ce.Err().Parameters[0] != "com.prod.NotYetLoaded" {
		t.Errorf("parameters = %v", ce.Err().Parameters)
	}

	// Once the class loads, the same source compiles and evaluates.
	f.AddClass("com/prod/NotYetLoaded")
	expectRendered(t, f, "null instanceof com.prod.NotYetLoaded", "<boolean>true")
}

func TestDeferredQualifiedChain(t *testing.T) {
	f := newFactory()
	ce := compileExpr(t, f, "com.prod.Pending.FIELD")
	if !ce.IsDeferred() {
		t.Fatalf("expected deferred compile, got %v", ce.Err())
	}
	f.AddClass("com/prod/Pending")
	f.AddFakeStaticField("com/prod/Pending", "FIELD", jvm.FromInt(1))
	expectRendered(t, f, "com.prod.Pending.FIELD", "<int>1")
}

// ---------------------------------------------------------------------------
// Conditional operator
// ---------------------------------------------------------------------------

func TestConditional(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "true ? 1 : 2", "<int>1")
	expectRendered(t, f, "false ? 1 : 2", "<int>2")
	expectRendered(t, f, "mybool ? mybyte : mydouble", "<double>3")
	expectRendered(t, f, "false ? mybyte : mydouble", "<double>2.25")
	expectCompileError(t, f, "1 ? 2 : 3", eval.TypeMismatch)
	expectCompileError(t, f, "true ? 1 : mybool", eval.TypeMismatch)
}

// Only the selected branch runs.
func TestConditionalLaziness(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "true ? 1 : 1/0", "<int>1")
	expectRendered(t, f, "false ? 1/0 : 2", "<int>2")
}

// ---------------------------------------------------------------------------
// Operators, misc
// ---------------------------------------------------------------------------

func TestShiftOperators(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "1 << 4", "<int>16")
	expectRendered(t, f, "-16 >> 2", "<int>-4")
	expectRendered(t, f, "-16 >>> 28", "<int>15")
	expectRendered(t, f, "1L << 40", "<long>1099511627776")
	expectRendered(t, f, "mybyte << 1", "<int>6")
	// Shift counts are masked per the JLS.
	expectRendered(t, f, "1 << 33", "<int>2")
	expectCompileError(t, f, "1.5 << 1", eval.TypeMismatch)
}

func TestBitwiseOperators(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "12 & 10", "<int>8")
	expectRendered(t, f, "12 | 10", "<int>14")
	expectRendered(t, f, "12 ^ 10", "<int>6")
	expectRendered(t, f, "true & false", "<boolean>false")
	expectRendered(t, f, "true | false", "<boolean>true")
	expectRendered(t, f, "true ^ true", "<boolean>false")
	expectCompileError(t, f, "1.5 & 2.5", eval.TypeMismatch)
}

func TestUnaryOperators(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "-myint", "<int>-382")
	expectRendered(t, f, "+mybyte", "<int>3")
	expectRendered(t, f, "~0", "<int>-1")
	expectRendered(t, f, "!mybool", "<boolean>false")
	expectRendered(t, f, "-mybyte", "<int>-3")
	expectCompileError(t, f, "!myint", eval.TypeMismatch)
	expectCompileError(t, f, "~1.5", eval.TypeMismatch)
	expectCompileError(t, f, "-mybool", eval.TypeMismatch)
}

func TestEquality(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "myint == 382", "<boolean>true")
	expectRendered(t, f, "myint != 382", "<boolean>false")
	expectRendered(t, f, "mybool == true", "<boolean>true")
	expectRendered(t, f, "myObj == myObj", "<boolean>true")
	expectRendered(t, f, "myObj == myObj.fieldOtherObj", "<boolean>false")
	expectRendered(t, f, "myObj == null", "<boolean>false")
	expectRendered(t, f, "null == null", "<boolean>true")
	expectCompileError(t, f, "myObj == 1", eval.TypeMismatch)
}

func TestParserErrors(t *testing.T) {
	f := newFactory()
	for _, source := range []string{
		"1 +", "(1", "a[1", "a..b", "1 ? 2", "@", "foo(,)", "'ab'", "\"unterminated",
	} {
		expectCompileError(t, f, source, eval.ExpressionParserError)
	}
}

func TestParenthesesVsCast(t *testing.T) {
	f := newFactory()
	expectRendered(t, f, "(myint) + 1", "<int>383")
	expectRendered(t, f, "(1 + 2) * 3", "<int>9")
	expectRendered(t, f, "(int)-1", "<int>-1")
	expectRendered(t, f, "(long)(myint + 1)", "<long>383")
}
