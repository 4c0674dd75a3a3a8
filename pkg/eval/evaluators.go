package eval

import (
	"math"

	"github.com/chazu/loupe/pkg/jvm"
)

// Evaluator is one compiled node of the expression tree. Nodes are stateless
// between evaluations: every Evaluate call is independent and side-effect
// free, except method-call nodes which may run debuggee code through the
// context's MethodCaller. Sub-expressions evaluate in Java's left-to-right,
// short-circuit-aware order.
type Evaluator interface {
	// StaticType returns the node's compile-time result type.
	StaticType() jvm.Signature

	// Evaluate produces the node's runtime value. The returned value is
	// owned by the caller. Exactly one of value and message is meaningful.
	Evaluate(ctx *EvaluationContext) (jvm.Value, *Message)
}

// ---------------------------------------------------------------------------
// Leaf nodes
// ---------------------------------------------------------------------------

// literalEval holds a constant value: numeric/char/boolean literals, null,
// and string literals materialized at compile time.
type literalEval struct {
	sig   jvm.Signature
	value jvm.Value
}

func (e *literalEval) StaticType() jvm.Signature { return e.sig }

func (e *literalEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	return e.value.Copy(), nil
}

// localVarEval reads a local variable (or "this") from the current frame.
type localVarEval struct {
	reader LocalVariableReader
}

func (e *localVarEval) StaticType() jvm.Signature { return e.reader.StaticType() }

func (e *localVarEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	return e.reader.ReadValue(ctx)
}

// staticFieldEval reads a static field.
type staticFieldEval struct {
	reader StaticFieldReader
}

func (e *staticFieldEval) StaticType() jvm.Signature { return e.reader.StaticType() }

func (e *staticFieldEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	return e.reader.ReadValue()
}

// ---------------------------------------------------------------------------
// Member access
// ---------------------------------------------------------------------------

// instanceFieldEval reads a field through a source object expression.
type instanceFieldEval struct {
	source Evaluator
	reader InstanceFieldReader
}

func (e *instanceFieldEval) StaticType() jvm.Signature { return e.reader.StaticType() }

func (e *instanceFieldEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	source, msg := e.source.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer source.Release()
	if source.IsNull() {
		return jvm.Value{}, NewMessage(NullPointerDereference)
	}
	return e.reader.ReadValue(source)
}

// arrayIndexEval reads one element of an array expression. The compiler has
// already verified the source is an array type and the index integral.
type arrayIndexEval struct {
	elemSig jvm.Signature
	source  Evaluator
	index   Evaluator
	reader  ArrayReader
}

func (e *arrayIndexEval) StaticType() jvm.Signature { return e.elemSig }

func (e *arrayIndexEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	source, msg := e.source.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer source.Release()

	index, msg := e.index.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer index.Release()

	if source.IsNull() {
		return jvm.Value{}, NewMessage(NullPointerDereference)
	}
	i, ok := integralValue(index)
	if !ok {
		return jvm.Value{}, InternalError("arrayIndexEval", 1)
	}
	// Out-of-range and access failures surface as the reader's own message.
	return e.reader.ReadElement(source, i)
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

// unaryEval implements + - ~ ! with unary numeric promotion.
type unaryEval struct {
	op      string
	sig     jvm.Signature
	operand Evaluator
}

func (e *unaryEval) StaticType() jvm.Signature { return e.sig }

func (e *unaryEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	operand, msg := e.operand.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer operand.Release()

	if e.op == "!" {
		b, ok := operand.AsBool()
		if !ok {
			return jvm.Value{}, InternalError("unaryEval", 1)
		}
		return jvm.FromBool(!b), nil
	}

	promoted, ok := convertNumeric(operand, e.sig.Kind)
	if !ok {
		return jvm.Value{}, InternalError("unaryEval", 2)
	}
	switch e.op {
	case "+":
		return promoted, nil
	case "-":
		switch e.sig.Kind {
		case jvm.Int:
			i, _ := promoted.AsInt()
			return jvm.FromInt(-i), nil
		case jvm.Long:
			l, _ := promoted.AsLong()
			return jvm.FromLong(-l), nil
		case jvm.Float:
			f, _ := promoted.AsFloat()
			return jvm.FromFloat(-f), nil
		case jvm.Double:
			d, _ := promoted.AsDouble()
			return jvm.FromDouble(-d), nil
		}
	case "~":
		switch e.sig.Kind {
		case jvm.Int:
			i, _ := promoted.AsInt()
			return jvm.FromInt(^i), nil
		case jvm.Long:
			l, _ := promoted.AsLong()
			return jvm.FromLong(^l), nil
		}
	}
	return jvm.Value{}, InternalError("unaryEval", 3)
}

// ---------------------------------------------------------------------------
// Binary arithmetic
// ---------------------------------------------------------------------------

// arithmeticEval implements + - * / % on the promoted numeric kind.
type arithmeticEval struct {
	op    string
	kind  jvm.Kind // promoted result kind
	left  Evaluator
	right Evaluator
}

func (e *arithmeticEval) StaticType() jvm.Signature { return jvm.Primitive(e.kind) }

func (e *arithmeticEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	switch e.kind {
	case jvm.Int, jvm.Long:
		a, okA := promotedLong(left, e.kind)
		b, okB := promotedLong(right, e.kind)
		if !okA || !okB {
			return jvm.Value{}, InternalError("arithmeticEval", 1)
		}
		result, msg := integerArithmetic(e.op, a, b, e.kind)
		if msg != nil {
			return jvm.Value{}, msg
		}
		if e.kind == jvm.Int {
			return jvm.FromInt(int32(result)), nil
		}
		return jvm.FromLong(result), nil

	case jvm.Float:
		a, okA := promotedFloat32(left)
		b, okB := promotedFloat32(right)
		if !okA || !okB {
			return jvm.Value{}, InternalError("arithmeticEval", 2)
		}
		var result float32
		switch e.op {
		case "+":
			result = a + b
		case "-":
			result = a - b
		case "*":
			result = a * b
		case "/":
			result = a / b
		case "%":
			result = float32(math.Mod(float64(a), float64(b)))
		default:
			return jvm.Value{}, InternalError("arithmeticEval", 3)
		}
		return jvm.FromFloat(result), nil

	case jvm.Double:
		a, okA := floatingValue(left)
		b, okB := floatingValue(right)
		if !okA || !okB {
			return jvm.Value{}, InternalError("arithmeticEval", 5)
		}
		var result float64
		switch e.op {
		case "+":
			result = a + b
		case "-":
			result = a - b
		case "*":
			result = a * b
		case "/":
			result = a / b
		case "%":
			result = math.Mod(a, b)
		default:
			return jvm.Value{}, InternalError("arithmeticEval", 6)
		}
		return jvm.FromDouble(result), nil
	}
	return jvm.Value{}, InternalError("arithmeticEval", 4)
}

// integerArithmetic applies one int/long operation with Java's two special
// failure cases: division by zero and MIN_VALUE / -1 overflow.
func integerArithmetic(op string, a, b int64, kind jvm.Kind) (int64, *Message) {
	min := int64(math.MinInt64)
	if kind == jvm.Int {
		min = math.MinInt32
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, NewMessage(DivisionByZero)
		}
		if a == min && b == -1 {
			return 0, NewMessage(IntegerDivisionOverflow)
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, NewMessage(DivisionByZero)
		}
		if a == min && b == -1 {
			return 0, NewMessage(IntegerDivisionOverflow)
		}
		return a % b, nil
	}
	return 0, InternalError("integerArithmetic", 1)
}

// promotedLong converts a numeric value to the promoted integral kind and
// extracts it as int64 (already truncated to 32 bits for int).
func promotedLong(v jvm.Value, kind jvm.Kind) (int64, bool) {
	converted, ok := convertNumeric(v, kind)
	if !ok {
		return 0, false
	}
	return integralValue(converted)
}

// evaluatePair evaluates left then right, releasing left if right fails.
func evaluatePair(ctx *EvaluationContext, left, right Evaluator) (jvm.Value, jvm.Value, *Message) {
	lv, msg := left.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, jvm.Value{}, msg
	}
	rv, msg := right.Evaluate(ctx)
	if msg != nil {
		lv.Release()
		return jvm.Value{}, jvm.Value{}, msg
	}
	return lv, rv, nil
}

// ---------------------------------------------------------------------------
// Shifts
// ---------------------------------------------------------------------------

// shiftEval implements << >> >>>. The result kind is the unary-promoted
// left operand; the shift count is masked to 5 or 6 bits per the JLS.
type shiftEval struct {
	op    string
	kind  jvm.Kind // Int or Long
	left  Evaluator
	right Evaluator
}

func (e *shiftEval) StaticType() jvm.Signature { return jvm.Primitive(e.kind) }

func (e *shiftEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	count, ok := integralValue(right)
	if !ok {
		return jvm.Value{}, InternalError("shiftEval", 1)
	}

	if e.kind == jvm.Int {
		v, ok := promotedLong(left, jvm.Int)
		if !ok {
			return jvm.Value{}, InternalError("shiftEval", 2)
		}
		n := uint(count) & 0x1f
		i := int32(v)
		switch e.op {
		case "<<":
			return jvm.FromInt(i << n), nil
		case ">>":
			return jvm.FromInt(i >> n), nil
		case ">>>":
			return jvm.FromInt(int32(uint32(i) >> n)), nil
		}
		return jvm.Value{}, InternalError("shiftEval", 3)
	}

	v, ok := promotedLong(left, jvm.Long)
	if !ok {
		return jvm.Value{}, InternalError("shiftEval", 4)
	}
	n := uint(count) & 0x3f
	switch e.op {
	case "<<":
		return jvm.FromLong(v << n), nil
	case ">>":
		return jvm.FromLong(v >> n), nil
	case ">>>":
		return jvm.FromLong(int64(uint64(v) >> n)), nil
	}
	return jvm.Value{}, InternalError("shiftEval", 5)
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

// numericCompareEval implements < <= > >= == != over the promoted numeric
// kind of its operands.
type numericCompareEval struct {
	op    string
	kind  jvm.Kind // promoted comparison kind
	left  Evaluator
	right Evaluator
}

func (e *numericCompareEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *numericCompareEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	var cmp int // -1, 0, 1; NaN handled separately
	nan := false
	switch e.kind {
	case jvm.Int, jvm.Long:
		a, okA := promotedLong(left, e.kind)
		b, okB := promotedLong(right, e.kind)
		if !okA || !okB {
			return jvm.Value{}, InternalError("numericCompareEval", 1)
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	case jvm.Float, jvm.Double:
		a, okA := floatingValue(left)
		b, okB := floatingValue(right)
		if !okA || !okB {
			return jvm.Value{}, InternalError("numericCompareEval", 2)
		}
		switch {
		case math.IsNaN(a) || math.IsNaN(b):
			nan = true
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	default:
		return jvm.Value{}, InternalError("numericCompareEval", 3)
	}

	var result bool
	if nan {
		// All comparisons with NaN are false except !=.
		result = e.op == "!="
	} else {
		switch e.op {
		case "<":
			result = cmp < 0
		case "<=":
			result = cmp <= 0
		case ">":
			result = cmp > 0
		case ">=":
			result = cmp >= 0
		case "==":
			result = cmp == 0
		case "!=":
			result = cmp != 0
		}
	}
	return jvm.FromBool(result), nil
}

// boolCompareEval implements == and != on booleans.
type boolCompareEval struct {
	op    string
	left  Evaluator
	right Evaluator
}

func (e *boolCompareEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *boolCompareEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	a, okA := left.AsBool()
	b, okB := right.AsBool()
	if !okA || !okB {
		return jvm.Value{}, InternalError("boolCompareEval", 1)
	}
	if e.op == "!=" {
		return jvm.FromBool(a != b), nil
	}
	return jvm.FromBool(a == b), nil
}

// refCompareEval implements == and != on object references: identity
// comparison against the live objects, with null handled structurally.
type refCompareEval struct {
	op    string
	left  Evaluator
	right Evaluator
}

func (e *refCompareEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *refCompareEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	lref, okL := left.Ref()
	rref, okR := right.Ref()
	if !okL || !okR {
		return jvm.Value{}, InternalError("refCompareEval", 1)
	}
	var same bool
	switch {
	case lref == nil && rref == nil:
		same = true
	case lref == nil || rref == nil:
		same = false
	default:
		same = lref.SameObject(rref)
	}
	if e.op == "!=" {
		return jvm.FromBool(!same), nil
	}
	return jvm.FromBool(same), nil
}

// ---------------------------------------------------------------------------
// Bitwise and logical
// ---------------------------------------------------------------------------

// bitwiseEval implements & | ^ on promoted integral operands.
type bitwiseEval struct {
	op    string
	kind  jvm.Kind // Int or Long
	left  Evaluator
	right Evaluator
}

func (e *bitwiseEval) StaticType() jvm.Signature { return jvm.Primitive(e.kind) }

func (e *bitwiseEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	a, okA := promotedLong(left, e.kind)
	b, okB := promotedLong(right, e.kind)
	if !okA || !okB {
		return jvm.Value{}, InternalError("bitwiseEval", 1)
	}
	var result int64
	switch e.op {
	case "&":
		result = a & b
	case "|":
		result = a | b
	case "^":
		result = a ^ b
	default:
		return jvm.Value{}, InternalError("bitwiseEval", 2)
	}
	if e.kind == jvm.Int {
		return jvm.FromInt(int32(result)), nil
	}
	return jvm.FromLong(result), nil
}

// boolBitwiseEval implements the non-short-circuit & | ^ on booleans.
type boolBitwiseEval struct {
	op    string
	left  Evaluator
	right Evaluator
}

func (e *boolBitwiseEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *boolBitwiseEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, right, msg := evaluatePair(ctx, e.left, e.right)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer left.Release()
	defer right.Release()

	a, okA := left.AsBool()
	b, okB := right.AsBool()
	if !okA || !okB {
		return jvm.Value{}, InternalError("boolBitwiseEval", 1)
	}
	switch e.op {
	case "&":
		return jvm.FromBool(a && b), nil
	case "|":
		return jvm.FromBool(a || b), nil
	case "^":
		return jvm.FromBool(a != b), nil
	}
	return jvm.Value{}, InternalError("boolBitwiseEval", 2)
}

// condAndEval implements &&. The right operand is not evaluated when the
// left operand is false.
type condAndEval struct {
	left  Evaluator
	right Evaluator
}

func (e *condAndEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *condAndEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, msg := e.left.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	a, ok := left.AsBool()
	left.Release()
	if !ok {
		return jvm.Value{}, InternalError("condAndEval", 1)
	}
	if !a {
		return jvm.FromBool(false), nil
	}
	right, msg := e.right.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	b, ok := right.AsBool()
	right.Release()
	if !ok {
		return jvm.Value{}, InternalError("condAndEval", 2)
	}
	return jvm.FromBool(b), nil
}

// condOrEval implements ||. The right operand is not evaluated when the
// left operand is true.
type condOrEval struct {
	left  Evaluator
	right Evaluator
}

func (e *condOrEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *condOrEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	left, msg := e.left.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	a, ok := left.AsBool()
	left.Release()
	if !ok {
		return jvm.Value{}, InternalError("condOrEval", 1)
	}
	if a {
		return jvm.FromBool(true), nil
	}
	right, msg := e.right.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	b, ok := right.AsBool()
	right.Release()
	if !ok {
		return jvm.Value{}, InternalError("condOrEval", 2)
	}
	return jvm.FromBool(b), nil
}

// ---------------------------------------------------------------------------
// Conditional, instanceof, casts
// ---------------------------------------------------------------------------

// conditionalEval implements cond ? then : els. Only the selected branch is
// evaluated; numeric branches convert to the unified result kind.
type conditionalEval struct {
	sig  jvm.Signature
	cond Evaluator
	then Evaluator
	els  Evaluator
}

func (e *conditionalEval) StaticType() jvm.Signature { return e.sig }

func (e *conditionalEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	cond, msg := e.cond.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	b, ok := cond.AsBool()
	cond.Release()
	if !ok {
		return jvm.Value{}, InternalError("conditionalEval", 1)
	}
	branch := e.els
	if b {
		branch = e.then
	}
	value, msg := branch.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	if e.sig.Kind != jvm.Object && value.Type() != e.sig.Kind {
		converted, ok := convertNumeric(value, e.sig.Kind)
		value.Release()
		if !ok {
			return jvm.Value{}, InternalError("conditionalEval", 2)
		}
		return converted, nil
	}
	return value, nil
}

// instanceofEval tests the runtime class of its operand against a target
// type. A null operand yields true; downstream callers rely on that exact
// behavior.
type instanceofEval struct {
	operand    Evaluator
	targetName string // internal form
	factory    ReadersFactory
}

func (e *instanceofEval) StaticType() jvm.Signature { return jvm.Primitive(jvm.Boolean) }

func (e *instanceofEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	operand, msg := e.operand.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer operand.Release()

	ref, ok := operand.Ref()
	if !ok {
		return jvm.Value{}, InternalError("instanceofEval", 1)
	}
	if ref == nil {
		return jvm.FromBool(true), nil
	}
	target, found := e.factory.FindClassByName(e.targetName)
	if !found {
		return jvm.Value{}, NewMessage(ReferenceTypeNotFound, jvm.Dotted(e.targetName))
	}
	runtime := jvm.Class(ref.ClassSignature())
	return jvm.FromBool(e.factory.IsAssignable(runtime, target)), nil
}

// primitiveCastEval applies a compile-time-approved numeric conversion.
type primitiveCastEval struct {
	kind    jvm.Kind
	operand Evaluator
}

func (e *primitiveCastEval) StaticType() jvm.Signature { return jvm.Primitive(e.kind) }

func (e *primitiveCastEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	operand, msg := e.operand.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	defer operand.Release()
	converted, ok := convertNumeric(operand, e.kind)
	if !ok {
		return jvm.Value{}, InternalError("primitiveCastEval", 1)
	}
	return converted, nil
}

// referenceCastEval performs the deferred runtime type check of a reference
// cast. null passes; a live type mismatch fails with the receiver's actual
// class and the target class.
type referenceCastEval struct {
	targetSigName string // internal form
	operand       Evaluator
	factory       ReadersFactory
}

func (e *referenceCastEval) StaticType() jvm.Signature {
	return jvm.Class(e.targetSigName)
}

func (e *referenceCastEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	operand, msg := e.operand.Evaluate(ctx)
	if msg != nil {
		return jvm.Value{}, msg
	}
	ref, ok := operand.Ref()
	if !ok {
		operand.Release()
		return jvm.Value{}, InternalError("referenceCastEval", 1)
	}
	if ref == nil {
		return operand, nil
	}
	target, found := e.factory.FindClassByName(e.targetSigName)
	if !found {
		operand.Release()
		return jvm.Value{}, NewMessage(ReferenceTypeNotFound, jvm.Dotted(e.targetSigName))
	}
	runtime := jvm.Class(ref.ClassSignature())
	if !e.factory.IsAssignable(runtime, target) {
		actual := jvm.Dotted(ref.ClassSignature())
		operand.Release()
		return jvm.Value{}, NewMessage(TypeCastEvaluateInvalid, actual, jvm.Dotted(e.targetSigName))
	}
	return operand, nil
}
