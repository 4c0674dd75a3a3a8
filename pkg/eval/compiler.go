package eval

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/chazu/loupe/pkg/jvm"
)

// Default resource limits. Both exist to bound evaluator stack usage and
// protect the host process; configuration may lower but not raise them.
const (
	DefaultMaxExpressionLength = 2048
	DefaultMaxTreeDepth        = 25
)

// Options bounds compilation resources.
type Options struct {
	MaxExpressionLength int
	MaxTreeDepth        int
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		MaxExpressionLength: DefaultMaxExpressionLength,
		MaxTreeDepth:        DefaultMaxTreeDepth,
	}
}

func (o Options) normalized() Options {
	out := o
	if out.MaxExpressionLength <= 0 || out.MaxExpressionLength > DefaultMaxExpressionLength {
		out.MaxExpressionLength = DefaultMaxExpressionLength
	}
	if out.MaxTreeDepth <= 0 || out.MaxTreeDepth > DefaultMaxTreeDepth {
		out.MaxTreeDepth = DefaultMaxTreeDepth
	}
	return out
}

// CompiledExpression owns the evaluator tree compiled from one source
// expression, or the structured compile error. Exactly one of the two
// holds. The tree is a DAG rooted at a single node; its lifetime (and that
// of any debuggee references held by literal nodes) ends at Release.
type CompiledExpression struct {
	source string
	root   Evaluator
	err    *Message
	owned  []jvm.Value
}

// Source returns the original expression text.
func (ce *CompiledExpression) Source() string { return ce.source }

// Err returns the compile error, or nil if compilation succeeded.
func (ce *CompiledExpression) Err() *Message { return ce.err }

// IsDeferred reports the soft failure mode: the expression references a
// class that is not loaded yet and compilation should be re-attempted when
// it loads.
func (ce *CompiledExpression) IsDeferred() bool { return ce.err.IsDeferred() }

// StaticType returns the root node's compile-time type.
func (ce *CompiledExpression) StaticType() jvm.Signature {
	if ce.root == nil {
		return jvm.Signature{}
	}
	return ce.root.StaticType()
}

// Evaluate runs the compiled tree against the current frame.
func (ce *CompiledExpression) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	if ce.root == nil {
		if ce.err != nil {
			return jvm.Value{}, ce.err
		}
		return jvm.Value{}, InternalError("CompiledExpression", 1)
	}
	return ce.root.Evaluate(ctx)
}

// Release drops debuggee references held by literal nodes. The expression
// must not be evaluated afterwards.
func (ce *CompiledExpression) Release() {
	for i := range ce.owned {
		ce.owned[i].Release()
	}
	ce.owned = nil
}

// Compiler turns expression source strings into compiled evaluator trees.
// All symbol resolution goes through the injected ReadersFactory, which is
// what keeps this compiler independent of a live JVM.
type Compiler struct {
	factory ReadersFactory
	opts    Options
}

// NewCompiler creates a compiler bound to one compilation context.
func NewCompiler(factory ReadersFactory, opts Options) *Compiler {
	return &Compiler{factory: factory, opts: opts.normalized()}
}

// Compile compiles source. The result always carries either a root or an
// error; a ClassNotLoaded error marks a deferred (retryable) compilation.
func (c *Compiler) Compile(source string) *CompiledExpression {
	ce := &CompiledExpression{source: source}

	if len(source) > c.opts.MaxExpressionLength {
		ce.err = NewMessage(ExpressionTooLong, strconv.Itoa(c.opts.MaxExpressionLength))
		return ce
	}

	tokens, msg := tokenize(source)
	if msg != nil {
		ce.err = msg
		return ce
	}

	root, msg := parseExpression(tokens)
	if msg != nil {
		ce.err = msg
		return ce
	}

	if astDepth(root) > c.opts.MaxTreeDepth {
		ce.err = NewMessage(ExpressionTreeTooDeep)
		return ce
	}

	walker := &compilation{factory: c.factory}
	evaluator, msg := walker.compile(root)
	if msg != nil {
		walker.releaseOwned()
		ce.err = msg
		return ce
	}
	ce.root = evaluator
	ce.owned = walker.owned
	return ce
}

// compilation is the state of one compile pass: the resolution seam plus
// any debuggee references created for literals (owned by the resulting
// CompiledExpression).
type compilation struct {
	factory ReadersFactory
	owned   []jvm.Value
}

func (c *compilation) releaseOwned() {
	for i := range c.owned {
		c.owned[i].Release()
	}
	c.owned = nil
}

func (c *compilation) compile(node astNode) (Evaluator, *Message) {
	switch n := node.(type) {
	case *astLiteral:
		return c.compileLiteral(n)
	case *astBoolLiteral:
		return &literalEval{sig: jvm.Primitive(jvm.Boolean), value: jvm.FromBool(n.value)}, nil
	case *astNullLiteral:
		return &literalEval{sig: jvm.NullSig, value: jvm.Null()}, nil
	case *astIdentifier:
		return c.compileIdentifier(n.name)
	case *astSelect:
		return c.compileSelect(n)
	case *astIndex:
		return c.compileIndex(n)
	case *astUnary:
		return c.compileUnary(n)
	case *astBinary:
		return c.compileBinary(n)
	case *astConditional:
		return c.compileConditional(n)
	case *astInstanceof:
		return c.compileInstanceof(n)
	case *astCast:
		return c.compileCast(n)
	case *astCall:
		return c.compileCall(n)
	}
	return nil, InternalError("compile", 1)
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

func (c *compilation) compileLiteral(n *astLiteral) (Evaluator, *Message) {
	switch n.tok.kind {
	case tokIntLiteral:
		return compileIntLiteral(n.tok.text)
	case tokFloatLiteral:
		return compileFloatLiteral(n.tok.text)
	case tokCharLiteral:
		units := utf16.Encode([]rune(n.tok.text))
		if len(units) != 1 {
			return nil, NewMessage(ExpressionParserError)
		}
		return &literalEval{sig: jvm.Primitive(jvm.Char), value: jvm.FromChar(units[0])}, nil
	case tokStringLiteral:
		value, msg := c.factory.CreateStringObject(n.tok.text)
		if msg != nil {
			return nil, msg
		}
		c.owned = append(c.owned, value)
		return &literalEval{sig: jvm.StringSig, value: value}, nil
	}
	return nil, InternalError("compileLiteral", 1)
}

// compileIntLiteral parses decimal, hex and octal integer literals. A
// literal that overflows its target width is a hard compile error carrying
// the exact source spelling, never a silent truncation. Hex and octal
// spellings may use the full unsigned bit pattern, as in Java.
func compileIntLiteral(text string) (Evaluator, *Message) {
	digits := text
	isLong := false
	if strings.HasSuffix(digits, "l") || strings.HasSuffix(digits, "L") {
		isLong = true
		digits = digits[:len(digits)-1]
	}

	bad := func() (Evaluator, *Message) {
		return nil, NewMessage(BadNumericLiteral, text)
	}

	var base int
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		base = 16
		digits = digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base = 8
		digits = digits[1:]
	default:
		base = 10
	}

	if base == 10 {
		value, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return bad()
		}
		if isLong {
			return longLiteral(value), nil
		}
		if value > 0x7fffffff {
			return bad()
		}
		return intLiteral(int32(value)), nil
	}

	value, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return bad()
	}
	if isLong {
		return longLiteral(int64(value)), nil
	}
	if value > 0xffffffff {
		return bad()
	}
	return intLiteral(int32(uint32(value))), nil
}

func compileFloatLiteral(text string) (Evaluator, *Message) {
	digits := text
	isFloat := false
	switch {
	case strings.HasSuffix(digits, "f") || strings.HasSuffix(digits, "F"):
		isFloat = true
		digits = digits[:len(digits)-1]
	case strings.HasSuffix(digits, "d") || strings.HasSuffix(digits, "D"):
		digits = digits[:len(digits)-1]
	}
	if isFloat {
		value, err := strconv.ParseFloat(digits, 32)
		if err != nil {
			return nil, NewMessage(BadNumericLiteral, text)
		}
		return &literalEval{sig: jvm.Primitive(jvm.Float), value: jvm.FromFloat(float32(value))}, nil
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil, NewMessage(BadNumericLiteral, text)
	}
	return &literalEval{sig: jvm.Primitive(jvm.Double), value: jvm.FromDouble(value)}, nil
}

func intLiteral(v int32) Evaluator {
	return &literalEval{sig: jvm.Primitive(jvm.Int), value: jvm.FromInt(v)}
}

func longLiteral(v int64) Evaluator {
	return &literalEval{sig: jvm.Primitive(jvm.Long), value: jvm.FromLong(v)}
}

// ---------------------------------------------------------------------------
// Identifier and member resolution
// ---------------------------------------------------------------------------

// compileIdentifier resolves a bare name in order: local variable, implicit
// local-instance field, static field of the enclosing class. A bare name
// that resolves to nothing is definitively unknown.
func (c *compilation) compileIdentifier(name string) (Evaluator, *Message) {
	if reader, ok := c.factory.GetLocalVariableReader(name); ok {
		return &localVarEval{reader: reader}, nil
	}

	epClass := c.factory.GetEvaluationPointClassName()
	if reader, ok := c.factory.GetInstanceFieldReader(epClass, name); ok {
		if thisReader, ok := c.factory.GetLocalVariableReader("this"); ok {
			return &instanceFieldEval{
				source: &localVarEval{reader: thisReader},
				reader: reader,
			}, nil
		}
	}

	if reader, ok := c.factory.GetStaticFieldReader(epClass, name); ok {
		return &staticFieldEval{reader: reader}, nil
	}

	return nil, NewMessage(InvalidIdentifier, name)
}

func (c *compilation) compileSelect(n *astSelect) (Evaluator, *Message) {
	base, baseMsg := c.compile(n.base)
	if baseMsg == nil {
		return c.compileFieldAccess(base, n.name)
	}

	// The base is not a value; a pure identifier chain may instead be a
	// qualified class name with a trailing static-field path.
	parts, pure := flattenChain(n)
	if !pure {
		return nil, baseMsg
	}
	return c.compileQualifiedChain(parts, baseMsg)
}

// compileFieldAccess builds an instance-field read on an already-compiled
// source expression.
func (c *compilation) compileFieldAccess(source Evaluator, name string) (Evaluator, *Message) {
	sig := source.StaticType()
	if sig.Kind != jvm.Object {
		return nil, NewMessage(PrimitiveTypeField, name)
	}
	className := sig.ClassName
	if className == "" {
		className = "java/lang/Object"
	}
	reader, ok := c.factory.GetInstanceFieldReader(className, name)
	if !ok {
		return nil, NewMessage(InvalidIdentifier, name)
	}
	return &instanceFieldEval{source: source, reader: reader}, nil
}

// flattenChain flattens a select chain into its dotted parts. pure is false
// when any link is not a plain identifier.
func flattenChain(node astNode) ([]string, bool) {
	switch n := node.(type) {
	case *astIdentifier:
		return []string{n.name}, true
	case *astSelect:
		parts, ok := flattenChain(n.base)
		if !ok {
			return nil, false
		}
		return append(parts, n.name), true
	}
	return nil, false
}

// compileQualifiedChain resolves parts as the longest loadable class prefix
// followed by one static field and zero or more instance fields. A chain
// whose every prefix fails class lookup is attributed to a class that has
// not loaded yet, which defers compilation rather than failing it; fallback
// is the original resolution error when the chain has no class reading.
func (c *compilation) compileQualifiedChain(parts []string, baseMsg *Message) (Evaluator, *Message) {
	for split := len(parts) - 1; split >= 1; split-- {
		className := jvm.Internal(strings.Join(parts[:split], "."))
		classSig, found := c.factory.FindClassByName(className)
		if !found {
			continue
		}
		reader, ok := c.factory.GetStaticFieldReader(classSig.ClassName, parts[split])
		if !ok {
			return nil, NewMessage(InvalidIdentifier, parts[split])
		}
		var result Evaluator = &staticFieldEval{reader: reader}
		for _, fieldName := range parts[split+1:] {
			next, msg := c.compileFieldAccess(result, fieldName)
			if msg != nil {
				return nil, msg
			}
			result = next
		}
		return result, nil
	}

	if len(parts) < 2 {
		return nil, baseMsg
	}
	return nil, NewMessage(ClassNotLoaded, strings.Join(parts, "."))
}

// ---------------------------------------------------------------------------
// Indexing, unary, binary
// ---------------------------------------------------------------------------

func (c *compilation) compileIndex(n *astIndex) (Evaluator, *Message) {
	source, msg := c.compile(n.array)
	if msg != nil {
		return nil, msg
	}
	index, msg := c.compile(n.index)
	if msg != nil {
		return nil, msg
	}

	arraySig := source.StaticType()
	if !arraySig.IsArray() {
		return nil, NewMessage(ArrayTypeExpected, arraySig.DisplayName())
	}
	if !index.StaticType().Kind.IsIntegral() {
		return nil, NewMessage(ArrayIndexNotInteger)
	}

	elemSig, ok := arraySig.Element()
	if !ok {
		return nil, InternalError("compileIndex", 1)
	}
	reader := c.factory.CreateArrayReader(arraySig)
	if reader == nil {
		return nil, InternalError("compileIndex", 2)
	}
	return &arrayIndexEval{elemSig: elemSig, source: source, index: index, reader: reader}, nil
}

func (c *compilation) compileUnary(n *astUnary) (Evaluator, *Message) {
	operand, msg := c.compile(n.operand)
	if msg != nil {
		return nil, msg
	}
	kind := operand.StaticType().Kind

	switch n.op {
	case "!":
		if kind != jvm.Boolean {
			return nil, NewMessage(TypeMismatch, n.op)
		}
		return &unaryEval{op: n.op, sig: jvm.Primitive(jvm.Boolean), operand: operand}, nil
	case "~":
		if !kind.IsIntegral() {
			return nil, NewMessage(TypeMismatch, n.op)
		}
		return &unaryEval{op: n.op, sig: jvm.Primitive(promoteUnary(kind)), operand: operand}, nil
	case "+", "-":
		if !kind.IsNumeric() {
			return nil, NewMessage(TypeMismatch, n.op)
		}
		return &unaryEval{op: n.op, sig: jvm.Primitive(promoteUnary(kind)), operand: operand}, nil
	}
	return nil, InternalError("compileUnary", 1)
}

func (c *compilation) compileBinary(n *astBinary) (Evaluator, *Message) {
	left, msg := c.compile(n.left)
	if msg != nil {
		return nil, msg
	}
	right, msg := c.compile(n.right)
	if msg != nil {
		return nil, msg
	}
	lk := left.StaticType().Kind
	rk := right.StaticType().Kind
	mismatch := func() (Evaluator, *Message) {
		return nil, NewMessage(TypeMismatch, n.op)
	}

	switch n.op {
	case "+", "-", "*", "/", "%":
		kind, ok := promoteBinary(lk, rk)
		if !ok {
			return mismatch()
		}
		return &arithmeticEval{op: n.op, kind: kind, left: left, right: right}, nil

	case "<<", ">>", ">>>":
		if !lk.IsIntegral() || !rk.IsIntegral() {
			return mismatch()
		}
		return &shiftEval{op: n.op, kind: promoteUnary(lk), left: left, right: right}, nil

	case "<", "<=", ">", ">=":
		kind, ok := promoteBinary(lk, rk)
		if !ok {
			return mismatch()
		}
		return &numericCompareEval{op: n.op, kind: kind, left: left, right: right}, nil

	case "==", "!=":
		if kind, ok := promoteBinary(lk, rk); ok {
			return &numericCompareEval{op: n.op, kind: kind, left: left, right: right}, nil
		}
		if lk == jvm.Boolean && rk == jvm.Boolean {
			return &boolCompareEval{op: n.op, left: left, right: right}, nil
		}
		if lk == jvm.Object && rk == jvm.Object {
			return &refCompareEval{op: n.op, left: left, right: right}, nil
		}
		return mismatch()

	case "&", "|", "^":
		if lk == jvm.Boolean && rk == jvm.Boolean {
			return &boolBitwiseEval{op: n.op, left: left, right: right}, nil
		}
		if lk.IsIntegral() && rk.IsIntegral() {
			kind, _ := promoteBinary(lk, rk)
			return &bitwiseEval{op: n.op, kind: kind, left: left, right: right}, nil
		}
		return mismatch()

	case "&&":
		if lk != jvm.Boolean || rk != jvm.Boolean {
			return mismatch()
		}
		return &condAndEval{left: left, right: right}, nil
	case "||":
		if lk != jvm.Boolean || rk != jvm.Boolean {
			return mismatch()
		}
		return &condOrEval{left: left, right: right}, nil
	}
	return nil, InternalError("compileBinary", 1)
}

// ---------------------------------------------------------------------------
// Conditional, instanceof, cast
// ---------------------------------------------------------------------------

func (c *compilation) compileConditional(n *astConditional) (Evaluator, *Message) {
	cond, msg := c.compile(n.cond)
	if msg != nil {
		return nil, msg
	}
	if cond.StaticType().Kind != jvm.Boolean {
		return nil, NewMessage(TypeMismatch, "?:")
	}
	then, msg := c.compile(n.then)
	if msg != nil {
		return nil, msg
	}
	els, msg := c.compile(n.els)
	if msg != nil {
		return nil, msg
	}

	sig, ok := unifyConditional(then.StaticType(), els.StaticType())
	if !ok {
		return nil, NewMessage(TypeMismatch, "?:")
	}
	return &conditionalEval{sig: sig, cond: cond, then: then, els: els}, nil
}

// unifyConditional resolves the result type of ?: per the supported subset:
// identical types, binary numeric promotion, or reference types unified to
// the common type (falling back to java.lang.Object).
func unifyConditional(a, b jvm.Signature) (jvm.Signature, bool) {
	if a == b {
		return a, true
	}
	if kind, ok := promoteBinary(a.Kind, b.Kind); ok {
		return jvm.Primitive(kind), true
	}
	if a.Kind == jvm.Object && b.Kind == jvm.Object {
		switch {
		case a.IsNullType():
			return b, true
		case b.IsNullType():
			return a, true
		default:
			return jvm.ObjectSig, true
		}
	}
	return jvm.Signature{}, false
}

func (c *compilation) compileInstanceof(n *astInstanceof) (Evaluator, *Message) {
	operand, msg := c.compile(n.operand)
	if msg != nil {
		return nil, msg
	}
	if operand.StaticType().Kind != jvm.Object {
		return nil, NewMessage(TypeMismatch, "instanceof")
	}
	internal := jvm.Internal(n.typeName)
	if _, found := c.factory.FindClassByName(internal); !found {
		return nil, NewMessage(ClassNotLoaded, n.typeName)
	}
	return &instanceofEval{operand: operand, targetName: internal, factory: c.factory}, nil
}

// boxedWrappers are the reference types a primitive could only reach through
// autoboxing, which this engine does not implement.
var boxedWrappers = map[string]bool{
	"java.lang.Boolean":   true,
	"java.lang.Character": true,
	"java.lang.Byte":      true,
	"java.lang.Short":     true,
	"java.lang.Integer":   true,
	"java.lang.Long":      true,
	"java.lang.Float":     true,
	"java.lang.Double":    true,
	"java.lang.Number":    true,
	"java.lang.Object":    true,
}

func (c *compilation) compileCast(n *astCast) (Evaluator, *Message) {
	operand, msg := c.compile(n.operand)
	if msg != nil {
		return nil, msg
	}
	operandSig := operand.StaticType()

	if n.isPrimitive {
		switch {
		case n.kind == jvm.Boolean && operandSig.Kind == jvm.Boolean:
			return operand, nil
		case n.kind.IsNumeric() && operandSig.Kind.IsNumeric():
			return &primitiveCastEval{kind: n.kind, operand: operand}, nil
		default:
			// Boolean/numeric mixes and object-to-primitive casts are
			// compile errors; no autoboxing exists.
			return nil, NewMessage(TypeCastCompileInvalid, operandSig.DisplayName(), n.kind.String())
		}
	}

	if operandSig.Kind != jvm.Object {
		if boxedWrappers[n.typeName] {
			return nil, NewMessage(TypeCastUnsupported, n.typeName)
		}
		return nil, NewMessage(TypeCastCompileInvalid, operandSig.DisplayName(), n.typeName)
	}

	// Reference casts defer the type test to evaluation time.
	return &referenceCastEval{
		targetSigName: jvm.Internal(n.typeName),
		operand:       operand,
		factory:       c.factory,
	}, nil
}

// ---------------------------------------------------------------------------
// Method calls
// ---------------------------------------------------------------------------

func (c *compilation) compileCall(n *astCall) (Evaluator, *Message) {
	args := make([]Evaluator, 0, len(n.args))
	for _, argNode := range n.args {
		arg, msg := c.compile(argNode)
		if msg != nil {
			return nil, msg
		}
		args = append(args, arg)
	}

	if n.base == nil {
		return c.compileImplicitCall(n.name, args)
	}

	base, baseMsg := c.compile(n.base)
	if baseMsg == nil {
		return c.compileInstanceCall(base, n.name, args)
	}

	parts, pure := flattenChain(n.base)
	if !pure {
		return nil, baseMsg
	}
	className := jvm.Internal(strings.Join(parts, "."))
	classSig, found := c.factory.FindClassByName(className)
	if !found {
		// Possibly a static call on a class that has not loaded yet.
		return nil, NewMessage(ClassNotLoaded, strings.Join(parts, "."))
	}

	candidates, msg := c.factory.FindStaticMethods(classSig, n.name)
	if msg != nil {
		return nil, msg
	}
	return c.selectAndBuild(n.name, classSig.DisplayName(), candidates, nil, args,
		NewMessage(StaticMethodNotFound, n.name, classSig.DisplayName()))
}

// compileImplicitCall resolves m(args) against the local instance/static
// context of the evaluation point.
func (c *compilation) compileImplicitCall(name string, args []Evaluator) (Evaluator, *Message) {
	epClass := c.factory.GetEvaluationPointClassName()
	epDisplay := jvm.Dotted(epClass)

	candidates, msg := c.factory.FindLocalInstanceMethods(name)
	if msg != nil {
		return nil, msg
	}

	var receiver Evaluator
	if thisReader, ok := c.factory.GetLocalVariableReader("this"); ok {
		receiver = &localVarEval{reader: thisReader}
	}

	return c.selectAndBuild(name, epDisplay, candidates, receiver, args,
		NewMessage(ImplicitMethodNotFound, name, epDisplay))
}

// compileInstanceCall resolves receiver.m(args) against the receiver's
// static type.
func (c *compilation) compileInstanceCall(receiver Evaluator, name string, args []Evaluator) (Evaluator, *Message) {
	sig := receiver.StaticType()
	if sig.Kind != jvm.Object {
		return nil, NewMessage(MethodCallOnPrimitiveType, name, sig.DisplayName())
	}
	class := sig
	if class.ClassName == "" || class.IsArray() {
		class = jvm.ObjectSig
	}
	candidates, msg := c.factory.FindInstanceMethods(class, name)
	if msg != nil {
		return nil, msg
	}
	return c.selectAndBuild(name, class.DisplayName(), candidates, receiver, args,
		NewMessage(InstanceMethodNotFound, name, class.DisplayName()))
}

// selectAndBuild applies the overload tie-break rules to the candidate set
// and constructs the call node:
//   - zero visible/allowed candidates: the supplied not-found error;
//   - duplicate erased signatures in the candidate set: ambiguous call;
//   - no argument-compatible candidate: single- or multiple-candidate
//     mismatch depending on the candidate count;
//   - more than one compatible candidate: multiple-candidate mismatch.
func (c *compilation) selectAndBuild(name, className string, candidates []jvm.Method,
	receiver Evaluator, args []Evaluator, notFound *Message) (Evaluator, *Message) {

	allowed := candidates[:0:0]
	for _, m := range candidates {
		if c.factory.IsMethodCallAllowed(m) {
			allowed = append(allowed, m)
		}
	}
	if len(allowed) == 0 {
		return nil, notFound
	}

	seen := map[string]bool{}
	for _, m := range allowed {
		if seen[m.Signature] {
			return nil, NewMessage(AmbiguousMethodCall, name, className)
		}
		seen[m.Signature] = true
	}

	type match struct {
		method jvm.Method
		params []jvm.Signature
		ret    jvm.Signature
	}
	var matches []match
	for _, m := range allowed {
		params, ret, ok := m.ParseSignature()
		if !ok {
			return nil, InternalError("selectAndBuild", 1)
		}
		if c.argumentsCompatible(params, args) {
			matches = append(matches, match{method: m, params: params, ret: ret})
		}
	}

	switch {
	case len(matches) == 0 && len(allowed) == 1:
		return nil, NewMessage(MethodCallArgumentsMismatchSingleCandidate, name)
	case len(matches) == 0:
		return nil, NewMessage(MethodCallArgumentsMismatchMultipleCandidates, name)
	case len(matches) > 1:
		return nil, NewMessage(MethodCallArgumentsMismatchMultipleCandidates, name)
	}

	chosen := matches[0]
	callReceiver := receiver
	if chosen.method.IsStatic() {
		callReceiver = nil
	} else if callReceiver == nil {
		return nil, notFound
	}

	return &methodCallEval{
		method:    chosen.method,
		retSig:    chosen.ret,
		paramSigs: chosen.params,
		receiver:  callReceiver,
		args:      args,
	}, nil
}

// argumentsCompatible checks the call arguments against one candidate's
// parameter list using the supported implicit conversions: identity and
// primitive widening for primitives, assignability (or null) for
// references. No boxing in either direction.
func (c *compilation) argumentsCompatible(params []jvm.Signature, args []Evaluator) bool {
	if len(params) != len(args) {
		return false
	}
	for i, param := range params {
		argSig := args[i].StaticType()
		if param.Kind != jvm.Object {
			if argSig.Kind == jvm.Object || argSig.Kind == jvm.Boolean && param.Kind != jvm.Boolean {
				return false
			}
			if !isWideningConversion(argSig.Kind, param.Kind) {
				return false
			}
			continue
		}
		if argSig.Kind != jvm.Object {
			return false
		}
		if argSig.IsNullType() {
			continue
		}
		if !c.factory.IsAssignable(argSig, param) {
			return false
		}
	}
	return true
}
