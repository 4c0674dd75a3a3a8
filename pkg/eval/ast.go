package eval

import "github.com/chazu/loupe/pkg/jvm"

// Parse-tree nodes. The parser produces these; the compiler walks them and
// resolves types, symbols and overloads to build the evaluator tree.

type astNode interface {
	exprNode()
}

// astLiteral holds a numeric, char or string literal token. Range checking
// of numeric spellings happens at compile, not parse.
type astLiteral struct {
	tok token
}

func (*astLiteral) exprNode() {}

// astBoolLiteral is true or false.
type astBoolLiteral struct {
	value bool
}

func (*astBoolLiteral) exprNode() {}

// astNullLiteral is the null keyword.
type astNullLiteral struct{}

func (*astNullLiteral) exprNode() {}

// astIdentifier is a bare name: local variable, field, or leading segment of
// a qualified class name.
type astIdentifier struct {
	name string
}

func (*astIdentifier) exprNode() {}

// astSelect is base.name: field access or a further segment of a qualified
// name.
type astSelect struct {
	base astNode
	name string
}

func (*astSelect) exprNode() {}

// astIndex is array[index].
type astIndex struct {
	array astNode
	index astNode
}

func (*astIndex) exprNode() {}

// astCall is a method call. A nil base is an unqualified call resolved
// against the local instance/static context.
type astCall struct {
	base astNode
	name string
	args []astNode
}

func (*astCall) exprNode() {}

// astUnary is one of + - ~ !.
type astUnary struct {
	op      string
	operand astNode
}

func (*astUnary) exprNode() {}

// astBinary covers arithmetic, shift, relational, equality, bitwise and
// conditional-logical operators.
type astBinary struct {
	op    string
	left  astNode
	right astNode
}

func (*astBinary) exprNode() {}

// astConditional is cond ? then : els.
type astConditional struct {
	cond astNode
	then astNode
	els  astNode
}

func (*astConditional) exprNode() {}

// astInstanceof is operand instanceof typeName. Primitive, array and null
// targets are rejected by the parser.
type astInstanceof struct {
	operand  astNode
	typeName string // dotted source form
}

func (*astInstanceof) exprNode() {}

// astCast is a C-style cast. Either a primitive target kind or a dotted
// reference type name.
type astCast struct {
	isPrimitive bool
	kind        jvm.Kind // primitive casts
	typeName    string   // reference casts, dotted source form
	operand     astNode
}

func (*astCast) exprNode() {}

// astDepth measures the height of the parse tree. The compiler rejects trees
// deeper than the configured maximum to bound evaluator stack usage.
func astDepth(n astNode) int {
	max := 0
	grow := func(children ...astNode) {
		for _, c := range children {
			if c == nil {
				continue
			}
			if d := astDepth(c); d > max {
				max = d
			}
		}
	}
	switch node := n.(type) {
	case *astSelect:
		grow(node.base)
	case *astIndex:
		grow(node.array, node.index)
	case *astCall:
		grow(node.base)
		grow(node.args...)
	case *astUnary:
		grow(node.operand)
	case *astBinary:
		grow(node.left, node.right)
	case *astConditional:
		grow(node.cond, node.then, node.els)
	case *astInstanceof:
		grow(node.operand)
	case *astCast:
		grow(node.operand)
	}
	return max + 1
}
