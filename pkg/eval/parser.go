package eval

import "github.com/chazu/loupe/pkg/jvm"

// parser is a standard operator-precedence recursive-descent parser over the
// token slice. Cast-vs-parenthesis ambiguity is resolved by tentative
// parsing: the token position is saved, a cast parse attempted, and the
// position restored on failure.
type parser struct {
	tokens []token
	pos    int
}

// primitiveKinds maps type keywords to value kinds for casts.
var primitiveKinds = map[string]jvm.Kind{
	"boolean": jvm.Boolean,
	"char":    jvm.Char,
	"byte":    jvm.Byte,
	"short":   jvm.Short,
	"int":     jvm.Int,
	"long":    jvm.Long,
	"float":   jvm.Float,
	"double":  jvm.Double,
}

// parseExpression parses a complete expression, requiring all input be
// consumed.
func parseExpression(tokens []token) (astNode, *Message) {
	p := &parser{tokens: tokens}
	node, msg := p.conditional()
	if msg != nil {
		return nil, msg
	}
	if p.peek().kind != tokEOF {
		return nil, NewMessage(ExpressionParserError)
	}
	return node, nil
}

func (p *parser) peek() token {
	if p.pos >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOperator {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.advance()
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(kind tokenType) *Message {
	if p.peek().kind != kind {
		return NewMessage(ExpressionParserError)
	}
	p.advance()
	return nil
}

// conditional = or [ '?' conditional ':' conditional ]
func (p *parser) conditional() (astNode, *Message) {
	cond, msg := p.logicalOr()
	if msg != nil {
		return nil, msg
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.advance()
	then, msg := p.conditional()
	if msg != nil {
		return nil, msg
	}
	if msg := p.expect(tokColon); msg != nil {
		return nil, msg
	}
	els, msg := p.conditional()
	if msg != nil {
		return nil, msg
	}
	return &astConditional{cond: cond, then: then, els: els}, nil
}

// binaryLevel parses one left-associative precedence level.
func (p *parser) binaryLevel(next func() (astNode, *Message), ops ...string) (astNode, *Message) {
	left, msg := next()
	if msg != nil {
		return nil, msg
	}
	for {
		op, ok := p.acceptOp(ops...)
		if !ok {
			return left, nil
		}
		right, msg := next()
		if msg != nil {
			return nil, msg
		}
		left = &astBinary{op: op, left: left, right: right}
	}
}

func (p *parser) logicalOr() (astNode, *Message) {
	return p.binaryLevel(p.logicalAnd, "||")
}

func (p *parser) logicalAnd() (astNode, *Message) {
	return p.binaryLevel(p.bitwiseOr, "&&")
}

func (p *parser) bitwiseOr() (astNode, *Message) {
	return p.binaryLevel(p.bitwiseXor, "|")
}

func (p *parser) bitwiseXor() (astNode, *Message) {
	return p.binaryLevel(p.bitwiseAnd, "^")
}

func (p *parser) bitwiseAnd() (astNode, *Message) {
	return p.binaryLevel(p.equality, "&")
}

func (p *parser) equality() (astNode, *Message) {
	return p.binaryLevel(p.relational, "==", "!=")
}

// relational also owns instanceof, at the same precedence as in Java.
func (p *parser) relational() (astNode, *Message) {
	left, msg := p.shift()
	if msg != nil {
		return nil, msg
	}
	for {
		if op, ok := p.acceptOp("<", ">", "<=", ">="); ok {
			right, msg := p.shift()
			if msg != nil {
				return nil, msg
			}
			left = &astBinary{op: op, left: left, right: right}
			continue
		}
		if p.peek().kind == tokIdentifier && p.peek().text == "instanceof" {
			p.advance()
			typeName, msg := p.instanceofTarget()
			if msg != nil {
				return nil, msg
			}
			left = &astInstanceof{operand: left, typeName: typeName}
			continue
		}
		return left, nil
	}
}

func (p *parser) shift() (astNode, *Message) {
	return p.binaryLevel(p.additive, "<<", ">>", ">>>")
}

func (p *parser) additive() (astNode, *Message) {
	return p.binaryLevel(p.multiplicative, "+", "-")
}

func (p *parser) multiplicative() (astNode, *Message) {
	return p.binaryLevel(p.unary, "*", "/", "%")
}

func (p *parser) unary() (astNode, *Message) {
	if op, ok := p.acceptOp("+", "-", "~", "!"); ok {
		operand, msg := p.unary()
		if msg != nil {
			return nil, msg
		}
		return &astUnary{op: op, operand: operand}, nil
	}
	return p.castOrPostfix()
}

// castOrPostfix attempts a C-style cast when the next token opens a
// parenthesis, falling back to a postfix expression.
func (p *parser) castOrPostfix() (astNode, *Message) {
	if p.peek().kind == tokLParen {
		if node, ok := p.tryCast(); ok {
			return node, nil
		}
	}
	return p.postfix()
}

// tryCast tentatively parses "( type ) unary". Primitive type names always
// commit; reference type names commit only when the token after the closing
// parenthesis can start an operand, so "(a) + b" stays an addition.
func (p *parser) tryCast() (astNode, bool) {
	mark := p.pos
	p.advance() // '('

	tok := p.peek()
	if tok.kind != tokIdentifier || isReservedWord(tok.text) {
		p.pos = mark
		return nil, false
	}

	if kind, isPrimitive := primitiveKinds[tok.text]; isPrimitive {
		p.advance()
		if p.peek().kind != tokRParen {
			p.pos = mark
			return nil, false
		}
		p.advance()
		operand, msg := p.unary()
		if msg != nil {
			p.pos = mark
			return nil, false
		}
		return &astCast{isPrimitive: true, kind: kind, operand: operand}, true
	}

	name, ok := p.dottedName()
	if !ok || p.peek().kind != tokRParen {
		p.pos = mark
		return nil, false
	}
	p.advance() // ')'

	next := p.peek()
	castFollows := false
	switch next.kind {
	case tokIdentifier:
		castFollows = !isOperatorWord(next.text)
	case tokIntLiteral, tokFloatLiteral, tokCharLiteral, tokStringLiteral, tokLParen:
		castFollows = true
	case tokOperator:
		castFollows = next.text == "!" || next.text == "~"
	}
	if !castFollows {
		p.pos = mark
		return nil, false
	}

	operand, msg := p.unary()
	if msg != nil {
		p.pos = mark
		return nil, false
	}
	return &astCast{typeName: name, operand: operand}, true
}

// postfix = primary { '.' ident [ args ] | '[' expr ']' }
func (p *parser) postfix() (astNode, *Message) {
	node, msg := p.primary()
	if msg != nil {
		return nil, msg
	}
	for {
		switch p.peek().kind {
		case tokDot:
			p.advance()
			name := p.peek()
			if name.kind != tokIdentifier || isReservedWord(name.text) {
				return nil, NewMessage(ExpressionParserError)
			}
			p.advance()
			if p.peek().kind == tokLParen {
				args, msg := p.arguments()
				if msg != nil {
					return nil, msg
				}
				node = &astCall{base: node, name: name.text, args: args}
			} else {
				node = &astSelect{base: node, name: name.text}
			}
		case tokLBracket:
			p.advance()
			index, msg := p.conditional()
			if msg != nil {
				return nil, msg
			}
			if msg := p.expect(tokRBracket); msg != nil {
				return nil, msg
			}
			node = &astIndex{array: node, index: index}
		default:
			return node, nil
		}
	}
}

func (p *parser) primary() (astNode, *Message) {
	tok := p.peek()
	switch tok.kind {
	case tokIntLiteral, tokFloatLiteral, tokCharLiteral, tokStringLiteral:
		p.advance()
		return &astLiteral{tok: tok}, nil
	case tokLParen:
		p.advance()
		node, msg := p.conditional()
		if msg != nil {
			return nil, msg
		}
		if msg := p.expect(tokRParen); msg != nil {
			return nil, msg
		}
		return node, nil
	case tokIdentifier:
		switch tok.text {
		case "true":
			p.advance()
			return &astBoolLiteral{value: true}, nil
		case "false":
			p.advance()
			return &astBoolLiteral{value: false}, nil
		case "null":
			p.advance()
			return &astNullLiteral{}, nil
		case "instanceof":
			return nil, NewMessage(ExpressionParserError)
		}
		p.advance()
		if p.peek().kind == tokLParen {
			args, msg := p.arguments()
			if msg != nil {
				return nil, msg
			}
			return &astCall{name: tok.text, args: args}, nil
		}
		return &astIdentifier{name: tok.text}, nil
	}
	return nil, NewMessage(ExpressionParserError)
}

// arguments parses "( expr, expr, ... )".
func (p *parser) arguments() ([]astNode, *Message) {
	if msg := p.expect(tokLParen); msg != nil {
		return nil, msg
	}
	args := []astNode{}
	if p.peek().kind == tokRParen {
		p.advance()
		return args, nil
	}
	for {
		arg, msg := p.conditional()
		if msg != nil {
			return nil, msg
		}
		args = append(args, arg)
		switch p.peek().kind {
		case tokComma:
			p.advance()
		case tokRParen:
			p.advance()
			return args, nil
		default:
			return nil, NewMessage(ExpressionParserError)
		}
	}
}

// instanceofTarget parses the right-hand side of instanceof: a dotted
// reference type name. Primitive types, arrays and null are rejected here at
// parse time. (null on the left-hand side is legal and evaluates to true;
// the asymmetry is deliberate and relied upon downstream.)
func (p *parser) instanceofTarget() (string, *Message) {
	tok := p.peek()
	if tok.kind != tokIdentifier || tok.text == "null" || tok.text == "true" || tok.text == "false" {
		return "", NewMessage(ExpressionParserError)
	}
	if _, isPrimitive := primitiveKinds[tok.text]; isPrimitive {
		return "", NewMessage(ExpressionParserError)
	}
	name, ok := p.dottedName()
	if !ok {
		return "", NewMessage(ExpressionParserError)
	}
	if p.peek().kind == tokLBracket {
		// Array targets are an unsupported construct.
		return "", NewMessage(ExpressionParserError)
	}
	return name, nil
}

// dottedName parses ident { '.' ident } and returns the dotted spelling.
func (p *parser) dottedName() (string, bool) {
	tok := p.peek()
	if tok.kind != tokIdentifier || isReservedWord(tok.text) {
		return "", false
	}
	p.advance()
	name := tok.text
	for p.peek().kind == tokDot {
		mark := p.pos
		p.advance()
		part := p.peek()
		if part.kind != tokIdentifier || isReservedWord(part.text) {
			p.pos = mark
			return name, true
		}
		p.advance()
		name += "." + part.text
	}
	return name, true
}

func isReservedWord(s string) bool {
	switch s {
	case "true", "false", "null", "instanceof":
		return true
	}
	return false
}

// isOperatorWord reports identifiers that terminate a tentative cast parse.
func isOperatorWord(s string) bool {
	return s == "instanceof"
}
