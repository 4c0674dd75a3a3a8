package eval

import (
	"strings"
	"unicode"
)

// tokenType enumerates the lexical classes of the expression language.
type tokenType int

const (
	tokEOF tokenType = iota
	tokIdentifier
	tokIntLiteral    // decimal/hex/octal, optional L suffix; text preserved
	tokFloatLiteral  // float/double literal; text preserved
	tokCharLiteral   // text holds the unescaped code unit(s)
	tokStringLiteral // text holds the unescaped content
	tokOperator      // text holds the operator spelling
	tokDot
	tokComma
	tokQuestion
	tokColon
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
)

// token is one lexical unit with its position for diagnostics.
type token struct {
	kind tokenType
	text string
	pos  int
}

// lexer splits an expression string into tokens. It performs no numeric
// range checking; literal text is preserved so the compiler can report the
// exact offending spelling.
type lexer struct {
	src string
	pos int
}

// multi-character operators, longest first so maximal munch works.
var operators = []string{
	">>>", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+", "-", "*", "/", "%", "<", ">", "&", "|", "^", "!", "~",
}

// tokenize converts source into a token slice terminated by tokEOF.
// A nil slice with a non-nil message means a lexical error.
func tokenize(src string) ([]token, *Message) {
	lx := &lexer{src: src}
	var tokens []token
	for {
		tok, msg := lx.next()
		if msg != nil {
			return nil, msg
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (lx *lexer) next() (token, *Message) {
	lx.skipSpace()
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, pos: lx.pos}, nil
	}
	start := lx.pos
	c := lx.src[lx.pos]

	switch {
	case isIdentStart(rune(c)):
		return lx.identifier(start), nil
	case c >= '0' && c <= '9':
		return lx.number(start)
	case c == '\'':
		return lx.charLiteral(start)
	case c == '"':
		return lx.stringLiteral(start)
	case c == '.':
		// A dot followed by a digit starts a fraction-only float literal.
		if lx.pos+1 < len(lx.src) && isDigit(lx.src[lx.pos+1]) {
			return lx.number(start)
		}
		lx.pos++
		return token{kind: tokDot, text: ".", pos: start}, nil
	case c == ',':
		lx.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '?':
		lx.pos++
		return token{kind: tokQuestion, text: "?", pos: start}, nil
	case c == ':':
		lx.pos++
		return token{kind: tokColon, text: ":", pos: start}, nil
	case c == '(':
		lx.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		lx.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '[':
		lx.pos++
		return token{kind: tokLBracket, text: "[", pos: start}, nil
	case c == ']':
		lx.pos++
		return token{kind: tokRBracket, text: "]", pos: start}, nil
	}

	for _, op := range operators {
		if strings.HasPrefix(lx.src[lx.pos:], op) {
			lx.pos += len(op)
			return token{kind: tokOperator, text: op, pos: start}, nil
		}
	}

	return token{}, NewMessage(ExpressionParserError)
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case ' ', '\t', '\n', '\r':
			lx.pos++
		default:
			return
		}
	}
}

func (lx *lexer) identifier(start int) token {
	for lx.pos < len(lx.src) && isIdentPart(rune(lx.src[lx.pos])) {
		lx.pos++
	}
	return token{kind: tokIdentifier, text: lx.src[start:lx.pos], pos: start}
}

// number scans integer and floating point literals. Hex (0x...), octal
// (leading 0), L/l long suffix, f/F/d/D float suffixes and exponents are all
// recognized; the raw spelling is kept for range checking downstream.
func (lx *lexer) number(start int) (token, *Message) {
	src := lx.src
	isFloat := false

	if src[lx.pos] == '0' && lx.pos+1 < len(src) && (src[lx.pos+1] == 'x' || src[lx.pos+1] == 'X') {
		lx.pos += 2
		digits := 0
		for lx.pos < len(src) && isHexDigit(src[lx.pos]) {
			lx.pos++
			digits++
		}
		if digits == 0 {
			return token{}, NewMessage(BadNumericLiteral, src[start:lx.pos])
		}
		if lx.pos < len(src) && (src[lx.pos] == 'l' || src[lx.pos] == 'L') {
			lx.pos++
		}
		return token{kind: tokIntLiteral, text: src[start:lx.pos], pos: start}, nil
	}

	for lx.pos < len(src) && isDigit(src[lx.pos]) {
		lx.pos++
	}
	if lx.pos < len(src) && src[lx.pos] == '.' {
		isFloat = true
		lx.pos++
		for lx.pos < len(src) && isDigit(src[lx.pos]) {
			lx.pos++
		}
	}
	if lx.pos < len(src) && (src[lx.pos] == 'e' || src[lx.pos] == 'E') {
		mark := lx.pos
		lx.pos++
		if lx.pos < len(src) && (src[lx.pos] == '+' || src[lx.pos] == '-') {
			lx.pos++
		}
		if lx.pos < len(src) && isDigit(src[lx.pos]) {
			isFloat = true
			for lx.pos < len(src) && isDigit(src[lx.pos]) {
				lx.pos++
			}
		} else {
			lx.pos = mark
		}
	}
	if lx.pos < len(src) {
		switch src[lx.pos] {
		case 'f', 'F', 'd', 'D':
			isFloat = true
			lx.pos++
		case 'l', 'L':
			if isFloat {
				return token{}, NewMessage(BadNumericLiteral, src[start:lx.pos+1])
			}
			lx.pos++
		}
	}

	kind := tokIntLiteral
	if isFloat {
		kind = tokFloatLiteral
	}
	return token{kind: kind, text: src[start:lx.pos], pos: start}, nil
}

func (lx *lexer) charLiteral(start int) (token, *Message) {
	lx.pos++ // opening quote
	content, ok := lx.scanEscaped('\'')
	if !ok || len(content) == 0 {
		return token{}, NewMessage(ExpressionParserError)
	}
	return token{kind: tokCharLiteral, text: content, pos: start}, nil
}

func (lx *lexer) stringLiteral(start int) (token, *Message) {
	lx.pos++ // opening quote
	content, ok := lx.scanEscaped('"')
	if !ok {
		return token{}, NewMessage(ExpressionParserError)
	}
	return token{kind: tokStringLiteral, text: content, pos: start}, nil
}

// scanEscaped consumes characters up to the unescaped terminator, resolving
// Java escape sequences. Returns ok=false on an unterminated literal or an
// unknown escape.
func (lx *lexer) scanEscaped(term byte) (string, bool) {
	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c == term {
			lx.pos++
			return sb.String(), true
		}
		if c == '\\' {
			lx.pos++
			if lx.pos >= len(lx.src) {
				return "", false
			}
			switch lx.src[lx.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '0':
				sb.WriteByte(0)
			case '\\', '\'', '"':
				sb.WriteByte(lx.src[lx.pos])
			default:
				return "", false
			}
			lx.pos++
			continue
		}
		sb.WriteByte(c)
		lx.pos++
	}
	return "", false
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
