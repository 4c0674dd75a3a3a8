package eval

import "testing"

func TestTokenizeKinds(t *testing.T) {
	tests := []struct {
		src  string
		want []tokenType
	}{
		{"a + b", []tokenType{tokIdentifier, tokOperator, tokIdentifier, tokEOF}},
		{"a.b[0]", []tokenType{tokIdentifier, tokDot, tokIdentifier, tokLBracket, tokIntLiteral, tokRBracket, tokEOF}},
		{"f(x, y)", []tokenType{tokIdentifier, tokLParen, tokIdentifier, tokComma, tokIdentifier, tokRParen, tokEOF}},
		{"a ? b : c", []tokenType{tokIdentifier, tokQuestion, tokIdentifier, tokColon, tokIdentifier, tokEOF}},
		{"1.5e3", []tokenType{tokFloatLiteral, tokEOF}},
		{".5", []tokenType{tokFloatLiteral, tokEOF}},
		{"0x1F", []tokenType{tokIntLiteral, tokEOF}},
		{"'c'", []tokenType{tokCharLiteral, tokEOF}},
		{"\"s\"", []tokenType{tokStringLiteral, tokEOF}},
	}
	for _, tc := range tests {
		tokens, msg := tokenize(tc.src)
		if msg != nil {
			t.Errorf("tokenize(%q): %s", tc.src, msg)
			continue
		}
		if len(tokens) != len(tc.want) {
			t.Errorf("tokenize(%q): %d tokens, want %d", tc.src, len(tokens), len(tc.want))
			continue
		}
		for i, tok := range tokens {
			if tok.kind != tc.want[i] {
				t.Errorf("tokenize(%q)[%d]: kind %d, want %d", tc.src, i, tok.kind, tc.want[i])
			}
		}
	}
}

func TestTokenizeMaximalMunch(t *testing.T) {
	tokens, msg := tokenize("a>>>b >> c > d >= e")
	if msg != nil {
		t.Fatal(msg)
	}
	wantOps := []string{">>>", ">>", ">", ">="}
	var ops []string
	for _, tok := range tokens {
		if tok.kind == tokOperator {
			ops = append(ops, tok.text)
		}
	}
	if len(ops) != len(wantOps) {
		t.Fatalf("operators %v, want %v", ops, wantOps)
	}
	for i := range ops {
		if ops[i] != wantOps[i] {
			t.Fatalf("operators %v, want %v", ops, wantOps)
		}
	}
}

func TestTokenizeNumberSpellings(t *testing.T) {
	tests := []struct {
		src     string
		kind    tokenType
		literal string
	}{
		{"123", tokIntLiteral, "123"},
		{"123L", tokIntLiteral, "123L"},
		{"0x10l", tokIntLiteral, "0x10l"},
		{"010", tokIntLiteral, "010"},
		{"1.5", tokFloatLiteral, "1.5"},
		{"1.5f", tokFloatLiteral, "1.5f"},
		{"2D", tokFloatLiteral, "2D"},
		{"1e10", tokFloatLiteral, "1e10"},
		{"1E-3", tokFloatLiteral, "1E-3"},
		{"3.", tokFloatLiteral, "3."},
	}
	for _, tc := range tests {
		tokens, msg := tokenize(tc.src)
		if msg != nil {
			t.Errorf("tokenize(%q): %s", tc.src, msg)
			continue
		}
		if tokens[0].kind != tc.kind || tokens[0].text != tc.literal {
			t.Errorf("tokenize(%q) = kind %d text %q", tc.src, tokens[0].kind, tokens[0].text)
		}
	}
}

func TestTokenizeEscapes(t *testing.T) {
	tokens, msg := tokenize(`"a\tb\\c\""`)
	if msg != nil {
		t.Fatal(msg)
	}
	if tokens[0].text != "a\tb\\c\"" {
		t.Errorf("unescaped content %q", tokens[0].text)
	}
}

func TestTokenizeErrors(t *testing.T) {
	for _, src := range []string{"@", "#", "\"open", "'", `"\q"`, "0x"} {
		if _, msg := tokenize(src); msg == nil {
			t.Errorf("tokenize(%q): expected error", src)
		}
	}
}
