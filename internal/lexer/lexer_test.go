package lexer

import (
	"testing"

	"github.com/x0sh/flow/internal/token"
)

func TestNumberWithUnitSuffix(t *testing.T) {
	l := New("t", []byte("2kbyte"), nil)
	tok := l.Next()
	if tok.Kind != token.Number {
		t.Fatalf("Kind = %v, want Number", tok.Kind)
	}
	if tok.Text != "2kbyte" {
		t.Fatalf("Text = %q, want %q", tok.Text, "2kbyte")
	}
	m, ok := UnitMultiplier("kbyte")
	if !ok || m != 1024 {
		t.Fatalf("UnitMultiplier(kbyte) = (%v,%v), want (1024,true)", m, ok)
	}
}

func TestPlainNumberHasNoSuffix(t *testing.T) {
	l := New("t", []byte("42"), nil)
	tok := l.Next()
	if tok.Kind != token.Number || tok.Text != "42" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestIPv4Literal(t *testing.T) {
	l := New("t", []byte("10.0.0.1"), nil)
	tok := l.Next()
	if tok.Kind != token.IPV4 || tok.Text != "10.0.0.1" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestCidrLiteral(t *testing.T) {
	l := New("t", []byte("10.0.0.0/8"), nil)
	tok := l.Next()
	if tok.Kind != token.Cidr || tok.Text != "10.0.0.0/8" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestIPv6Literal(t *testing.T) {
	l := New("t", []byte("::1"), nil)
	tok := l.Next()
	if tok.Kind != token.IPV6 || tok.Text != "::1" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestStringLiteral(t *testing.T) {
	l := New("t", []byte(`"hello\nworld"`), nil)
	tok := l.Next()
	if tok.Kind != token.String || tok.Text != "hello\nworld" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestRegexLiteralViaLexRegexAt(t *testing.T) {
	l := New("t", []byte(`/^\/api\//`), nil)
	tok := l.LexRegexAt()
	if tok.Kind != token.RegExp {
		t.Fatalf("Kind = %v, want RegExp", tok.Kind)
	}
	if tok.Text != `^\/api\/` {
		t.Fatalf("Text = %q, want %q", tok.Text, `^\/api\/`)
	}
}

func TestMatchOperators(t *testing.T) {
	cases := []struct {
		src  string
		kind token.Kind
	}{
		{"=~", token.RegexMatch},
		{"=^", token.PrefixMatch},
		{"=$", token.SuffixMatch},
		{"**", token.Pow},
		{"==", token.Eq},
		{"!=", token.Ne},
	}
	for _, c := range cases {
		l := New("t", []byte(c.src), nil)
		tok := l.Next()
		if tok.Kind != c.kind {
			t.Errorf("lexing %q: Kind = %v, want %v", c.src, tok.Kind, c.kind)
		}
	}
}

func TestKeywordsAndIdents(t *testing.T) {
	l := New("t", []byte("handler main req.path"), nil)
	if tok := l.Next(); tok.Kind != token.KwHandler {
		t.Fatalf("got %v, want KwHandler", tok.Kind)
	}
	if tok := l.Next(); tok.Kind != token.Ident || tok.Text != "main" {
		t.Fatalf("got %v %q, want Ident main", tok.Kind, tok.Text)
	}
	if tok := l.Next(); tok.Kind != token.Ident || tok.Text != "req.path" {
		t.Fatalf("got %v %q, want Ident req.path", tok.Kind, tok.Text)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	l := New("t", []byte("# a comment\n42 // trailing\n/* block */ 43"), nil)
	if tok := l.Next(); tok.Kind != token.Number || tok.Text != "42" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
	if tok := l.Next(); tok.Kind != token.Number || tok.Text != "43" {
		t.Fatalf("got %v %q", tok.Kind, tok.Text)
	}
}

func TestUnterminatedStringReportsError(t *testing.T) {
	var gotMsg string
	l := New("t", []byte(`"oops`), func(pos token.Position, msg string) { gotMsg = msg })
	l.Next()
	if gotMsg == "" {
		t.Fatalf("expected an error to be reported for an unterminated string")
	}
}
