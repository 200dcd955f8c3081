package parser_test

import (
	"strings"
	"testing"

	"github.com/x0sh/flow/internal/nativelib"
	"github.com/x0sh/flow/internal/parser"
	"github.com/x0sh/flow/internal/runtime"
)

func newParser(src string) *parser.Parser {
	rt := runtime.New()
	nativelib.Register(rt)
	return parser.New("t", []byte(src), rt)
}

func TestParseValidUnitHasNoErrors(t *testing.T) {
	p := newParser(`handler main { respond 200; }`)
	p.ParseUnit()
	if p.Diagnostics().HasErrors() {
		t.Fatalf("unexpected errors: %s", p.Diagnostics().Error())
	}
}

func TestDuplicateVarIsRedeclarationError(t *testing.T) {
	p := newParser("var x = 1;\nvar x = 2;\nhandler main { respond x; }")
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a redeclaration error")
	}
	if !strings.Contains(p.Diagnostics().Error(), "already declared") {
		t.Fatalf("diagnostics = %s, want mention of redeclaration", p.Diagnostics().Error())
	}
}

func TestDuplicateHandlerIsRedeclarationError(t *testing.T) {
	p := newParser("handler main { respond 200; }\nhandler main { respond 404; }")
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a redeclaration error")
	}
	if !strings.Contains(p.Diagnostics().Error(), "already defined") {
		t.Fatalf("diagnostics = %s, want mention of redeclaration", p.Diagnostics().Error())
	}
}

func TestUnknownVariableIsUnknownSymbolError(t *testing.T) {
	p := newParser("handler main { respond missing; }")
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected an unknown-symbol error")
	}
	if !strings.Contains(p.Diagnostics().Error(), "unknown") {
		t.Fatalf("diagnostics = %s, want mention of an unknown symbol", p.Diagnostics().Error())
	}
}

func TestIfConditionMustBeBoolean(t *testing.T) {
	p := newParser(`handler main { if 5 then respond 200; else respond 404; }`)
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a type-mismatch error for a non-boolean if condition")
	}
}

func TestCallWithWrongArgumentTypesIsTypeMismatch(t *testing.T) {
	p := newParser(`handler main { respond "not a number"; }`)
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a type-mismatch error for respond(string)")
	}
}

func TestExplicitZeroArgCallParsesCleanly(t *testing.T) {
	p := newParser(`handler main { deny(); }`)
	p.ParseUnit()
	if p.Diagnostics().HasErrors() {
		t.Fatalf("unexpected errors parsing an explicit zero-arg call: %s", p.Diagnostics().Error())
	}
}

func TestExplicitZeroArgPropertyCallParsesCleanly(t *testing.T) {
	p := newParser(`handler main { respond req.path() == "/a" ? 200 : 404; }`)
	p.ParseUnit()
	if p.Diagnostics().HasErrors() {
		t.Fatalf("unexpected errors parsing req.path(): %s", p.Diagnostics().Error())
	}
}

func TestMatchConditionMustBeStringOrRegex(t *testing.T) {
	p := newParser(`handler main { match 5 { on "a" respond 1; else respond 2; } }`)
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a type-mismatch error for a numeric match condition")
	}
}

func TestImportFromPathReportsPluginNotFound(t *testing.T) {
	p := newParser("import req.path from \"geoip\";\nhandler main { respond 200; }")
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a plugin-not-found error for an import ... from clause")
	}
	if !strings.Contains(p.Diagnostics().Error(), "not found") {
		t.Fatalf("diagnostics = %s, want mention of plugin not found", p.Diagnostics().Error())
	}
}

func TestImportUnknownSymbolReportsSymbolNotFound(t *testing.T) {
	p := newParser("import this.does.not.exist;\nhandler main { respond 200; }")
	p.ParseUnit()
	if !p.Diagnostics().HasErrors() {
		t.Fatalf("expected a symbol-not-found error for an unresolvable bare import")
	}
	if !strings.Contains(p.Diagnostics().Error(), "not found") {
		t.Fatalf("diagnostics = %s, want mention of symbol not found", p.Diagnostics().Error())
	}
}

func TestImportKnownSymbolParsesCleanly(t *testing.T) {
	p := newParser("import req.path;\nhandler main { respond 200; }")
	p.ParseUnit()
	if p.Diagnostics().HasErrors() {
		t.Fatalf("unexpected errors importing a known symbol: %s", p.Diagnostics().Error())
	}
}
