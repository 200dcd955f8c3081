// Package diag collects compile-time diagnostics. It is the "injected
// reporter" called out in spec.md §4.1/§7: lex and parse errors are
// reported through a callback with line/column rather than thrown, and
// recovery continues scanning.
package diag

import (
	"fmt"
	"strings"

	"github.com/x0sh/flow/internal/token"
)

// Severity classifies a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Category distinguishes the spec.md §7 error categories so callers can
// filter/test against a specific class without string matching.
type Category string

const (
	LexInvalidLiteral         Category = "invalid-literal"
	LexUnterminatedString     Category = "unterminated-string"
	ParseUnexpectedToken      Category = "unexpected-token"
	ParseRedeclaration        Category = "redeclaration"
	ParseTypeMismatch         Category = "type-mismatch"
	ParseUnknownSymbol        Category = "unknown-symbol"
	ParseImportPluginNotFound Category = "import-plugin-not-found"
	ParseImportSymbolNotFound Category = "import-symbol-not-found"
)

// Diagnostic is one reported problem.
type Diagnostic struct {
	Severity Severity
	Category Category
	Pos      token.Position
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Bag accumulates diagnostics for one compilation unit.
type Bag struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (b *Bag) Add(sev Severity, cat Category, pos token.Position, format string, args ...any) {
	b.items = append(b.items, Diagnostic{
		Severity: sev,
		Category: cat,
		Pos:      pos,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Errorf is shorthand for Add(Error, cat, pos, ...).
func (b *Bag) Errorf(cat Category, pos token.Position, format string, args ...any) {
	b.Add(Error, cat, pos, format, args...)
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every diagnostic recorded so far, in report order.
func (b *Bag) All() []Diagnostic { return b.items }

// Error implements the error interface so a Bag with errors can be
// returned/wrapped directly by a compile entry point.
func (b *Bag) Error() string {
	var sb strings.Builder
	for i, d := range b.items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.String())
	}
	return sb.String()
}
