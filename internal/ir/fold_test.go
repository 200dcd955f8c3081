package ir

import (
	"testing"

	"github.com/x0sh/flow/internal/ast"
	"github.com/x0sh/flow/internal/types"
)

func TestTryFoldNestedArithmetic(t *testing.T) {
	// (2 + 3) * 4 should fold entirely to a single literal.
	sum := &ast.BinaryExpr{Op: types.OpAdd, Result: types.Number,
		X: &ast.Literal{Typ: types.Number, Num: 2},
		Y: &ast.Literal{Typ: types.Number, Num: 3},
	}
	expr := &ast.BinaryExpr{Op: types.OpMul, Result: types.Number,
		X: sum,
		Y: &ast.Literal{Typ: types.Number, Num: 4},
	}
	lit, ok := tryFold(expr)
	if !ok {
		t.Fatalf("expected fold to succeed")
	}
	if lit.Num != 20 {
		t.Fatalf("got %d, want 20", lit.Num)
	}
}

func TestTryFoldDivideByZeroDoesNotFold(t *testing.T) {
	expr := &ast.BinaryExpr{Op: types.OpDiv, Result: types.Number,
		X: &ast.Literal{Typ: types.Number, Num: 10},
		Y: &ast.Literal{Typ: types.Number, Num: 0},
	}
	if _, ok := tryFold(expr); ok {
		t.Fatalf("division by a literal zero must not fold; the VM traps on it at run time")
	}
}

func TestTryFoldStopsAtNonConstantOperand(t *testing.T) {
	expr := &ast.BinaryExpr{Op: types.OpAdd, Result: types.Number,
		X: &ast.VarRef{Name: "x", Typ: types.Number},
		Y: &ast.Literal{Typ: types.Number, Num: 1},
	}
	if _, ok := tryFold(expr); ok {
		t.Fatalf("an expression referencing a variable must not fold")
	}
}

func TestTryFoldCastChain(t *testing.T) {
	// string(2 + 3) should fold to the literal string "5".
	inner := &ast.BinaryExpr{Op: types.OpAdd, Result: types.Number,
		X: &ast.Literal{Typ: types.Number, Num: 2},
		Y: &ast.Literal{Typ: types.Number, Num: 3},
	}
	expr := &ast.CastExpr{X: inner, Target: types.String}
	lit, ok := tryFold(expr)
	if !ok {
		t.Fatalf("expected cast-of-fold to succeed")
	}
	if lit.Str != "5" {
		t.Fatalf("got %q, want %q", lit.Str, "5")
	}
}
