package ir

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/x0sh/flow/internal/ast"
	"github.com/x0sh/flow/internal/token"
	"github.com/x0sh/flow/internal/types"
)

// tryFold attempts to collapse e into a single *ast.Literal, recursing
// into operand subexpressions first (spec.md §9: folding lives in the IR
// builder, bottom-up, rather than in the parser). Only Literal, UnaryExpr,
// BinaryExpr and CastExpr nodes are ever foldable; anything whose value
// isn't known until run time (a VarRef, CallExpr, CondExpr, HandlerRef)
// reports ok=false so the caller falls back to emitting a real
// instruction for it.
func tryFold(e ast.Expr) (*ast.Literal, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		return n, true
	case *ast.UnaryExpr:
		x, ok := tryFold(n.X)
		if !ok {
			return nil, false
		}
		return foldUnary(n.Op, x)
	case *ast.BinaryExpr:
		x, ok := tryFold(n.X)
		if !ok {
			return nil, false
		}
		y, ok := tryFold(n.Y)
		if !ok {
			return nil, false
		}
		return foldBinary(n.Op, x, y)
	case *ast.CastExpr:
		x, ok := tryFold(n.X)
		if !ok {
			return nil, false
		}
		return foldCast(x, n.Target)
	default:
		return nil, false
	}
}

// foldBinary evaluates a binary operator over two literal AST operands
// during IR construction (spec.md §9: of the two overlapping folding
// behaviors the source exposes, the one living in the IR builder rather
// than the parser is authoritative, so Builder.buildExpr calls this
// before ever emitting an instruction for a BinaryExpr). ok is false when
// the operands aren't both amenable to compile-time evaluation (e.g. a
// division by a literal zero, left for the VM to trap at run time).
func foldBinary(op types.BinOp, x, y *ast.Literal) (*ast.Literal, bool) {
	pos := x.Position()

	switch op {
	case types.OpAdd:
		if numeric(x, y) {
			return numLit(pos, x.Num+y.Num), true
		}
		if stringOp(x, y) {
			return strLit(pos, x.Str+y.Str), true
		}
	case types.OpSub:
		if numeric(x, y) {
			return numLit(pos, x.Num-y.Num), true
		}
	case types.OpMul:
		if numeric(x, y) {
			return numLit(pos, x.Num*y.Num), true
		}
	case types.OpDiv:
		if numeric(x, y) && y.Num != 0 {
			return numLit(pos, x.Num/y.Num), true
		}
	case types.OpRem:
		if numeric(x, y) && y.Num != 0 {
			return numLit(pos, x.Num%y.Num), true
		}
	case types.OpShl:
		if numeric(x, y) {
			return numLit(pos, x.Num<<uint(y.Num)), true
		}
	case types.OpShr:
		if numeric(x, y) {
			return numLit(pos, x.Num>>uint(y.Num)), true
		}
	case types.OpPow:
		if numeric(x, y) && y.Num >= 0 {
			var r int64 = 1
			for i := int64(0); i < y.Num; i++ {
				r *= x.Num
			}
			return numLit(pos, r), true
		}
	case types.OpAnd:
		if numeric(x, y) {
			return numLit(pos, x.Num&y.Num), true
		}
		if boolean(x, y) {
			return boolLit(pos, x.Bool && y.Bool), true
		}
	case types.OpOr:
		if numeric(x, y) {
			return numLit(pos, x.Num|y.Num), true
		}
		if boolean(x, y) {
			return boolLit(pos, x.Bool || y.Bool), true
		}
	case types.OpXor:
		if numeric(x, y) {
			return numLit(pos, x.Num^y.Num), true
		}
		if boolean(x, y) {
			return boolLit(pos, x.Bool != y.Bool), true
		}
	case types.OpLogicalAnd:
		if boolean(x, y) {
			return boolLit(pos, x.Bool && y.Bool), true
		}
	case types.OpLogicalOr:
		if boolean(x, y) {
			return boolLit(pos, x.Bool || y.Bool), true
		}
	case types.OpLogicalXor:
		if boolean(x, y) {
			return boolLit(pos, x.Bool != y.Bool), true
		}
	case types.OpEq:
		if v, ok := compareEq(x, y); ok {
			return boolLit(pos, v), true
		}
	case types.OpNe:
		if v, ok := compareEq(x, y); ok {
			return boolLit(pos, !v), true
		}
	case types.OpLt:
		if numeric(x, y) {
			return boolLit(pos, x.Num < y.Num), true
		}
		if stringOp(x, y) {
			return boolLit(pos, x.Str < y.Str), true
		}
	case types.OpGt:
		if numeric(x, y) {
			return boolLit(pos, x.Num > y.Num), true
		}
		if stringOp(x, y) {
			return boolLit(pos, x.Str > y.Str), true
		}
	case types.OpLe:
		if numeric(x, y) {
			return boolLit(pos, x.Num <= y.Num), true
		}
		if stringOp(x, y) {
			return boolLit(pos, x.Str <= y.Str), true
		}
	case types.OpGe:
		if numeric(x, y) {
			return boolLit(pos, x.Num >= y.Num), true
		}
		if stringOp(x, y) {
			return boolLit(pos, x.Str >= y.Str), true
		}
	case types.OpPrefixMatch:
		if stringOp(x, y) {
			return boolLit(pos, strings.HasPrefix(x.Str, y.Str)), true
		}
	case types.OpSuffixMatch:
		if stringOp(x, y) {
			return boolLit(pos, strings.HasSuffix(x.Str, y.Str)), true
		}
	case types.OpRegexMatch:
		if x.Typ == types.String && y.Typ == types.RegExp {
			re, err := regexp.Compile(y.Rx)
			if err != nil {
				return nil, false
			}
			return boolLit(pos, re.MatchString(x.Str)), true
		}
	case types.OpContains:
		if stringOp(x, y) {
			return boolLit(pos, strings.Contains(y.Str, x.Str)), true
		}
		if x.Typ == types.IPAddress && y.Typ == types.Cidr {
			ip := net.ParseIP(x.IP)
			_, cidr, err := net.ParseCIDR(y.CIDR)
			if ip == nil || err != nil {
				return nil, false
			}
			return boolLit(pos, cidr.Contains(ip)), true
		}
	}
	return nil, false
}

// foldUnary evaluates a unary operator over a literal operand.
func foldUnary(op types.UnOp, x *ast.Literal) (*ast.Literal, bool) {
	pos := x.Position()
	switch op {
	case types.OpNeg:
		if x.Typ == types.Number {
			return numLit(pos, -x.Num), true
		}
	case types.OpNot:
		if x.Typ == types.Number {
			return numLit(pos, ^x.Num), true
		}
	case types.OpLogicalNot:
		if x.Typ == types.Boolean {
			return boolLit(pos, !x.Bool), true
		}
	}
	return nil, false
}

// foldCast evaluates a cast over a literal operand; target conversions
// that depend on runtime-only representations (none today) fall through
// to ok=false so the caller emits a real CastExpr instead.
func foldCast(x *ast.Literal, target types.Type) (*ast.Literal, bool) {
	pos := x.Position()
	if x.Typ == target {
		return x, true
	}
	switch target {
	case types.String:
		switch x.Typ {
		case types.Boolean:
			if x.Bool {
				return strLit(pos, "true"), true
			}
			return strLit(pos, "false"), true
		case types.Number:
			return strLit(pos, strconv.FormatInt(x.Num, 10)), true
		case types.IPAddress:
			return strLit(pos, x.IP), true
		case types.Cidr:
			return strLit(pos, x.CIDR), true
		case types.RegExp:
			return strLit(pos, x.Rx), true
		}
	case types.Number:
		if x.Typ == types.String {
			n, err := strconv.ParseInt(strings.TrimSpace(x.Str), 10, 64)
			if err != nil {
				return nil, false
			}
			return numLit(pos, n), true
		}
	}
	return nil, false
}

func numeric(x, y *ast.Literal) bool { return x.Typ == types.Number && y.Typ == types.Number }
func boolean(x, y *ast.Literal) bool { return x.Typ == types.Boolean && y.Typ == types.Boolean }
func stringOp(x, y *ast.Literal) bool { return x.Typ == types.String && y.Typ == types.String }

func compareEq(x, y *ast.Literal) (bool, bool) {
	switch {
	case numeric(x, y):
		return x.Num == y.Num, true
	case stringOp(x, y):
		return x.Str == y.Str, true
	case x.Typ == types.IPAddress && y.Typ == types.IPAddress:
		return x.IP == y.IP, true
	case boolean(x, y):
		return x.Bool == y.Bool, true
	}
	return false, false
}

func numLit(pos token.Position, v int64) *ast.Literal {
	return &ast.Literal{Base: ast.Base{Pos: pos}, Typ: types.Number, Num: v}
}

func boolLit(pos token.Position, v bool) *ast.Literal {
	return &ast.Literal{Base: ast.Base{Pos: pos}, Typ: types.Boolean, Bool: v}
}

func strLit(pos token.Position, v string) *ast.Literal {
	return &ast.Literal{Base: ast.Base{Pos: pos}, Typ: types.String, Str: v}
}
