// Package ast defines the typed abstract syntax tree produced by
// internal/parser (spec.md §3.2). Every node carries a source
// token.Position and, for expressions, a resolved types.Type.
package ast

import (
	"github.com/x0sh/flow/internal/token"
	"github.com/x0sh/flow/internal/types"
)

// Node is the common interface implemented by every AST node.
type Node interface {
	Position() token.Position
}

// Expr is any typed expression node.
type Expr interface {
	Node
	Type() types.Type
	exprNode()
}

// Stmt is any statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Base embeds the source position shared by every concrete node. It is
// exported so internal/parser can construct nodes directly with
// Base{Pos: ...} composite literals.
type Base struct {
	Pos token.Position
}

func (b Base) Position() token.Position { return b.Pos }

// ---- Expressions -----------------------------------------------------

// Literal is a constant value known at parse time.
type Literal struct {
	Base
	Typ   types.Type
	Num   int64
	Str   string
	Bool  bool
	IP    string
	CIDR  string
	Rx    string
	Ints  []int64
	Strs  []string
	IPs   []string
	CIDRs []string
}

func (l *Literal) Type() types.Type { return l.Typ }
func (*Literal) exprNode()          {}

// VarRef references a variable declared with `var` or a host-declared
// property (spec.md §4.1 symbol resolution).
type VarRef struct {
	Base
	Name string
	Typ  types.Type
}

func (v *VarRef) Type() types.Type { return v.Typ }
func (*VarRef) exprNode()          {}

// HandlerRef references a handler by name used as a value (rare, but the
// type system models it so `Handler` typed expressions are representable).
type HandlerRef struct {
	Base
	Name string
}

func (*HandlerRef) Type() types.Type { return types.Handler }
func (*HandlerRef) exprNode()        {}

// UnaryExpr applies a resolved unary operator.
type UnaryExpr struct {
	Base
	Op      types.UnOp
	X       Expr
	Result  types.Type
}

func (u *UnaryExpr) Type() types.Type { return u.Result }
func (*UnaryExpr) exprNode()          {}

// BinaryExpr applies a resolved binary operator; Op is already checked
// against X/Y's types by the parser (spec.md §4.1).
type BinaryExpr struct {
	Base
	Op     types.BinOp
	X, Y   Expr
	Result types.Type
}

func (b *BinaryExpr) Type() types.Type { return b.Result }
func (*BinaryExpr) exprNode()          {}

// CallExpr is a call used in expression position: a native function call
// that yields a value.
type CallExpr struct {
	Base
	Callee string
	Args   []Expr
	Result types.Type
}

func (c *CallExpr) Type() types.Type { return c.Result }
func (*CallExpr) exprNode()          {}

// CastExpr converts X to Target, validated against the conversion table.
type CastExpr struct {
	Base
	X      Expr
	Target types.Type
}

func (c *CastExpr) Type() types.Type { return c.Target }
func (*CastExpr) exprNode()          {}

// CondExpr is the ternary `cond ? then : else` / `if cond then a else b`
// value-producing form (used e.g. by spec.md §8 scenario 5).
type CondExpr struct {
	Base
	Cond, Then, Else Expr
	Result           types.Type
}

func (c *CondExpr) Type() types.Type { return c.Result }
func (*CondExpr) exprNode()          {}

// ---- Statements -------------------------------------------------------

// AssignStmt is `name = expr;`.
type AssignStmt struct {
	Base
	Name string
	Value Expr
}

func (*AssignStmt) stmtNode() {}

// CallStmt is a bare call statement, optionally with a trailing `if`/
// `unless` postscript guard (spec.md §4.1 callStmt grammar).
type CallStmt struct {
	Base
	Callee       string
	Args         []Expr
	Guard        Expr // nil if no postscript
	GuardIsUnless bool
}

func (*CallStmt) stmtNode() {}

// IfStmt covers both `if` and `unless` (Negate=true), each with an
// optional else branch.
type IfStmt struct {
	Base
	Cond   Expr
	Negate bool
	Then   Stmt
	Else   Stmt // nil if absent
}

func (*IfStmt) stmtNode() {}

// CompoundStmt is a `{ ... }` block.
type CompoundStmt struct {
	Base
	Stmts []Stmt
}

func (*CompoundStmt) stmtNode() {}

// EmptyStmt is a bare `;`.
type EmptyStmt struct{ Base }

func (*EmptyStmt) stmtNode() {}

// MatchCase is one `on <label>` arm of a MatchStmt.
type MatchCase struct {
	Label Expr // a Literal of String, or RegExp
	Body  Stmt
}

// MatchClass distinguishes dispatch discipline (spec.md §3.3 "match class").
type MatchClass int

const (
	MatchSame MatchClass = iota
	MatchHead
	MatchTail
	MatchRegExp
)

// MatchStmt is the supplemented `match EXPR on ... else ...` construct
// (SPEC_FULL.md's restored nocase qualifier lives in NoCase).
type MatchStmt struct {
	Base
	Cond   Expr
	Class  MatchClass
	NoCase bool
	Cases  []MatchCase
	Else   Stmt // nil if absent
}

func (*MatchStmt) stmtNode() {}

// ---- Declarations & Unit ----------------------------------------------

// VarDecl is a top-level `var name = expr;`.
type VarDecl struct {
	Base
	Name  string
	Value Expr
}

// HandlerDecl is `handler name ;` (forward declaration, Body == nil) or
// `handler name [do] stmt`.
type HandlerDecl struct {
	Base
	Name string
	Body Stmt // nil for forward declarations
}

// Import is one `import name[, name]* [from path];` directive.
type Import struct {
	Base
	Names []string
	Path  string // "" if no `from` clause
}

// Unit is the top-level parse result: the owning symbol table plus the
// import list (spec.md §3.2).
type Unit struct {
	Base
	Imports  []*Import
	Vars     []*VarDecl
	Handlers []*HandlerDecl
}
