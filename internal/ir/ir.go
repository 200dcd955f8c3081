// Package ir implements Flow's typed SSA intermediate representation
// (spec.md §3.3) and the builder that lowers a parsed ast.Unit into it,
// folding constants during construction (spec.md §9's resolution of the
// "two overlapping... folding behaviors" open question).
package ir

import (
	"github.com/x0sh/flow/internal/token"
	"github.com/x0sh/flow/internal/types"
)

// Kind tags what an Instr computes. Per spec.md §9's "polymorphic
// instruction nodes" design note, this replaces a class hierarchy with one
// tagged record that codegen dispatches on.
type Kind int

const (
	KConst Kind = iota
	KBin
	KUn
	KCast
	KLoadVar  // read a global var slot
	KStoreVar // write a global var slot (no Result)
	KLoadProp    // evaluate a host property
	KCallFunc    // call a native function for its value
	KCallHandler // invoke a handler (native or a sibling Flow handler) for its boolean result
	KConcat      // fold of >=3 string operands, SADDMULTI candidate (SPEC_FULL.md)
	KLoadTemp    // read a handler-local merge temp (ternary lowering)
	KStoreTemp   // write a handler-local merge temp (ternary lowering)
)

// ConstKind distinguishes which constant pool (and which Literal field) a
// KConst instruction draws from.
type ConstKind int

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstBool
	ConstIP
	ConstCidr
	ConstRegexp
)

// Instr is one SSA value: an operation plus references to its operands by
// the ID of the Instr that produced them (spec.md §9's "operand indices").
type Instr struct {
	ID     int
	Kind   Kind
	Result types.Type
	Pos    token.Position

	// KConst
	CKind    ConstKind
	ConstIdx int // index into the owning Program's pool for CKind
	BoolVal  bool

	// KBin / KUn
	BinOp types.BinOp
	UnOp  types.UnOp
	X, Y  int // operand Instr IDs (Y unused for KUn)

	// KCast
	CastFrom types.Type

	// KLoadVar / KStoreVar
	Slot int

	// KLoadProp / KCallFunc / KCallHandler
	Name     string
	IsNative bool // KCallHandler only: false means HandlerIdx indexes Program.Handlers
	FuncID   int  // native function/handler id (runtime.Runtime's Functions()/Handlers() index)
	HandlerIdx int // KCallHandler, !IsNative: index into Program.Handlers
	Args     []int // operand Instr IDs, in call order

	// KConcat
	Parts []int
}

// TermKind tags a Block's single terminator.
type TermKind int

const (
	TermNone TermKind = iota
	TermBr
	TermCondBr
	TermRet
	TermMatch
)

// MatchClass mirrors ast.MatchClass / bytecode.MatchClass; ir sits between
// the two and defines its own copy rather than importing ast (builder.go
// converts from ast.MatchClass once, at lowering time).
type MatchClass int

const (
	MatchSame MatchClass = iota
	MatchHead
	MatchTail
	MatchRegExp
)

// MatchCase is one compiled `on` arm: the label's constant-pool index
// (Instr.ConstIdx of a folded KConst) and the block branched to on match.
type MatchCase struct {
	ConstIdx int
	Target   int // block ID
}

// Block is a basic block: a straight-line instruction list ending in
// exactly one terminator (spec.md §3.3, tested by §8's "exactly one
// terminator per basic block").
type Block struct {
	ID     int
	Instrs []*Instr
	Term   TermKind

	BrTarget int // TermBr

	CondValue  int // TermCondBr: Instr ID of the boolean condition
	CondNegate bool
	ThenTarget int
	ElseTarget int

	ExitCode      int64 // TermRet
	HandlerResult int   // TermRet from an implicit `HANDLER` call: Instr ID of the call's result, recorded for reference only (the preceding CondBr decides whether this block runs; codegen emits EXIT ExitCode either way); -1 if a plain `EXIT imm`

	MatchCond   int // TermMatch: Instr ID of the subject value
	MatchClass  MatchClass
	MatchNoCase bool
	MatchCases  []MatchCase
	MatchElse   int // block ID
}

// GlobalVar is one unit-level `var name = expr;` (spec.md §4.1). Flow's
// global var initializers must fold to a compile-time constant: a
// property read depends on the in-flight request and makes no sense to
// evaluate once at program load (internal/parser already restricts
// VarDecl's RHS to legal expressions; ir.Builder additionally requires it
// to have folded to a KConst, erroring otherwise).
type GlobalVar struct {
	Name     string
	Slot     int
	Type     types.Type
	CKind    ConstKind
	ConstIdx int
	BoolVal  bool
}

// Handler is one compiled entry point: an ordered set of basic blocks with
// a distinguished entry (spec.md §3.3). NumTemps counts the handler-local
// merge temporaries the ternary lowering allocated (distinct from the
// Program's global var slots).
type Handler struct {
	Name     string
	Blocks   []*Block
	Entry    int
	NumTemps int
}

// Program is the IR builder's output: every global, every handler, and
// the interned constant pools they reference (spec.md §3.4's "Bytecode
// Program" is what internal/codegen derives from this).
type Program struct {
	ID       string
	Name     string
	Consts   *ConstPool
	Globals  []GlobalVar
	Handlers []*Handler
	EntryIdx int
}
