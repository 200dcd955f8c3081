package ir

import (
	"github.com/x0sh/flow/internal/ast"
	"github.com/x0sh/flow/internal/diag"
	"github.com/x0sh/flow/internal/runtime"
	"github.com/x0sh/flow/internal/types"
)

// Builder lowers one parsed ast.Unit into an ir.Program, folding constant
// subexpressions as it goes (spec.md §9's authoritative answer to the
// folding-location open question: folding lives here, not in the parser).
type Builder struct {
	rt    *runtime.Runtime
	diags *diag.Bag

	prog *Program

	globalSlot   map[string]int
	handlerIndex map[string]int

	h         *Handler
	cur       *Block
	nextInstr int
	nextBlock int
}

// NewBuilder returns a Builder that resolves native symbols against rt and
// reports problems to diags.
func NewBuilder(rt *runtime.Runtime, diags *diag.Bag) *Builder {
	return &Builder{
		rt:           rt,
		diags:        diags,
		globalSlot:   make(map[string]int),
		handlerIndex: make(map[string]int),
	}
}

// Build lowers unit into a Program. id and name are caller-supplied
// identifiers (SPEC_FULL.md's google/uuid wiring stamps id; name is
// typically the source file's base name).
func (b *Builder) Build(unit *ast.Unit, id, name string) *Program {
	b.prog = &Program{ID: id, Name: name, Consts: NewConstPool()}

	for _, vd := range unit.Vars {
		b.buildGlobal(vd)
	}

	var bodied []*ast.HandlerDecl
	for _, hd := range unit.Handlers {
		if hd.Body == nil {
			continue // forward declaration only; nothing to compile
		}
		b.handlerIndex[hd.Name] = len(bodied)
		bodied = append(bodied, hd)
	}

	for _, hd := range bodied {
		b.prog.Handlers = append(b.prog.Handlers, b.buildHandler(hd))
	}

	b.prog.EntryIdx = -1
	if len(b.prog.Handlers) > 0 {
		b.prog.EntryIdx = 0
	}
	return b.prog
}

func (b *Builder) buildGlobal(vd *ast.VarDecl) {
	lit, ok := tryFold(vd.Value)
	if !ok {
		b.diags.Errorf(diag.ParseTypeMismatch, vd.Position(),
			"global var %q initializer must be a compile-time constant", vd.Name)
		lit = &ast.Literal{Base: ast.Base{Pos: vd.Position()}, Typ: types.Number, Num: 0}
	}

	g := GlobalVar{Name: vd.Name, Slot: len(b.prog.Globals), Type: lit.Typ}
	b.fillConst(lit, &g.CKind, &g.ConstIdx, &g.BoolVal)

	b.globalSlot[vd.Name] = g.Slot
	b.prog.Globals = append(b.prog.Globals, g)
}

// fillConst interns lit into the program's pool and fills the CKind/idx/
// bool out-params shared by GlobalVar and the KConst instruction.
func (b *Builder) fillConst(lit *ast.Literal, ckind *ConstKind, idx *int, boolVal *bool) {
	switch lit.Typ {
	case types.Boolean:
		*ckind = ConstBool
		*boolVal = lit.Bool
	case types.Number:
		*ckind = ConstNumber
		*idx = b.prog.Consts.Number(lit.Num)
	case types.String:
		*ckind = ConstString
		*idx = b.prog.Consts.String(lit.Str)
	case types.IPAddress:
		*ckind = ConstIP
		*idx = b.prog.Consts.IP(lit.IP)
	case types.Cidr:
		*ckind = ConstCidr
		*idx = b.prog.Consts.Cidr(lit.CIDR)
	case types.RegExp:
		*ckind = ConstRegexp
		*idx = b.prog.Consts.Regexp(lit.Rx)
	default:
		b.diags.Errorf(diag.ParseTypeMismatch, lit.Position(), "unsupported constant type %s", lit.Typ)
	}
}

func (b *Builder) buildHandler(hd *ast.HandlerDecl) *Handler {
	h := &Handler{Name: hd.Name}
	b.h = h
	b.nextInstr = 0
	b.nextBlock = 0

	entry := b.newBlock()
	h.Entry = entry.ID
	b.setBlock(entry)

	b.buildStmt(hd.Body)

	if b.cur.Term == TermNone {
		// Falling off the end of a handler body without an explicit EXIT or
		// a handler call that returned true leaves the request unhandled.
		b.cur.Term = TermRet
		b.cur.HandlerResult = -1
		b.cur.ExitCode = 0
	}
	return h
}

func (b *Builder) newBlock() *Block {
	blk := &Block{ID: b.nextBlock, HandlerResult: -1, MatchCond: -1}
	b.nextBlock++
	b.h.Blocks = append(b.h.Blocks, blk)
	return blk
}

func (b *Builder) setBlock(blk *Block) { b.cur = blk }

func (b *Builder) emit(in *Instr) int {
	in.ID = b.nextInstr
	b.nextInstr++
	b.cur.Instrs = append(b.cur.Instrs, in)
	return in.ID
}

// ---- statements --------------------------------------------------------

func (b *Builder) buildStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.CompoundStmt:
		for _, st := range n.Stmts {
			if b.cur.Term != TermNone {
				break // unreachable: a preceding statement already returned
			}
			b.buildStmt(st)
		}
	case *ast.EmptyStmt:
		// nothing to emit
	case *ast.AssignStmt:
		b.buildAssignStmt(n)
	case *ast.CallStmt:
		b.buildCallStmt(n)
	case *ast.IfStmt:
		b.buildIfStmt(n)
	case *ast.MatchStmt:
		b.buildMatchStmt(n)
	default:
		b.diags.Errorf(diag.ParseUnexpectedToken, s.Position(), "unsupported statement kind in IR builder")
	}
}

func (b *Builder) buildAssignStmt(n *ast.AssignStmt) {
	val := b.buildExpr(n.Value)
	slot, ok := b.globalSlot[n.Name]
	if !ok {
		b.diags.Errorf(diag.ParseUnknownSymbol, n.Pos, "assignment to undeclared variable: %s", n.Name)
		return
	}
	b.emit(&Instr{Kind: KStoreVar, Slot: slot, X: val, Pos: n.Pos})
}

// buildCallStmt lowers a bare call statement, including its optional
// `if`/`unless` postscript guard (spec.md §4.1). When the callee resolves
// to a handler (native or a sibling compiled handler) rather than a plain
// function, the call's boolean result causes this handler to return
// immediately when true — Flow's core sub-handler composition rule.
func (b *Builder) buildCallStmt(n *ast.CallStmt) {
	if n.Guard == nil {
		b.emitInvocation(n)
		return
	}

	condID := b.buildExpr(n.Guard)
	callBlk := b.newBlock()
	afterBlk := b.newBlock()

	b.cur.Term = TermCondBr
	b.cur.CondValue = condID
	b.cur.CondNegate = n.GuardIsUnless
	b.cur.ThenTarget = callBlk.ID
	b.cur.ElseTarget = afterBlk.ID

	b.setBlock(callBlk)
	b.emitInvocation(n)
	if b.cur.Term == TermNone {
		b.cur.Term = TermBr
		b.cur.BrTarget = afterBlk.ID
	}

	b.setBlock(afterBlk)
}

func (b *Builder) emitInvocation(n *ast.CallStmt) {
	args := make([]int, len(n.Args))
	for i, a := range n.Args {
		args[i] = b.buildExpr(a)
	}

	kind, _, _ := b.rt.Lookup(n.Callee)
	switch kind {
	case runtime.SymbolFunction:
		id, _ := b.rt.FunctionIndex(n.Callee)
		b.emit(&Instr{Kind: KCallFunc, Result: types.Void, Name: n.Callee, FuncID: id, Args: args, Pos: n.Pos})
		return
	case runtime.SymbolHandlerNative:
		id, _ := b.rt.HandlerIndex(n.Callee)
		resID := b.emit(&Instr{Kind: KCallHandler, Result: types.Boolean, Name: n.Callee, IsNative: true, FuncID: id, Args: args, Pos: n.Pos})
		b.branchOnHandlerResult(resID)
		return
	}

	if idx, ok := b.handlerIndex[n.Callee]; ok {
		resID := b.emit(&Instr{Kind: KCallHandler, Result: types.Boolean, Name: n.Callee, IsNative: false, HandlerIdx: idx, Args: args, Pos: n.Pos})
		b.branchOnHandlerResult(resID)
		return
	}

	b.diags.Errorf(diag.ParseUnknownSymbol, n.Pos,
		"undefined handler or function: %s (cross-unit handler linking is not performed by this builder)", n.Callee)
}

// branchOnHandlerResult splits the current block so that a handler call
// returning true ends this handler's execution with an implicit EXIT 1,
// while a false result falls through to a fresh continuation block.
func (b *Builder) branchOnHandlerResult(resID int) {
	retBlk := b.newBlock()
	contBlk := b.newBlock()

	b.cur.Term = TermCondBr
	b.cur.CondValue = resID
	b.cur.ThenTarget = retBlk.ID
	b.cur.ElseTarget = contBlk.ID

	b.setBlock(retBlk)
	b.cur.Term = TermRet
	b.cur.HandlerResult = resID
	b.cur.ExitCode = 1

	b.setBlock(contBlk)
}

func (b *Builder) buildIfStmt(n *ast.IfStmt) {
	condID := b.buildExpr(n.Cond)
	thenBlk := b.newBlock()
	var elseBlk *Block
	hasElse := n.Else != nil
	if hasElse {
		elseBlk = b.newBlock()
	}
	joinBlk := b.newBlock()

	b.cur.Term = TermCondBr
	b.cur.CondValue = condID
	b.cur.CondNegate = n.Negate
	b.cur.ThenTarget = thenBlk.ID
	if hasElse {
		b.cur.ElseTarget = elseBlk.ID
	} else {
		b.cur.ElseTarget = joinBlk.ID
	}

	b.setBlock(thenBlk)
	b.buildStmt(n.Then)
	if b.cur.Term == TermNone {
		b.cur.Term = TermBr
		b.cur.BrTarget = joinBlk.ID
	}

	if hasElse {
		b.setBlock(elseBlk)
		b.buildStmt(n.Else)
		if b.cur.Term == TermNone {
			b.cur.Term = TermBr
			b.cur.BrTarget = joinBlk.ID
		}
	}

	b.setBlock(joinBlk)
}

func (b *Builder) buildMatchStmt(n *ast.MatchStmt) {
	condID := b.buildExpr(n.Cond)

	caseBlocks := make([]*Block, len(n.Cases))
	for i := range n.Cases {
		caseBlocks[i] = b.newBlock()
	}
	var elseBlk *Block
	if n.Else != nil {
		elseBlk = b.newBlock()
	}
	joinBlk := b.newBlock()

	matchBlk := b.cur
	matchBlk.Term = TermMatch
	matchBlk.MatchCond = condID
	matchBlk.MatchClass = MatchClass(n.Class) // ast.MatchClass shares ir.MatchClass's ordering
	matchBlk.MatchNoCase = n.NoCase
	if elseBlk != nil {
		matchBlk.MatchElse = elseBlk.ID
	} else {
		matchBlk.MatchElse = joinBlk.ID
	}

	for i, c := range n.Cases {
		lit, ok := tryFold(c.Label)
		if !ok {
			b.diags.Errorf(diag.ParseTypeMismatch, c.Label.Position(), "match label must be a compile-time constant")
			continue
		}
		matchBlk.MatchCases = append(matchBlk.MatchCases, MatchCase{
			ConstIdx: b.internLiteralIndex(lit),
			Target:   caseBlocks[i].ID,
		})

		b.setBlock(caseBlocks[i])
		b.buildStmt(c.Body)
		if b.cur.Term == TermNone {
			b.cur.Term = TermBr
			b.cur.BrTarget = joinBlk.ID
		}
	}

	if elseBlk != nil {
		b.setBlock(elseBlk)
		b.buildStmt(n.Else)
		if b.cur.Term == TermNone {
			b.cur.Term = TermBr
			b.cur.BrTarget = joinBlk.ID
		}
	}

	b.setBlock(joinBlk)
}

func (b *Builder) internLiteralIndex(lit *ast.Literal) int {
	switch lit.Typ {
	case types.String:
		return b.prog.Consts.String(lit.Str)
	case types.RegExp:
		return b.prog.Consts.Regexp(lit.Rx)
	case types.Number:
		return b.prog.Consts.Number(lit.Num)
	case types.IPAddress:
		return b.prog.Consts.IP(lit.IP)
	case types.Cidr:
		return b.prog.Consts.Cidr(lit.CIDR)
	default:
		return 0
	}
}

// ---- expressions --------------------------------------------------------

// buildExpr lowers e to the Instr that computes its value, folding e (or
// any of its subexpressions) to a single KConst wherever tryFold succeeds.
func (b *Builder) buildExpr(e ast.Expr) int {
	if lit, ok := tryFold(e); ok {
		return b.emitConst(lit)
	}

	switch n := e.(type) {
	case *ast.VarRef:
		return b.buildVarRef(n)
	case *ast.UnaryExpr:
		x := b.buildExpr(n.X)
		return b.emit(&Instr{Kind: KUn, Result: n.Result, UnOp: n.Op, X: x, Pos: n.Pos})
	case *ast.BinaryExpr:
		if n.Op == types.OpAdd && n.Result == types.String {
			if parts := flattenStringAdd(n); len(parts) > 2 {
				ids := make([]int, len(parts))
				for i, part := range parts {
					ids[i] = b.buildExpr(part)
				}
				return b.emit(&Instr{Kind: KConcat, Result: types.String, Parts: ids, Pos: n.Pos})
			}
		}
		x := b.buildExpr(n.X)
		y := b.buildExpr(n.Y)
		return b.emit(&Instr{Kind: KBin, Result: n.Result, BinOp: n.Op, X: x, Y: y, Pos: n.Pos})
	case *ast.CastExpr:
		x := b.buildExpr(n.X)
		return b.emit(&Instr{Kind: KCast, Result: n.Target, CastFrom: n.X.Type(), X: x, Pos: n.Pos})
	case *ast.CallExpr:
		return b.buildCallExpr(n)
	case *ast.CondExpr:
		return b.buildCondExpr(n)
	case *ast.HandlerRef:
		b.diags.Errorf(diag.ParseTypeMismatch, n.Pos, "handler %q cannot be used as a first-class value", n.Name)
		return b.emit(&Instr{Kind: KConst, Result: types.Boolean, CKind: ConstBool, BoolVal: false, Pos: n.Pos})
	default:
		b.diags.Errorf(diag.ParseUnexpectedToken, e.Position(), "unsupported expression kind in IR builder")
		return b.emit(&Instr{Kind: KConst, Result: e.Type(), Pos: e.Position()})
	}
}

func (b *Builder) buildVarRef(n *ast.VarRef) int {
	if slot, ok := b.globalSlot[n.Name]; ok {
		return b.emit(&Instr{Kind: KLoadVar, Result: n.Typ, Slot: slot, Pos: n.Pos})
	}
	id, ok := b.rt.PropertyIndex(n.Name)
	if !ok {
		b.diags.Errorf(diag.ParseUnknownSymbol, n.Pos, "undefined property: %s", n.Name)
	}
	return b.emit(&Instr{Kind: KLoadProp, Result: n.Typ, Name: n.Name, FuncID: id, Pos: n.Pos})
}

func (b *Builder) buildCallExpr(n *ast.CallExpr) int {
	args := make([]int, len(n.Args))
	for i, a := range n.Args {
		args[i] = b.buildExpr(a)
	}
	id, ok := b.rt.FunctionIndex(n.Callee)
	if !ok {
		b.diags.Errorf(diag.ParseUnknownSymbol, n.Pos, "undefined function: %s", n.Callee)
	}
	return b.emit(&Instr{Kind: KCallFunc, Result: n.Result, Name: n.Callee, FuncID: id, Args: args, Pos: n.Pos})
}

// buildCondExpr lowers the ternary form by splitting into then/else blocks
// that each store into a fresh handler-local temp, merged by a load in the
// join block — there is no phi node in this IR (spec.md §9's register-VM
// target makes a slot simpler than SSA phi placement).
func (b *Builder) buildCondExpr(n *ast.CondExpr) int {
	condID := b.buildExpr(n.Cond)
	thenBlk := b.newBlock()
	elseBlk := b.newBlock()
	joinBlk := b.newBlock()

	b.cur.Term = TermCondBr
	b.cur.CondValue = condID
	b.cur.ThenTarget = thenBlk.ID
	b.cur.ElseTarget = elseBlk.ID

	temp := b.h.NumTemps
	b.h.NumTemps++

	b.setBlock(thenBlk)
	thenVal := b.buildExpr(n.Then)
	b.emit(&Instr{Kind: KStoreTemp, Slot: temp, X: thenVal, Pos: n.Pos})
	b.cur.Term = TermBr
	b.cur.BrTarget = joinBlk.ID

	b.setBlock(elseBlk)
	elseVal := b.buildExpr(n.Else)
	b.emit(&Instr{Kind: KStoreTemp, Slot: temp, X: elseVal, Pos: n.Pos})
	b.cur.Term = TermBr
	b.cur.BrTarget = joinBlk.ID

	b.setBlock(joinBlk)
	return b.emit(&Instr{Kind: KLoadTemp, Result: n.Result, Slot: temp, Pos: n.Pos})
}

// flattenStringAdd unrolls a left/right-nested chain of string `+`
// BinaryExprs (as internal/parser's concatStrings builds for interpolated
// strings) into its flat operand list, so three or more parts can be
// lowered to one KConcat instead of N-1 nested KBin adds (SPEC_FULL.md's
// SADDMULTI opcode target).
func flattenStringAdd(e ast.Expr) []ast.Expr {
	bin, ok := e.(*ast.BinaryExpr)
	if !ok || bin.Op != types.OpAdd || bin.Result != types.String {
		return []ast.Expr{e}
	}
	return append(flattenStringAdd(bin.X), flattenStringAdd(bin.Y)...)
}

func (b *Builder) emitConst(lit *ast.Literal) int {
	in := &Instr{Kind: KConst, Result: lit.Typ, Pos: lit.Position()}
	b.fillConst(lit, &in.CKind, &in.ConstIdx, &in.BoolVal)
	return b.emit(in)
}
