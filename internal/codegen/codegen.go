// Package codegen lowers an ir.Program into the packed bytecode.Program
// the VM executes: register allocation, opcode selection by operand type,
// and two-pass branch/match-table resolution (spec.md §3.4, §6).
//
// Register allocation deliberately never reuses or frees a register once
// assigned: every ir.Instr gets one VM register for the handler's whole
// lifetime. A value produced in one block can legitimately be referenced
// from a later block reached only through it (internal/ir's handler-call
// early-return splitting does this — the "returned true" block references
// the call result computed in its predecessor), which rules out simple
// per-block register reuse without a real liveness/dominance analysis.
// Given Flow handlers are small, trading some register pressure for a
// codegen pass simple enough to trust by inspection is the right call
// here; this is recorded in DESIGN.md rather than silently assumed.
package codegen

import (
	"github.com/x0sh/flow/internal/bytecode"
	"github.com/x0sh/flow/internal/ir"
	"github.com/x0sh/flow/internal/runtime"
	"github.com/x0sh/flow/internal/types"
)

// Compile lowers prog, resolving native function/handler/property ids
// against rt (the same registry internal/ir.Builder resolved symbols
// against, so every id prog already carries is valid here).
func Compile(prog *ir.Program, rt *runtime.Runtime) *bytecode.Program {
	out := &bytecode.Program{
		ID:       prog.ID,
		Name:     prog.Name,
		EntryIdx: prog.EntryIdx,
		Consts: bytecode.ConstPool{
			Numbers: append([]int64(nil), prog.Consts.Numbers...),
			Strings: append([]string(nil), prog.Consts.Strings...),
			IPs:     append([]string(nil), prog.Consts.IPs...),
			CIDRs:   append([]string(nil), prog.Consts.CIDRs...),
			Regexps: append([]string(nil), prog.Consts.Regexps...),
		},
	}

	for _, g := range prog.Globals {
		out.Globals = append(out.Globals, bytecode.GlobalVar{
			Name:     g.Name,
			CKind:    bytecode.ConstKind(g.CKind),
			ConstIdx: g.ConstIdx,
			BoolVal:  g.BoolVal,
		})
	}

	for _, f := range rt.Functions() {
		out.Funcs = append(out.Funcs, bytecode.NativeSig{Name: f.Name, ParamLen: len(f.Sig.Params)})
	}
	for _, h := range rt.Handlers() {
		out.Handlers = append(out.Handlers, bytecode.NativeSig{Name: h.Name, ParamLen: len(h.Sig.Params)})
	}
	numFuncs := len(out.Funcs)

	g := &generator{
		out:        out,
		numGlobals: len(prog.Globals),
		numFuncs:   numFuncs,
	}

	for _, h := range prog.Handlers {
		out.Units = append(out.Units, g.compileHandler(h))
	}
	return out
}

type generator struct {
	out        *bytecode.Program
	numGlobals int
	numFuncs   int
}

// pendingJump is a not-yet-resolved branch: out.Instructions[pc] needs its
// immediate operand(s) rewritten once blockPC is known.
type pendingJump struct {
	pc     int
	op     bytecode.Opcode
	a      uint16 // register operand, already final
	target int    // ir block ID
}

// pendingMatchTarget resolves a MatchTable's case or else block-ID
// targets to absolute instruction indices in the same second pass.
type pendingMatchTarget struct {
	tableIdx int
	caseIdx  int // -1 means "the table's ElsePC field"
	target   int
}

type handlerGen struct {
	h *ir.Handler

	instrByID map[int]*ir.Instr // keyed by Instr.ID, not physical block order
	reg       map[int]uint16
	nextReg   uint16
	tempBase  uint16

	code    []bytecode.Instruction
	matches []bytecode.MatchTable

	blockPC      map[int]int // ir block ID -> starting instruction index
	blockOrder   []int       // ir block IDs in physical layout order
	nextOf       map[int]int // ir block ID -> physically-following block ID, -1 if last

	jumps        []pendingJump
	matchTargets []pendingMatchTarget
}

func (g *generator) compileHandler(h *ir.Handler) *bytecode.Handler {
	hg := &handlerGen{
		h:         h,
		reg:       make(map[int]uint16),
		tempBase:  uint16(g.numGlobals),
		blockPC:   make(map[int]int),
		nextOf:    make(map[int]int),
		instrByID: make(map[int]*ir.Instr),
	}
	hg.nextReg = hg.tempBase + uint16(h.NumTemps)

	// Keyed by Instr.ID rather than flattened block position: a block
	// created later by the builder (e.g. branchOnHandlerResult's
	// retBlk/contBlk, appended after sibling blocks of an enclosing if)
	// can still sit earlier in h.Blocks' physical order than blocks with
	// lower IDs, so position and ID order aren't interchangeable here.
	for _, blk := range h.Blocks {
		for _, in := range blk.Instrs {
			hg.instrByID[in.ID] = in
		}
	}

	hg.blockOrder = make([]int, len(h.Blocks))
	for i, blk := range h.Blocks {
		hg.blockOrder[i] = blk.ID
		if i+1 < len(h.Blocks) {
			hg.nextOf[blk.ID] = h.Blocks[i+1].ID
		} else {
			hg.nextOf[blk.ID] = -1
		}
	}

	byID := make(map[int]*ir.Block, len(h.Blocks))
	for _, blk := range h.Blocks {
		byID[blk.ID] = blk
	}

	for _, bid := range hg.blockOrder {
		hg.blockPC[bid] = len(hg.code)
		g.compileBlock(hg, byID[bid])
	}

	for _, j := range hg.jumps {
		target := hg.blockPC[j.target]
		if j.op.Sig() == bytecode.SigI {
			// JMP has no register operand; the target is A itself.
			hg.code[j.pc] = bytecode.Encode(j.op, uint16(target), 0, 0)
		} else {
			// JZ/JN: A is the condition register, B is the target.
			hg.code[j.pc] = bytecode.Encode(j.op, j.a, uint16(target), 0)
		}
	}
	for _, m := range hg.matchTargets {
		pc := hg.blockPC[m.target]
		if m.caseIdx < 0 {
			hg.matches[m.tableIdx].ElsePC = pc
		} else {
			hg.matches[m.tableIdx].Cases[m.caseIdx].Target = pc
		}
	}

	return &bytecode.Handler{
		Name:         h.Name,
		Instructions: hg.code,
		Matches:      hg.matches,
		NumRegisters: int(hg.nextReg),
	}
}

func (g *generator) compileBlock(hg *handlerGen, blk *ir.Block) {
	for _, in := range blk.Instrs {
		g.compileInstr(hg, in)
	}
	g.compileTerm(hg, blk)
}

func (hg *handlerGen) emit(op bytecode.Opcode, a, b, c uint16) {
	hg.code = append(hg.code, bytecode.Encode(op, a, b, c))
}

func (hg *handlerGen) emitJump(op bytecode.Opcode, a uint16, target int) {
	hg.jumps = append(hg.jumps, pendingJump{pc: len(hg.code), op: op, a: a, target: target})
	hg.code = append(hg.code, bytecode.Encode(op, a, 0, 0)) // patched in pass 2
}

// regFor returns the register holding instr's value, allocating a fresh
// one on first use. Global-var loads and temp loads are pinned directly
// to their slot's reserved register instead of allocating — see the
// package doc comment and DESIGN.md's "global vars as pinned slots" note.
func (hg *handlerGen) regFor(id int) uint16 {
	if r, ok := hg.reg[id]; ok {
		return r
	}
	in := hg.instrByID[id]
	var r uint16
	switch in.Kind {
	case ir.KLoadVar:
		r = uint16(in.Slot)
	case ir.KLoadTemp:
		r = hg.tempBase + uint16(in.Slot)
	default:
		r = hg.nextReg
		hg.nextReg++
	}
	hg.reg[id] = r
	return r
}

func (g *generator) compileInstr(hg *handlerGen, in *ir.Instr) {
	dst := hg.regFor(in.ID)

	switch in.Kind {
	case ir.KConst:
		g.compileConst(hg, in, dst)
	case ir.KLoadVar:
		// dst already *is* the global's reserved register; nothing to emit.
	case ir.KStoreVar:
		hg.emit(bytecode.Mov, uint16(in.Slot), hg.regFor(in.X), 0)
	case ir.KLoadTemp:
		// dst already *is* the temp's reserved register; nothing to emit.
	case ir.KStoreTemp:
		hg.emit(bytecode.Mov, hg.tempBase+uint16(in.Slot), hg.regFor(in.X), 0)
	case ir.KUn:
		g.compileUnary(hg, in, dst)
	case ir.KBin:
		g.compileBinary(hg, in, dst)
	case ir.KCast:
		g.compileCast(hg, in, dst)
	case ir.KLoadProp:
		hg.emit(bytecode.Call, uint16(g.numFuncs+in.FuncID), 0, dst)
	case ir.KCallFunc:
		rbase := g.compileArgs(hg, in.Args)
		hg.emit(bytecode.Call, uint16(in.FuncID), uint16(len(in.Args)), rbase)
		// The actual return value lands at rbase; copy to this value's
		// assigned register so later instructions can use it uniformly
		// (dst is allocated before the argument window, so the two differ).
		if rbase != dst {
			hg.emit(bytecode.Mov, dst, rbase, 0)
		}
	case ir.KCallHandler:
		id := uint16(in.FuncID)
		if !in.IsNative {
			id = uint16(len(g.out.Handlers) + in.HandlerIdx)
		}
		rbase := g.compileArgs(hg, in.Args)
		hg.emit(bytecode.Handler, id, uint16(len(in.Args)), rbase)
		if rbase != dst {
			hg.emit(bytecode.Mov, dst, rbase, 0)
		}
	case ir.KConcat:
		g.compileConcat(hg, in, dst)
	}
}

// compileArgs materializes a call's argument values into a freshly
// allocated, contiguous register run and returns its base register,
// matching the native dispatch ABI's "argc registers starting at rbase"
// contract (spec.md §9). The window is always newly allocated rather than
// reusing args[0]'s existing register as the base: under "allocate
// forever" register assignment, an already-live register can sit anywhere
// in the file, so only a fresh window is guaranteed not to alias another
// still-needed value.
func (g *generator) compileArgs(hg *handlerGen, args []int) uint16 {
	base := hg.nextReg
	// A zero-argument call still gets one register: the result lands at rbase.
	hg.nextReg += uint16(max(len(args), 1))
	for i, a := range args {
		src := hg.regFor(a)
		dst := base + uint16(i)
		if src != dst {
			hg.emit(bytecode.Mov, dst, src, 0)
		}
	}
	return base
}

func (g *generator) compileConst(hg *handlerGen, in *ir.Instr, dst uint16) {
	switch in.CKind {
	case ir.ConstBool:
		v := uint16(0)
		if in.BoolVal {
			v = 1
		}
		hg.emit(bytecode.Imov, dst, v, 0)
	case ir.ConstNumber:
		hg.emit(bytecode.Nconst, dst, uint16(in.ConstIdx), 0)
	case ir.ConstString:
		hg.emit(bytecode.Sconst, dst, uint16(in.ConstIdx), 0)
	case ir.ConstIP:
		hg.emit(bytecode.Pconst, dst, uint16(in.ConstIdx), 0)
	case ir.ConstCidr:
		hg.emit(bytecode.Cconst, dst, uint16(in.ConstIdx), 0)
	case ir.ConstRegexp:
		hg.emit(bytecode.Rconst, dst, uint16(in.ConstIdx), 0)
	}
}

func (g *generator) compileUnary(hg *handlerGen, in *ir.Instr, dst uint16) {
	x := hg.regFor(in.X)
	switch in.UnOp {
	case types.OpNeg:
		hg.emit(bytecode.Nneg, dst, x, 0)
	case types.OpLogicalNot:
		hg.emit(bytecode.Bnot, dst, x, 0)
	case types.OpNot:
		// No dedicated bitwise-NOT opcode exists in the instruction set
		// (original_source's header has none either): synthesize x ^ -1.
		neg1 := hg.nextReg
		hg.nextReg++
		hg.emit(bytecode.Imov, neg1, 0xffff, 0)
		hg.emit(bytecode.Nxor, dst, x, neg1)
	}
}

var numericBin = map[types.BinOp]bytecode.Opcode{
	types.OpAdd: bytecode.Nadd, types.OpSub: bytecode.Nsub, types.OpMul: bytecode.Nmul,
	types.OpDiv: bytecode.Ndiv, types.OpRem: bytecode.Nrem, types.OpShl: bytecode.Nshl,
	types.OpShr: bytecode.Nshr, types.OpPow: bytecode.Npow, types.OpAnd: bytecode.Nand,
	types.OpOr: bytecode.Nor, types.OpXor: bytecode.Nxor,
	types.OpEq: bytecode.Ncmpeq, types.OpNe: bytecode.Ncmpne, types.OpLe: bytecode.Ncmple,
	types.OpGe: bytecode.Ncmpge, types.OpLt: bytecode.Ncmplt, types.OpGt: bytecode.Ncmpgt,
}

var stringBin = map[types.BinOp]bytecode.Opcode{
	types.OpAdd: bytecode.Sadd, types.OpEq: bytecode.Scmpeq, types.OpNe: bytecode.Scmpne,
	types.OpLe: bytecode.Scmple, types.OpGe: bytecode.Scmpge, types.OpLt: bytecode.Scmplt,
	types.OpGt: bytecode.Scmpgt, types.OpPrefixMatch: bytecode.Scmpbeg, types.OpSuffixMatch: bytecode.Scmpend,
	types.OpContains: bytecode.Scontains, types.OpRegexMatch: bytecode.Sregmatch,
}

var boolBin = map[types.BinOp]bytecode.Opcode{
	types.OpAnd: bytecode.Band, types.OpOr: bytecode.Bor, types.OpXor: bytecode.Bxor,
	types.OpLogicalAnd: bytecode.Band, types.OpLogicalOr: bytecode.Bor, types.OpLogicalXor: bytecode.Bxor,
}

func (g *generator) compileBinary(hg *handlerGen, in *ir.Instr, dst uint16) {
	x := hg.regFor(in.X)
	y := hg.regFor(in.Y)
	xt := hg.instrByID[in.X].Result

	switch {
	case in.BinOp == types.OpContains && xt == types.IPAddress:
		hg.emit(bytecode.Pincidr, dst, x, y)
		return
	case xt == types.IPAddress:
		if op, ok := map[types.BinOp]bytecode.Opcode{types.OpEq: bytecode.Pcmpeq, types.OpNe: bytecode.Pcmpne}[in.BinOp]; ok {
			hg.emit(op, dst, x, y)
			return
		}
	case xt == types.String:
		if op, ok := stringBin[in.BinOp]; ok {
			hg.emit(op, dst, x, y)
			return
		}
	case xt == types.Boolean:
		if op, ok := boolBin[in.BinOp]; ok {
			hg.emit(op, dst, x, y)
			return
		}
	}
	if op, ok := numericBin[in.BinOp]; ok {
		hg.emit(op, dst, x, y)
		return
	}
	// Unreachable: internal/parser's types.ResolveBinary already rejected
	// any (op, lhs, rhs) combination not covered above.
	hg.emit(bytecode.Nop, 0, 0, 0)
}

func (g *generator) compileCast(hg *handlerGen, in *ir.Instr, dst uint16) {
	x := hg.regFor(in.X)
	switch {
	case in.CastFrom == types.Boolean && in.Result == types.String:
		hg.emit(bytecode.B2s, dst, x, 0)
	case in.CastFrom == types.Number && in.Result == types.String:
		hg.emit(bytecode.I2s, dst, x, 0)
	case in.CastFrom == types.IPAddress && in.Result == types.String:
		hg.emit(bytecode.P2s, dst, x, 0)
	case in.CastFrom == types.Cidr && in.Result == types.String:
		hg.emit(bytecode.C2s, dst, x, 0)
	case in.CastFrom == types.RegExp && in.Result == types.String:
		hg.emit(bytecode.R2s, dst, x, 0)
	case in.CastFrom == types.String && in.Result == types.Number:
		hg.emit(bytecode.S2i, dst, x, 0)
	default:
		hg.emit(bytecode.Mov, dst, x, 0)
	}
}

// compileConcat materializes a run of >=3 string parts into contiguous
// registers and emits one SADDMULTI, SPEC_FULL.md's restored opcode for
// multi-way string concatenation.
func (g *generator) compileConcat(hg *handlerGen, in *ir.Instr, dst uint16) {
	base := g.compileArgs(hg, in.Parts)
	hg.emit(bytecode.Saddmulti, dst, base, uint16(len(in.Parts)))
}

func (g *generator) compileTerm(hg *handlerGen, blk *ir.Block) {
	next := hg.nextOf[blk.ID]
	switch blk.Term {
	case ir.TermBr:
		if blk.BrTarget != next {
			hg.emitJump(bytecode.Jmp, 0, blk.BrTarget)
		}
	case ir.TermRet:
		hg.emit(bytecode.Exit, uint16(blk.ExitCode), 0, 0)
	case ir.TermCondBr:
		g.compileCondBr(hg, blk, next)
	case ir.TermMatch:
		g.compileMatch(hg, blk)
	}
}

// compileCondBr implements adjacency-aware branching (spec.md §9): when
// either side of the branch is the physically-next block, only one
// conditional jump is emitted and that side falls through; only when
// neither side is adjacent does it fall back to jump-then-jump.
func (g *generator) compileCondBr(hg *handlerGen, blk *ir.Block, next int) {
	cond := hg.regFor(blk.CondValue)
	// Jn = jump if truthy/nonzero, Jz = jump if falsy/zero (falls through on
	// the other), matching spec.md §6.1's JN/JZ naming.
	takeThen := bytecode.Jn
	takeElse := bytecode.Jz
	if blk.CondNegate {
		takeThen, takeElse = takeElse, takeThen
	}

	switch {
	case blk.ElseTarget == next:
		hg.emitJump(takeThen, cond, blk.ThenTarget)
	case blk.ThenTarget == next:
		hg.emitJump(takeElse, cond, blk.ElseTarget)
	default:
		hg.emitJump(takeThen, cond, blk.ThenTarget)
		hg.emitJump(bytecode.Jmp, 0, blk.ElseTarget)
	}
}

var matchOpcode = map[ir.MatchClass]bytecode.Opcode{
	ir.MatchSame:    bytecode.Smatcheq,
	ir.MatchHead:    bytecode.Smatchbeg,
	ir.MatchTail:    bytecode.Smatchend,
	ir.MatchRegExp:  bytecode.Smatchr,
}

func (g *generator) compileMatch(hg *handlerGen, blk *ir.Block) {
	cond := hg.regFor(blk.MatchCond)
	tableIdx := len(hg.matches)

	table := bytecode.MatchTable{Class: bytecode.MatchClass(blk.MatchClass), NoCase: blk.MatchNoCase}
	for _, c := range blk.MatchCases {
		table.Cases = append(table.Cases, bytecode.MatchCase{ConstIndex: c.ConstIdx})
	}
	hg.matches = append(hg.matches, table)

	for i, c := range blk.MatchCases {
		hg.matchTargets = append(hg.matchTargets, pendingMatchTarget{tableIdx: tableIdx, caseIdx: i, target: c.Target})
	}
	hg.matchTargets = append(hg.matchTargets, pendingMatchTarget{tableIdx: tableIdx, caseIdx: -1, target: blk.MatchElse})

	op := matchOpcode[blk.MatchClass]
	hg.emit(op, cond, uint16(tableIdx), 0)
}
