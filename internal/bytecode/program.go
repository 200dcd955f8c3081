package bytecode

import "fmt"

// MatchClass mirrors ast.MatchClass without importing internal/ast, since
// bytecode sits below ast in the dependency graph (codegen is the only
// package that needs both).
type MatchClass int

const (
	MatchSame MatchClass = iota
	MatchHead
	MatchTail
	MatchRegExp
)

func (c MatchClass) String() string {
	switch c {
	case MatchHead:
		return "head"
	case MatchTail:
		return "tail"
	case MatchRegExp:
		return "regexp"
	default:
		return "same"
	}
}

// MatchCase is one compiled `on <label>` arm: the constant-pool index of
// the label value plus the instruction index to jump to when it matches.
type MatchCase struct {
	ConstIndex int
	Target     int
}

// MatchTable is the compiled form of one `match` statement, consulted by
// SMATCHEQ/SMATCHBEG/SMATCHEND/SMATCHR at the table index named by the
// instruction's immediate operand (spec.md §9 "keep the transient capture
// result as an explicit field on the Runner, not in a global" — likewise
// the match table itself lives on the compiled Handler, not some
// process-global registry).
type MatchTable struct {
	Class   MatchClass
	NoCase  bool
	Cases   []MatchCase
	ElsePC  int
}

// ConstPool holds every interned constant a Program's handlers reference,
// one flat slice per value type (spec.md §3.4, §9 "constant interning: the
// pool is a value -> id map; id is the stable index used in bytecode
// immediates"). Interning itself happens in internal/ir; by the time a
// Program reaches this struct the slices are already deduplicated.
type ConstPool struct {
	Numbers     []int64
	Strings     []string
	IPs         []string
	CIDRs       []string
	Regexps     []string
	IntArrays   [][]int64
	StringArrays [][]string
	IPArrays    [][]string
	CIDRArrays  [][]string
}

// ConstKind says which ConstPool slice (and which GlobalVar field) a
// global's folded initializer value lives in. Mirrors internal/ir's
// ConstKind; bytecode keeps its own copy rather than importing ir, the
// same way it keeps its own MatchClass (see above).
type ConstKind int

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstBool
	ConstIP
	ConstCidr
	ConstRegexp
)

// GlobalVar is one unit-level `var` binding's compiled form: a folded
// constant plus the register its slot is pinned to (internal/codegen
// reserves registers [0, len(Program.Globals)) for these — see
// DESIGN.md's "global vars as pinned slots" note). internal/vm seeds
// every Runner's register file from this table before running any
// handler.
type GlobalVar struct {
	Name     string
	CKind    ConstKind
	ConstIdx int
	BoolVal  bool
}

// NativeSig records one native function/handler's name and arity for
// disassembly and for the VM to resolve ids against a runtime.Runtime
// (the id itself, a Call/Handler instruction's immediate A operand, is
// this slice's index).
type NativeSig struct {
	Name     string
	ParamLen int
}

// Handler is one compiled entry point: a flat instruction stream (codegen
// already resolved all branches to absolute instruction indices) plus the
// match tables its SMATCH* instructions reference and the register count
// the VM must allocate for it.
type Handler struct {
	Name         string
	Instructions []Instruction
	Matches      []MatchTable
	NumRegisters int
}

// Program is the fully compiled, immutable, shareable unit codegen
// produces and the VM runs (spec.md §5: "Program immutable/shareable
// post-compile; one Runner per request"). ID correlates a compiled
// program across log lines (SPEC_FULL.md's google/uuid wiring).
type Program struct {
	ID       string
	Name     string
	Consts   ConstPool
	Globals  []GlobalVar
	Funcs    []NativeSig
	Handlers []NativeSig
	Units    []*Handler
	EntryIdx int
}

// HandlerByName looks up a compiled handler by its source name.
func (p *Program) HandlerByName(name string) (*Handler, int, bool) {
	for i, h := range p.Units {
		if h.Name == name {
			return h, i, true
		}
	}
	return nil, 0, false
}

// Disassemble renders every handler's instructions in the teacher's
// mnemonic-plus-operands style (vm/compile.go's printed program listing),
// one line per instruction, prefixed with its index for jump targets.
func (p *Program) Disassemble() string {
	out := ""
	for _, h := range p.Units {
		out += fmt.Sprintf("handler %s (registers=%d):\n", h.Name, h.NumRegisters)
		for i, in := range h.Instructions {
			out += fmt.Sprintf("  %4d  %s\n", i, in)
		}
		for i, m := range h.Matches {
			out += fmt.Sprintf("  match#%d class=%s nocase=%v else=%d cases=%d\n", i, m.Class, m.NoCase, m.ElsePC, len(m.Cases))
		}
	}
	return out
}
