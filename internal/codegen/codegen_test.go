package codegen_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/x0sh/flow/internal/bytecode"
	"github.com/x0sh/flow/internal/codegen"
	"github.com/x0sh/flow/internal/ir"
	"github.com/x0sh/flow/internal/nativelib"
	"github.com/x0sh/flow/internal/parser"
	"github.com/x0sh/flow/internal/runtime"
)

func compile(t *testing.T, source string) *bytecode.Program {
	t.Helper()
	rt := runtime.New()
	nativelib.Register(rt)

	p := parser.New("test.flow", []byte(source), rt)
	unit := p.ParseUnit()
	require.False(t, p.Diagnostics().HasErrors(), "parse diagnostics: %v", p.Diagnostics().All())

	diags := p.Diagnostics()
	b := ir.NewBuilder(rt, diags)
	prog := b.Build(unit, uuid.NewString(), "test")
	require.False(t, diags.HasErrors(), "ir diagnostics: %v", diags.All())

	return codegen.Compile(prog, rt)
}

// TestAdjacencyAwareBranchSkipsSecondJump checks that when the if-branch's
// then arm is the block that physically follows, the if itself compiles to
// a single JZ to the else arm with no trailing unconditional JMP. Each
// respond call still splits its arm (internal/ir's handler-call early
// return): the arm ends in a JN to its return block plus a JMP to its
// continuation block, and each continuation block JMPs to the join block.
// That gives three conditional jumps and four JMPs in all; without the
// adjacency check the if would add a fifth JMP.
func TestAdjacencyAwareBranchSkipsSecondJump(t *testing.T) {
	prog := compile(t, `handler main { if req.path == "/a" then respond 200; else respond 404; }`)
	h, _, ok := prog.HandlerByName("main")
	require.True(t, ok)

	jmpCount := 0
	condCount := 0
	for _, in := range h.Instructions {
		switch in.Opcode() {
		case bytecode.Jmp:
			jmpCount++
		case bytecode.Jz, bytecode.Jn:
			condCount++
		}
	}
	require.Equal(t, 3, condCount, "expected one JZ for the if plus one JN per respond call")
	require.Equal(t, 4, jmpCount, "adjacency-aware branching should need no JMP after the if's JZ")
}

// TestNestedArithmeticTernaryAllocatesRegisters checks that a nested
// arithmetic/ternary expression compiles and that its handler reports a
// nonzero register count.
func TestNestedArithmeticTernaryAllocatesRegisters(t *testing.T) {
	prog := compile(t, `handler main { respond (1 + 2) * (3 + (req.remoteip == ::1 ? 1 : 0)); }`)
	h, _, ok := prog.HandlerByName("main")
	require.True(t, ok)
	require.Greater(t, h.NumRegisters, 0)
}

// TestMatchStatementTableTargetsAreResolved checks that every case target
// and the else target of a compiled match table point at valid, in-range
// instruction offsets (the two-pass patching in compileHandler must have
// run to completion, not left any pendingMatchTarget unresolved at zero).
func TestMatchStatementTableTargetsAreResolved(t *testing.T) {
	prog := compile(t, `handler main { match req.path { on "/a" respond 1; on "/b" respond 2; else respond 3; } }`)
	h, _, ok := prog.HandlerByName("main")
	require.True(t, ok)
	require.Len(t, h.Matches, 1)
	table := h.Matches[0]
	require.Len(t, table.Cases, 2)
	for _, c := range table.Cases {
		require.GreaterOrEqual(t, c.Target, 0)
		require.Less(t, c.Target, len(h.Instructions))
	}
	require.GreaterOrEqual(t, table.ElsePC, 0)
	require.Less(t, table.ElsePC, len(h.Instructions))
}

// TestCompoundThenBranchWithHandlerCallCompilesInIDOrder guards against a
// real miscompile: a then-branch that is a compound statement ending in a
// native handler call gets its continuation block appended (by
// internal/ir's handler-call early-return splitting) after the physically
// earlier else-branch block. Flattening h.Blocks in physical order would
// then put a later block's instructions ahead of an earlier-ID block's in
// instrByID, so any lookup keyed by position instead of Instr.ID reads the
// wrong operand's type. The test compiles that shape and checks that the
// handler has instructions, among them the HANDLER call for deny.
func TestCompoundThenBranchWithHandlerCallCompilesInIDOrder(t *testing.T) {
	prog := compile(t, `handler main { if req.path == "/a" then { deny; respond 400; } else respond 200; }`)
	h, _, ok := prog.HandlerByName("main")
	require.True(t, ok)
	require.Greater(t, len(h.Instructions), 0)

	sawHandlerCall := false
	for _, in := range h.Instructions {
		if in.Opcode() == bytecode.Handler {
			sawHandlerCall = true
		}
	}
	require.True(t, sawHandlerCall, "expected a Handler-opcode call for deny")
}

// TestSiblingHandlerIdIsOffsetPastNatives checks the shared id-space
// convention: a compiled sibling handler's Handler-opcode id is offset by
// the number of registered native handlers, so the VM's single threshold
// comparison can tell which table an id indexes into.
func TestSiblingHandlerIdIsOffsetPastNatives(t *testing.T) {
	prog := compile(t, "handler inner { respond 1; }\nhandler main { inner(); respond 2; }")
	h, _, ok := prog.HandlerByName("main")
	require.True(t, ok)

	found := false
	for _, in := range h.Instructions {
		// The first HANDLER in main is the inner() call; respond's native
		// HANDLER call comes after it.
		if in.Opcode() == bytecode.Handler {
			require.GreaterOrEqual(t, int(in.A()), len(prog.Handlers), "sibling handler id must be offset past native handlers")
			found = true
			break
		}
	}
	require.True(t, found, "expected a Handler-opcode call for inner()")
}
