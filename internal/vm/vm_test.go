package vm_test

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
	"github.com/x0sh/flow/internal/vm"
)

// compile runs the full pipeline (spec.md §2's Lexer -> Parser -> IR ->
// Codegen chain) over source against a freshly-registered nativelib
// runtime, failing the test on any diagnostic (spec.md §8's six scenarios
// are all expected to compile cleanly).
func compile(t *testing.T, source string) (*runtime.Runtime, *bytecode.Program) {
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

	return rt, codegen.Compile(prog, rt)
}

func run(t *testing.T, source string, req *nativelib.Request) vm.Result {
	t.Helper()
	rt, bc := compile(t, source)
	_, idx, ok := bc.HandlerByName("main")
	require.True(t, ok, "no handler named main")
	r := vm.New(bc, rt, req)
	res, err := r.Run(idx)
	require.NoError(t, err)
	return res
}

// Scenario 1 (spec.md §8): `handler main { respond 200; }` calls
// respond(200) and exits handled.
func TestScenarioSimpleRespond(t *testing.T) {
	req := &nativelib.Request{Headers: map[string]string{}}
	res := run(t, `handler main { respond 200; }`, req)
	require.True(t, res.Handled)
	require.True(t, req.Responded)
	require.EqualValues(t, 200, req.StatusCode)
}

// Scenario 2: if/else branching on a string property.
func TestScenarioIfElseOnProperty(t *testing.T) {
	req := &nativelib.Request{Path: "/a", Headers: map[string]string{}}
	res := run(t, `handler main { if req.path == "/a" then respond 200; else respond 404; }`, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 200, req.StatusCode)

	req2 := &nativelib.Request{Path: "/elsewhere", Headers: map[string]string{}}
	run(t, `handler main { if req.path == "/a" then respond 200; else respond 404; }`, req2)
	require.EqualValues(t, 404, req2.StatusCode)
}

// Scenario 3: a unit-suffixed number literal folds at parse/IR-build time
// before ever reaching the VM.
func TestScenarioUnitSuffixFolds(t *testing.T) {
	req := &nativelib.Request{Headers: map[string]string{}}
	res := run(t, "var x = 2kbyte;\nhandler main { respond x; }", req)
	require.True(t, res.Handled)
	require.EqualValues(t, 2048, req.StatusCode)
}

// Scenario 4: a match statement dispatches on request path.
func TestScenarioMatchStatement(t *testing.T) {
	req := &nativelib.Request{Path: "/b", Headers: map[string]string{}}
	res := run(t, `handler main { match req.path { on "/a" respond 1; on "/b" respond 2; else respond 3; } }`, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 2, req.StatusCode)
}

// Scenario 5: a regex match feeding a ternary, value usable as an argument.
func TestScenarioRegexTernary(t *testing.T) {
	req := &nativelib.Request{Path: "/api/v1", Headers: map[string]string{}}
	res := run(t, `handler main { respond req.path =~ /^\/api\// ? 1 : 0; }`, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 1, req.StatusCode)

	req2 := &nativelib.Request{Path: "/other", Headers: map[string]string{}}
	run(t, `handler main { respond req.path =~ /^\/api\// ? 1 : 0; }`, req2)
	require.EqualValues(t, 0, req2.StatusCode)
}

// Scenario 6: divide by zero traps the VM; no respond call happens.
func TestScenarioDivideByZeroTraps(t *testing.T) {
	rt, bc := compile(t, `handler main { respond 10 / 0; }`)
	_, idx, ok := bc.HandlerByName("main")
	require.True(t, ok)
	req := &nativelib.Request{Headers: map[string]string{}}
	r := vm.New(bc, rt, req)
	_, err := r.Run(idx)
	require.Error(t, err)
	require.False(t, req.Responded)
}

// A native handler call cycle-free sibling dispatch: one compiled handler
// invoking another by name, its boolean result folding into the caller's
// control flow (internal/ir.Builder.branchOnHandlerResult).
func TestSiblingHandlerDispatch(t *testing.T) {
	src := `
handler inner { respond 1; }
handler main { inner(); respond 2; }
`
	req := &nativelib.Request{Headers: map[string]string{}}
	res := run(t, src, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 1, req.StatusCode)
}

// WithMaxRegisters rejects a handler whose compiled register file is
// larger than the configured bound before executing a single instruction.
func TestWithMaxRegistersRejectsOversizedHandler(t *testing.T) {
	rt, bc := compile(t, `handler main { respond (1+2)*(3+4)*(5+6)*(7+8); }`)
	_, idx, ok := bc.HandlerByName("main")
	require.True(t, ok)
	req := &nativelib.Request{Headers: map[string]string{}}
	r := vm.New(bc, rt, req, vm.WithMaxRegisters(1))
	_, err := r.Run(idx)
	require.Error(t, err)
	require.False(t, req.Responded)
}

// WithMaxInstructions traps a handler that runs past the configured
// instruction budget.
func TestWithMaxInstructionsTrapsLongHandler(t *testing.T) {
	rt, bc := compile(t, `handler main { respond (1+2)*(3+4)*(5+6)*(7+8); }`)
	_, idx, ok := bc.HandlerByName("main")
	require.True(t, ok)
	req := &nativelib.Request{Headers: map[string]string{}}
	r := vm.New(bc, rt, req, vm.WithMaxInstructions(1))
	_, err := r.Run(idx)
	require.Error(t, err)
	require.False(t, req.Responded)
}

// header.add must not end the handler the way respond/deny do: a handler
// calling it and then respond should still reach the respond call.
func TestHeaderAddDoesNotShortCircuitHandler(t *testing.T) {
	req := &nativelib.Request{Headers: map[string]string{}}
	res := run(t, `handler main { header.add("X-Flow", "yes"); respond 200; }`, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 200, req.StatusCode)
	require.Equal(t, "yes", req.Headers["x-flow"])
}

// A string literal with three or more parts, some of them runtime values,
// lowers to one KConcat/SADDMULTI instead of chained SADDs (internal/ir's
// flattenStringAdd, SPEC_FULL.md's restored opcode). An all-constant
// literal would fold to a single string constant instead.
func TestStringInterpolationUsesSaddMulti(t *testing.T) {
	req := &nativelib.Request{Path: "/p", Method: "GET", Headers: map[string]string{}}
	res := run(t, `handler main { header.add("X-Flow", "a#{req.path}b#{req.method}c"); respond 200; }`, req)
	require.True(t, res.Handled)
	require.Equal(t, "a/pbGETc", req.Headers["x-flow"])
}

// A boolean value interpolated into a string cast lowers to B2S rather
// than silently stringifying as a number.
func TestBooleanCastToStringUsesB2S(t *testing.T) {
	req := &nativelib.Request{Path: "/a", Headers: map[string]string{}}
	res := run(t, `handler main { header.add("X-Matched", "#{req.path == "/a"}"); respond 200; }`, req)
	require.True(t, res.Handled)
	require.Equal(t, "true", req.Headers["x-matched"])
}

// A case-insensitive match statement folds case for plain string labels.
func TestMatchStatementNoCaseString(t *testing.T) {
	req := &nativelib.Request{Path: "/API", Headers: map[string]string{}}
	res := run(t, `handler main { match req.path nocase { on "/api" respond 1; else respond 2; } }`, req)
	require.True(t, res.Handled)
	require.EqualValues(t, 1, req.StatusCode)
}

// SURLENC/SURLDEC and SSUBSTR's count operand are unreachable from the
// current grammar (no cast syntax or substr() builtin targets them), so
// they're exercised directly against hand-assembled bytecode rather than
// through compile()+run(), the same way fold_test.go unit-tests tryFold
// directly when no end-to-end source reaches it.
func TestUrlEncodeDecodeRoundTrip(t *testing.T) {
	prog := &bytecode.Program{
		Consts: bytecode.ConstPool{Strings: []string{"a b/c"}},
		Units: []*bytecode.Handler{
			{
				Name: "main",
				Instructions: []bytecode.Instruction{
					bytecode.Encode(bytecode.Sconst, 0, 0, 0),
					bytecode.Encode(bytecode.Surlenc, 1, 0, 0),
					bytecode.Encode(bytecode.Surldec, 2, 1, 0),
					bytecode.Encode(bytecode.Scmpeq, 3, 0, 2),
					bytecode.Encode(bytecode.Jz, 3, 6, 0), // not equal: EXIT 0
					bytecode.Encode(bytecode.Exit, 1, 0, 0),
					bytecode.Encode(bytecode.Exit, 0, 0, 0),
				},
				NumRegisters: 4,
			},
		},
	}
	rt := runtime.New()
	r := vm.New(prog, rt, nil)
	res, err := r.Run(0)
	require.NoError(t, err)
	require.True(t, res.Handled)
}

func TestSubstrHonorsCountOperand(t *testing.T) {
	prog := &bytecode.Program{
		Consts: bytecode.ConstPool{Strings: []string{"hello world"}},
		Units: []*bytecode.Handler{
			{
				Name: "main",
				Instructions: []bytecode.Instruction{
					bytecode.Encode(bytecode.Sconst, 0, 0, 0), // r0 = "hello world"
					bytecode.Encode(bytecode.Imov, 1, 6, 0),   // r1 = offset 6
					bytecode.Encode(bytecode.Imov, 2, 5, 0),   // r2 = count 5
					bytecode.Encode(bytecode.Ssubstr, 3, 0, 1), // r3 = substr(r0, r1, r1+1=r2)
					bytecode.Encode(bytecode.Sconst, 4, 1, 0),  // r4 = "world"
					bytecode.Encode(bytecode.Scmpeq, 5, 3, 4),
					bytecode.Encode(bytecode.Jz, 5, 8, 0), // not equal: EXIT 0
					bytecode.Encode(bytecode.Exit, 1, 0, 0),
					bytecode.Encode(bytecode.Exit, 0, 0, 0),
				},
				NumRegisters: 6,
			},
		},
	}
	prog.Consts.Strings = append(prog.Consts.Strings, "world")
	rt := runtime.New()
	r := vm.New(prog, rt, nil)
	res, err := r.Run(0)
	require.NoError(t, err)
	require.True(t, res.Handled)
}

// WithRequestID stamps the Runner for log/trace correlation without
// affecting execution.
func TestWithRequestIDIsStamped(t *testing.T) {
	rt, bc := compile(t, `handler main { respond 200; }`)
	_, idx, ok := bc.HandlerByName("main")
	require.True(t, ok)
	req := &nativelib.Request{Headers: map[string]string{}}
	r := vm.New(bc, rt, req, vm.WithRequestID("req-123"))
	res, err := r.Run(idx)
	require.NoError(t, err)
	require.True(t, res.Handled)
	require.Equal(t, "req-123", r.RequestID)
}
