// Package vm implements the register-based interpreter that executes a
// compiled bytecode.Program (spec.md §3.4, §6). One Runner serves exactly
// one request: the teacher's VM struct is a single shared machine with a
// stack and 32 fixed registers (_examples/KTStephano-GVM/vm/vm.go); Flow's
// target is a stateless, horizontally-scaled request processor instead, so
// each call gets its own Runner with its own register file rather than one
// VM instance being reused and reset between requests (spec.md §5: "Program
// immutable/shareable post-compile; one Runner per request").
package vm

import (
	"errors"
	"regexp"
	"sync"

	"github.com/x0sh/flow/internal/bytecode"
	"github.com/x0sh/flow/internal/runtime"
	"github.com/x0sh/flow/internal/types"
)

// Sentinel trap errors a Runner can stop execution with (spec.md §7 "VM
// runtime traps"), named in the teacher's errFoo sentinel-var style
// (vm.go's errProgramFinished/errSegmentationFault/...).
var (
	errDivideByZero       = errors.New("divide by zero")
	errUnknownInstruction = errors.New("instruction not recognized")
	errBadRegexGroup      = errors.New("no regex match in scope")
	errCallDepthExceeded  = errors.New("handler call depth exceeded")
	errTooManyRegisters   = errors.New("handler register file exceeds configured limit")
	errInstructionLimit   = errors.New("handler exceeded configured instruction limit")
)

// maxCallDepth bounds nested sibling-handler calls (natives.go's
// runSibling); same-unit handlers can call each other by name with no
// cycle check upstream, so this is what turns an accidental A-calls-B-
// calls-A cycle into a trap instead of a stack overflow.
const maxCallDepth = 256

// Value is a dynamically-typed register cell. Flow registers are typed
// implicitly by the opcode that reads them (spec.md's GLOSSARY), so one
// Go struct covers every Flow value kind rather than a raw bit pattern the
// way the teacher's uint32 register is — Flow has no single canonical
// numeric width to reinterpret-cast between types the way the teacher's
// 32-bit architecture does for int/float.
type Value struct {
	Typ  types.Type
	Num  int64
	Str  string
	Bool bool
	IP   string
	CIDR string
	Arr  []Value
}

func numberValue(n int64) Value  { return Value{Typ: types.Number, Num: n} }
func stringValue(s string) Value { return Value{Typ: types.String, Str: s} }
func boolValue(b bool) Value     { return Value{Typ: types.Boolean, Bool: b} }
func ipValue(ip string) Value    { return Value{Typ: types.IPAddress, IP: ip} }
func cidrValue(c string) Value   { return Value{Typ: types.Cidr, CIDR: c} }

func toRuntimeValue(v Value) runtime.Value {
	return runtime.Value{Typ: v.Typ, Num: v.Num, Str: v.Str, Bool: v.Bool, IP: v.IP, CIDR: v.CIDR}
}

func fromRuntimeValue(v runtime.Value) Value {
	return Value{Typ: v.Typ, Num: v.Num, Str: v.Str, Bool: v.Bool, IP: v.IP, CIDR: v.CIDR}
}

// Runner executes one compiled handler to completion against one inbound
// request. It is not safe for concurrent use; callers spin up a fresh
// Runner per request against the same immutable Program/Runtime pair.
type Runner struct {
	prog *bytecode.Program
	rt   *runtime.Runtime
	ud   any

	// RequestID correlates this Runner's log/trace output with the
	// inbound request across log lines (SPEC_FULL.md's domain-stack
	// wiring for google/uuid); empty unless a caller supplies one via
	// WithRequestID.
	RequestID string

	limits Limits

	regs []Value
	pc   int
	h    *bytecode.Handler

	// depth counts nested sibling-handler calls (see natives.go's
	// runSibling); nothing upstream of this Runner rejects a cycle among
	// same-unit handler calls, so this is the backstop against one
	// recursing into a stack overflow.
	depth int

	// Transient regex capture state, explicit on the Runner rather than a
	// package-level global (spec.md §9 "keep the transient capture result
	// as an explicit field on the Runner, not in a global").
	lastMatch []string

	ticks    int64
	trace    bool
	traced   []string
	handled  bool
	exited   bool
	exitCode int64
	err      error
}

// New returns a Runner ready to execute handlers from prog, dispatching
// native calls against rt with the given userdata (spec.md §9 "native
// dispatch ABI": a native receives a view of argument registers plus a
// userdata pointer). Options configure resource limits and the
// correlation id; both are optional and default to unbounded/empty.
func New(prog *bytecode.Program, rt *runtime.Runtime, userdata any, opts ...Option) *Runner {
	r := &Runner{prog: prog, rt: rt, ud: userdata}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trace enables trace output collection (SPEC_FULL.md's debug opcodes,
// wired to `flowc run --trace` rather than to any interactive debugger —
// spec.md's Non-goals exclude source-level debugging).
func (r *Runner) Trace(on bool) { r.trace = on }

// TraceLines returns accumulated NTICKS/NDUMPN/SPRINT output, including
// that of sibling handlers, oldest first.
func (r *Runner) TraceLines() []string { return r.traced }

// Ticks returns the number of instructions executed by this Runner so far,
// summed over all its Run calls and the sibling handlers they invoked.
func (r *Runner) Ticks() int64 { return r.ticks }

// Result is what running one handler to completion produced.
type Result struct {
	Handled  bool
	ExitCode int64
}

// Run executes the handler at handlerIdx to completion (spec.md §8
// scenarios 1-6). A non-nil error is a VM trap (divide-by-zero, a Limits
// bound and the sibling call-depth cap among them) or an error returned by
// a native call; no further native calls happen after it.
func (r *Runner) Run(handlerIdx int) (Result, error) {
	h := r.prog.Units[handlerIdx]
	if r.limits.MaxRegisters > 0 && h.NumRegisters > r.limits.MaxRegisters {
		return Result{}, errTooManyRegisters
	}
	r.h = h
	r.pc = 0
	r.regs = make([]Value, h.NumRegisters)
	r.seedGlobals()
	r.handled = false
	r.exited = false
	r.exitCode = 0
	r.err = nil

	for r.pc < len(h.Instructions) {
		if r.limits.MaxInstructions > 0 && r.ticks >= r.limits.MaxInstructions {
			return Result{}, errInstructionLimit
		}
		in := h.Instructions[r.pc]
		r.pc++
		r.ticks++
		if err := r.exec(in); err != nil {
			return Result{}, err
		}
		if r.err != nil {
			return Result{}, r.err
		}
		if r.exited {
			break
		}
	}
	return Result{Handled: r.handled, ExitCode: r.exitCode}, nil
}

func (r *Runner) seedGlobals() {
	for i, g := range r.prog.Globals {
		switch g.CKind {
		case bytecode.ConstNumber:
			r.regs[i] = numberValue(r.prog.Consts.Numbers[g.ConstIdx])
		case bytecode.ConstString:
			r.regs[i] = stringValue(r.prog.Consts.Strings[g.ConstIdx])
		case bytecode.ConstBool:
			r.regs[i] = boolValue(g.BoolVal)
		case bytecode.ConstIP:
			r.regs[i] = ipValue(r.prog.Consts.IPs[g.ConstIdx])
		case bytecode.ConstCidr:
			r.regs[i] = cidrValue(r.prog.Consts.CIDRs[g.ConstIdx])
		case bytecode.ConstRegexp:
			r.regs[i] = Value{Typ: types.RegExp, Str: r.prog.Consts.Regexps[g.ConstIdx]}
		}
	}
}

// compiledRegexes caches compiled forms of constant-pool regex strings,
// since many concurrent Runners re-execute SMATCHR/SREGMATCH against the
// same immutable Program. sync.Map rather than a plain map guarded by a
// mutex: entries are write-once-per-pattern and read far more often than
// written, which is exactly sync.Map's intended case.
var compiledRegexes sync.Map // string -> *regexp.Regexp

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if v, ok := compiledRegexes.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := compiledRegexes.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}
