package vm

import "github.com/x0sh/flow/internal/runtime"

// callFunc implements CALL: id selects either a native function (id <
// numFuncs) or, per internal/codegen's property-access convention, a host
// property read (id >= numFuncs, offset by numFuncs). Either way the
// result lands in the register window starting at rbase, argc registers
// wide (spec.md §9's native dispatch ABI).
func (r *Runner) callFunc(id, argc int, rbase uint16) error {
	numFuncs := len(r.prog.Funcs)
	if id >= numFuncs {
		return r.loadProperty(id-numFuncs, rbase)
	}

	fn := r.rt.Functions()[id]
	args := r.argView(rbase, argc)
	result, err := fn.Fn(args, r.ud)
	if err != nil {
		r.err = err
		r.exited = true
		return nil
	}
	r.regs[rbase] = fromRuntimeValue(result)
	return nil
}

func (r *Runner) loadProperty(propIdx int, rbase uint16) error {
	prop := r.rt.Properties()[propIdx]
	v, err := prop.Get(r.ud)
	if err != nil {
		r.err = err
		r.exited = true
		return nil
	}
	r.regs[rbase] = fromRuntimeValue(v)
	return nil
}

// callHandler implements HANDLER: id selects either a native handler
// (id < numHandlers) or a sibling compiled handler, offset by numHandlers
// (internal/ir/internal/codegen's native/compiled id-space convention —
// see DESIGN.md). The boolean "handled" result lands at rbase; the
// calling bytecode (internal/ir's branchOnHandlerResult lowering) always
// branches on it immediately afterward.
func (r *Runner) callHandler(id, argc int, rbase uint16) error {
	numHandlers := len(r.prog.Handlers)
	args := r.argView(rbase, argc)

	if id < numHandlers {
		h := r.rt.Handlers()[id]
		handled, err := h.Fn(args, r.ud)
		if err != nil {
			r.err = err
			r.exited = true
			return nil
		}
		r.regs[rbase] = boolValue(handled)
		return nil
	}

	return r.runSibling(id-numHandlers, rbase)
}

// runSibling executes a compiled sibling handler inline, reusing this
// Runner's register file layout only for the call's argument window —
// the sibling gets its own fresh set of registers sized to its own
// Handler.NumRegisters, the same as a top-level Run would give it. Its
// EXIT becomes this call's boolean "handled" result rather than ending
// the outer handler's own execution.
func (r *Runner) runSibling(handlerIdx int, rbase uint16) error {
	if r.depth+1 >= maxCallDepth {
		return errCallDepthExceeded
	}
	sub := New(r.prog, r.rt, r.ud)
	sub.trace = r.trace
	sub.depth = r.depth + 1
	res, err := sub.Run(handlerIdx)
	r.traced = append(r.traced, sub.traced...)
	r.ticks += sub.ticks
	if err != nil {
		return err
	}
	r.regs[rbase] = boolValue(res.Handled)
	return nil
}

func (r *Runner) argView(rbase uint16, argc int) []runtime.Value {
	if argc == 0 {
		return nil
	}
	out := make([]runtime.Value, argc)
	for i := 0; i < argc; i++ {
		out[i] = toRuntimeValue(r.regs[int(rbase)+i])
	}
	return out
}
