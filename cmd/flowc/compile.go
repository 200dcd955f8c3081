package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/x0sh/flow/internal/bytecode"
	"github.com/x0sh/flow/internal/codegen"
	"github.com/x0sh/flow/internal/ir"
	"github.com/x0sh/flow/internal/nativelib"
	"github.com/x0sh/flow/internal/parser"
	"github.com/x0sh/flow/internal/runtime"
)

// compileFile runs the full lex/parse/IR/codegen pipeline over path
// against the demo nativelib runtime, returning a ready-to-run
// bytecode.Program. Every flowc subcommand funnels through this, the same
// way a single pipeline function backs a compiler's build/run/disasm
// front ends.
func compileFile(path string) (*bytecode.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rt := runtime.New()
	nativelib.Register(rt)

	p := parser.New(path, src, rt)
	unit := p.ParseUnit()
	if p.Diagnostics().HasErrors() {
		return nil, fmt.Errorf("%s", p.Diagnostics().Error())
	}

	diags := p.Diagnostics()
	builder := ir.NewBuilder(rt, diags)
	name := filepath.Base(path)
	prog := builder.Build(unit, uuid.NewString(), name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}

	return codegen.Compile(prog, rt), nil
}

// demoRequest builds a nativelib.Request with placeholder field values, so
// `flowc run` has something concrete to dispatch req.*/header.* bindings
// against without standing up a real HTTP server (spec.md's Non-goals
// exclude that surface; see internal/nativelib's package doc).
func demoRequest(path, method, remoteIP string) *nativelib.Request {
	return &nativelib.Request{
		Path:     path,
		Method:   method,
		RemoteIP: remoteIP,
		Headers:  map[string]string{},
	}
}
