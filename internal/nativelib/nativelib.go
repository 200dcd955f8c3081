// Package nativelib is a reference set of native bindings for
// internal/runtime, standing in for the HTTP-facing host this core
// deliberately excludes (spec.md's Non-goals). It exists so flowc run and
// the package tests have something real to call into: a request handler
// exercises CALL against req.path()/req.header()/req.remoteip(), HANDLER
// against respond()/header.add()/deny(), and bare identifiers against the
// req.path/req.method/req.remoteip properties.
package nativelib

import (
	"strings"

	"github.com/samber/lo"

	"github.com/x0sh/flow/internal/runtime"
	"github.com/x0sh/flow/internal/types"
)

// Request is the userdata a Runner is handed for one inbound request
// (internal/vm.New's "userdata any" parameter). Every binding below type
// asserts its userdata argument to *Request.
type Request struct {
	Path     string
	Method   string
	RemoteIP string
	Headers  map[string]string

	// Outcome is filled in by the respond/deny/header.add handlers below,
	// the same way a real HTTP filter would mutate a response builder.
	Responded  bool
	StatusCode int64
	Denied     bool
}

func asRequest(userdata any) *Request {
	req, _ := userdata.(*Request)
	return req
}

// funcSpec and handlerSpec let Register build its table as data rather
// than as a run of repeated RegisterFunction/RegisterHandler calls —
// lo.ForEach below walks each slice once.
type funcSpec struct {
	name string
	sig  runtime.Signature
	fn   func(args []runtime.Value, userdata any) (runtime.Value, error)
}

type handlerSpec struct {
	name string
	sig  runtime.Signature
	fn   func(args []runtime.Value, userdata any) (bool, error)
}

type propSpec struct {
	name string
	typ  types.Type
	get  func(userdata any) (runtime.Value, error)
}

// Register installs the reference binding set (SPEC_FULL.md's
// "internal/nativelib (reference Runtime bindings)" section) into rt.
func Register(rt *runtime.Runtime) {
	funcs := []funcSpec{
		{
			name: "req.path",
			sig:  runtime.Signature{Return: types.String},
			fn: func(args []runtime.Value, userdata any) (runtime.Value, error) {
				return runtime.Value{Typ: types.String, Str: asRequest(userdata).Path}, nil
			},
		},
		{
			name: "req.header",
			sig:  runtime.Signature{Params: []types.Type{types.String}, Return: types.String},
			fn: func(args []runtime.Value, userdata any) (runtime.Value, error) {
				req := asRequest(userdata)
				v := req.Headers[strings.ToLower(args[0].Str)]
				return runtime.Value{Typ: types.String, Str: v}, nil
			},
		},
		{
			name: "req.remoteip",
			sig:  runtime.Signature{Return: types.IPAddress},
			fn: func(args []runtime.Value, userdata any) (runtime.Value, error) {
				return runtime.Value{Typ: types.IPAddress, IP: asRequest(userdata).RemoteIP}, nil
			},
		},
	}
	lo.ForEach(funcs, func(f funcSpec, _ int) {
		rt.RegisterFunction(&runtime.NativeFunc{Name: f.name, Sig: f.sig, Fn: f.fn})
	})

	handlers := []handlerSpec{
		{
			name: "respond",
			sig:  runtime.Signature{Params: []types.Type{types.Number}},
			fn: func(args []runtime.Value, userdata any) (bool, error) {
				req := asRequest(userdata)
				req.Responded = true
				req.StatusCode = args[0].Num
				return true, nil
			},
		},
		{
			name: "header.add",
			sig:  runtime.Signature{Params: []types.Type{types.String, types.String}},
			fn: func(args []runtime.Value, userdata any) (bool, error) {
				req := asRequest(userdata)
				if req.Headers == nil {
					req.Headers = make(map[string]string)
				}
				req.Headers[strings.ToLower(args[0].Str)] = args[1].Str
				// Unlike respond/deny, adding a header doesn't conclude the
				// request: a handler calls header.add one or more times and
				// then still calls respond. Returning true here would trip
				// spec.md §6.1's HANDLER-returns-true-means-EXIT-1 rule and
				// stop the handler before respond ever ran.
				return false, nil
			},
		},
		{
			name: "deny",
			sig:  runtime.Signature{},
			fn: func(args []runtime.Value, userdata any) (bool, error) {
				req := asRequest(userdata)
				req.Denied = true
				req.Responded = true
				req.StatusCode = 403
				return true, nil
			},
		},
	}
	lo.ForEach(handlers, func(h handlerSpec, _ int) {
		rt.RegisterHandler(&runtime.NativeHandler{Name: h.name, Sig: h.sig, Fn: h.fn})
	})

	props := []propSpec{
		{
			name: "req.path",
			typ:  types.String,
			get: func(userdata any) (runtime.Value, error) {
				return runtime.Value{Typ: types.String, Str: asRequest(userdata).Path}, nil
			},
		},
		{
			name: "req.method",
			typ:  types.String,
			get: func(userdata any) (runtime.Value, error) {
				return runtime.Value{Typ: types.String, Str: asRequest(userdata).Method}, nil
			},
		},
		{
			name: "req.remoteip",
			typ:  types.IPAddress,
			get: func(userdata any) (runtime.Value, error) {
				return runtime.Value{Typ: types.IPAddress, IP: asRequest(userdata).RemoteIP}, nil
			},
		},
	}
	lo.ForEach(props, func(p propSpec, _ int) {
		rt.RegisterProperty(&runtime.Property{Name: p.name, Typ: p.typ, Get: p.get})
	})
}
