package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/x0sh/flow/internal/nativelib"
	"github.com/x0sh/flow/internal/runtime"
	"github.com/x0sh/flow/internal/vm"
)

func newRunCmd() *cobra.Command {
	var (
		handlerName     string
		reqPath         string
		reqMethod       string
		remoteIP        string
		trace           bool
		maxRegisters    int
		maxInstructions int64
	)

	cmd := &cobra.Command{
		Use:   "run <file.flow>",
		Short: "Compile and execute a handler against the nativelib demo runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := compileFile(args[0])
			if err != nil {
				return err
			}

			_, idx, ok := prog.HandlerByName(handlerName)
			if !ok {
				return fmt.Errorf("no handler named %q in %s", handlerName, args[0])
			}

			rt := runtime.New()
			nativelib.Register(rt)
			req := demoRequest(reqPath, reqMethod, remoteIP)

			opts := []vm.Option{vm.WithRequestID(uuid.NewString())}
			if maxRegisters > 0 {
				opts = append(opts, vm.WithMaxRegisters(maxRegisters))
			}
			if maxInstructions > 0 {
				opts = append(opts, vm.WithMaxInstructions(maxInstructions))
			}

			r := vm.New(prog, rt, req, opts...)
			r.Trace(trace)
			res, err := r.Run(idx)
			if err != nil {
				return fmt.Errorf("trap: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "request=%s handled=%v exit=%d\n", r.RequestID, res.Handled, res.ExitCode)
			if req.Responded {
				fmt.Fprintf(cmd.OutOrStdout(), "status=%d denied=%v headers=%v\n", req.StatusCode, req.Denied, req.Headers)
			}
			if trace {
				for _, line := range r.TraceLines() {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ticks=%d\n", r.Ticks())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&handlerName, "handler", "main", "handler to invoke")
	cmd.Flags().StringVar(&reqPath, "path", "/", "demo request path (req.path)")
	cmd.Flags().StringVar(&reqMethod, "method", "GET", "demo request method (req.method)")
	cmd.Flags().StringVar(&remoteIP, "remoteip", "127.0.0.1", "demo request remote address (req.remoteip)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print NTICKS/NDUMPN trace output and instruction count")
	cmd.Flags().IntVar(&maxRegisters, "max-registers", 0, "reject handlers whose register file exceeds this size (0 = unbounded)")
	cmd.Flags().Int64Var(&maxInstructions, "max-instructions", 0, "trap execution after this many instructions (0 = unbounded)")
	return cmd
}
