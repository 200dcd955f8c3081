package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisasmCmd() *cobra.Command {
	var trace bool
	cmd := &cobra.Command{
		Use:   "disasm <file.flow>",
		Short: "Print a compiled program's instruction listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := compileFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), prog.Disassemble())
			if trace {
				fmt.Fprintln(cmd.OutOrStdout(), "\n(--trace has no effect on a static listing; run `flowc run --trace` to see executed instructions)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "reserved: accepted for symmetry with `run --trace`")
	return cmd
}
