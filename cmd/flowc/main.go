// Command flowc is Flow's reference toolchain entry point: compile a unit
// to bytecode (`build`), compile and execute a handler against the
// internal/nativelib demo runtime (`run`), or print a compiled program's
// instruction listing (`disasm`). This stands in for the HTTP-facing host
// the core deliberately excludes (spec.md's Non-goals) the same way
// internal/nativelib does.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "flowc",
		Short:        "Flow compiler and reference interpreter",
		SilenceUsage: true,
	}
	root.AddCommand(newBuildCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newDisasmCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowc:", err)
		os.Exit(1)
	}
}
