// Command edgelisp runs and tests bounded Lisp scripts for small devices.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/edgelisp/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
