// Command invsync runs the inventory authority and drives sync engines
// against it.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/invsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "invsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
