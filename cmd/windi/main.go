// Command windi decides document governance levels, seals audit records and
// keeps the forensic ledger and submission registry.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/windi/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "windi: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
