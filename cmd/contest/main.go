// Command contest runs the stage-gated puzzle contest: the HTTP service,
// an interactive player session, and administrator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/contest/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
