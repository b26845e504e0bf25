// Command narrator plays narrated data walkthroughs in the terminal and
// serves them over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/narrator/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
