// Command tempodb is the command-line interface to the bitemporal document
// store.
package main

import (
	"os"

	"github.com/roach88/tempodb/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		formatter := &cli.OutputFormatter{Format: "text", Writer: os.Stderr}
		_ = formatter.Fail(err)
		os.Exit(cli.GetExitCode(err))
	}
}
