// Command lendingd runs the lending rules and the deadline daemon from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/AntonStoeckl/lending-daemon-go/app/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
