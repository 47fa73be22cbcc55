// README: Operator CLI for a running dispatch API.
package main

import (
	"fmt"
	"os"

	"smartdispatch/cmd/dispatchctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
