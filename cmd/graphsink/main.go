// Command graphsink routes broker events into a graph database.
package main

import (
	"os"

	"github.com/drblury/graphsink/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
