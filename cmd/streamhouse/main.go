// Command streamhouse runs the partition registrars of a warehouse and
// provides operator commands for ticking, inspecting and generating data.
package main

import (
	"os"

	"github.com/streamhouse/streamhouse/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
