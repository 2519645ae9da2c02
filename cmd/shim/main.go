// Command shim is the sandbox entrypoint. The runner mounts it into every
// plugin container and overrides the entrypoint so all catalog access goes
// through it: input files are fetched before the plugin starts and raw
// stdout is uploaded after it exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/shim"
)

func main() {
	s, err := shim.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shim: %v\n", err)
		os.Exit(shim.ExitShimFailure)
	}

	os.Exit(s.Run(context.Background(), os.Args[1:]))
}
