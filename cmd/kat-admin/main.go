// Command kat-admin is the operator CLI for the scan scheduler: it syncs
// plugin manifests and drives task and schedule maintenance directly
// against the backing stores.
package main

import (
	"fmt"
	"os"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/cmd/kat-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
