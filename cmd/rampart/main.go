// Rampart resolves security rule documents into effective policies and
// evaluates artifacts against them.
//
// Usage:
//
//	# Check a rule directory for parse and graph errors
//	rampart validate --rules ./rules
//
//	# Show the effective policy for an artifact
//	rampart resolve app/page.ts
//
//	# Evaluate an artifact's features
//	rampart evaluate app/page.ts --feature usesRawEval=false
//
//	# Serve the evaluation API
//	rampart serve --config rampart.yaml
//
//	# Inspect stored audit records
//	rampart audit query --verdict block
package main

import (
	"fmt"
	"os"

	"mercator-hq/rampart/pkg/cli"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
