// Package main is the entry point for formctl, the terminal client for the
// formplane API.
package main

import (
	"os"

	"formplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
