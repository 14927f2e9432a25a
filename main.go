// The main package for the harvester executable.
package main

import (
	"os"

	"github.com/otaviobraga/registry-harvester/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
