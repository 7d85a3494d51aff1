// The main package for the cropharvest executable.
package main

import (
	"os"

	"github.com/JakeFAU/cropharvest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	os.Exit(cmd.Execute())
}
