// The main package for the thread-harvester executable.
package main

import (
	"github.com/JakeFAU/thread-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
