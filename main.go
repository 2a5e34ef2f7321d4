// The main package for the portfolio-edge executable.
package main

import (
	"github.com/jalaljaleh/portfolio-edge/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
