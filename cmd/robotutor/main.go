// Command robotutor is the entry point for the robotics textbook tutor.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the question answering API.
package main

import (
	"fmt"
	"os"

	"github.com/robolabs/robotutor/cmd/robotutor/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
