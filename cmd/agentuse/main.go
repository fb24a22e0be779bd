// Package main provides the entry point for the agentuse CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentuse/agentuse/cmd/agentuse/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
