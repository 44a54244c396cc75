// Command netctl is an operator tool for exercising package net end to
// end: it can run a Server over either the in-memory stack or the real
// TCP stack, and it can issue one-shot RESP calls.
package main

import (
	"os"

	"github.com/marmos91/asyncnet/cmd/netctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
