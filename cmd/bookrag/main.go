// Package main is the entry point for the bookrag CLI.
package main

import (
	"os"

	"github.com/bulldra/bookrag/cmd/bookrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
