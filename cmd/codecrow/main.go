// Package main provides the entry point for the codecrow CLI.
package main

import (
	"os"

	"github.com/rostilos/codecrow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
