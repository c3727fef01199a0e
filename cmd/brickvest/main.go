package main

import (
	"os"

	"github.com/hadleybricks/brickvest/cmd/brickvest/commands"
)

// main is the entry point for the brickvest CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
