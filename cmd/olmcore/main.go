package main

import (
	"os"

	"olmcore/cmd/olmcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
