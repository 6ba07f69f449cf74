package main

import (
	"os"

	"ts3cli/cmd/ts3client/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
