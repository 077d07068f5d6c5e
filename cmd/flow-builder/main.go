package main

import (
	"Go2FlowFeatures/cmd/flow-builder/commands"
	"os"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
