package main

import (
	"os"

	"github.com/vayureader/vayu-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
