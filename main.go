package main

import (
	"os"

	"github.com/recruitai/screening-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
