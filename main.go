package main

import (
	"os"

	"github.com/docfoundry/docfoundry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
