package main

import (
	"os"

	"github.com/gaurav-cyamsys/beaver-readout/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
