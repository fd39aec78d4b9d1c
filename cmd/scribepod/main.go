package main

import (
	"os"

	"github.com/lioneltchami/scribepod/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
