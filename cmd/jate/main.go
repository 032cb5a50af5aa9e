package main

import (
	"os"

	"github.com/jate-dev/jate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
