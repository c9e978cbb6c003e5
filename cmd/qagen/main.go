package main

import (
	"os"

	"github.com/fjglira/qagen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
