package main

import (
	"os"

	"github.com/freshair129/eva-msp/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
