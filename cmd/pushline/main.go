package main

import (
	"fmt"
	"os"

	"github.com/mithrel/pushline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pushline:", err)
		os.Exit(1)
	}
}
