package main

import (
	"os"

	"tarediiran-industries.com/clockpi/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
