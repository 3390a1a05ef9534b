package main

import (
	"os"

	"tarediiran-industries.com/clockpi/internal/clockpi"
)

func main() {
	os.Exit(clockpi.Main(os.Args[0], os.Args[1:], os.Stdout, os.Stderr))
}
