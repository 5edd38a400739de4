// Package main provides the entry point for the supplycache CLI.
package main

import (
	"github.com/goliatone/go-supply-cache/internal/cli"
)

func main() {
	cli.Execute()
}
