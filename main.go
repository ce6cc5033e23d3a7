// Package main provides the entry point for the volmover CLI tool.
// It initializes and executes the root command.
package main

import (
	"volmover/cmd"
)

func main() {
	cmd.Execute()
}
