// Package main is the rosterwatch entry point.
package main

import "github.com/rosterlabs/rosterwatch/internal/cli"

func main() {
	cli.Execute()
}
