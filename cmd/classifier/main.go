// Package main is the single-binary entrypoint for the classifier.
package main

import "github.com/tutu-network/classifier/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
