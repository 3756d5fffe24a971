// Package main provides the mnist CLI for training and serving digit
// classifiers.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
