// Package main provides the entry point for the labctl operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"labflow/internal/cli"
)

func main() {
	_ = godotenv.Load(".env")
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
