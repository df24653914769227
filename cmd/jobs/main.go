// Package main implements jobs, the command line entry point of the
// coursework background job service. It runs the HTTP API and worker pool,
// applies database migrations and talks to a running server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
