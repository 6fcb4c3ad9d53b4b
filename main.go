// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urlverdict/verdict-cli/cmd"
)

// main is the entry point for the verdict CLI application.
func main() {
	// Cancel in-flight scans on SIGINT/SIGTERM so the batch engine can
	// synthesize timeout results instead of dying mid-flight.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
