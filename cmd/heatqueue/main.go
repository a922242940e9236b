// Command heatqueue is the entry point for the CLI built in internal/cli:
// run starts the system, enqueue submits a job batch, status reports on
// a running instance.
//
// Version is injected at build time via:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
package main

import (
	"fmt"
	"os"

	"github.com/magyarmex/heatqueue/internal/cli"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
