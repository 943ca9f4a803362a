// Command gaggle drives distributed HTTP load tests: `gaggle run` for
// a single-process run, `gaggle manager`/`gaggle worker` to coordinate
// a load test across many processes, and `gaggle history` to recall
// past runs persisted with --history-file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "gaggle",
	Short:   "gaggle is a distributed HTTP load generator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gaggle version %s (%s)\n", Version, Commit))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
