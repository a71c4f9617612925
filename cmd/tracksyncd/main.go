package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tracksyncd",
	Short: "State synchronization server for the personal tracker",
	Long: `tracksyncd stores full application state snapshots per client and
serves them back over HTTP. Writes carry a client-side logical clock;
stale writes are rejected with the current server copy so the client
can recover.

Run 'tracksyncd serve' to start the server.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
