// Command journalctl is an offline operator tool for inspecting a volume's
// on-media journal and dry-running its crash-replay algorithm without
// bringing the array up.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "journalctl",
	Short: "Inspect and replay a volume's write-ahead journal",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
