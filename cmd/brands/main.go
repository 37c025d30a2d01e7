package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "brands",
	Short: "Social content contract pipeline",
	Long: `brands turns platform-agnostic content items into per-platform contracts,
validates them against each format's output schema and publishes them.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, mcpCmd, migrateCmd, seedFormatsCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
