// Package main implements the ctxfuse CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default ~/.config/ctxfuse/config.yaml
	configPath string
	// logLevel overrides logging.level from config
	logLevel string
	// version information, set at build time
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctxfuse",
	Short: "Knowledge retrieval and context fusion",
	Long: `ctxfuse retrieves ranked context snippets for a natural-language query.

It searches the shared knowledge base and the requester's private documents,
fuses semantic similarity with file-name keyword matches, and never mixes one
requester's documents into another's results.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ctxfuse/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
