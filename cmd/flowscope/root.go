package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "flowscope",
	Short: "Flowscope - LLM proxy flow monitor",
	Long: `Flowscope records LLM proxy traffic as flows and serves a console API
over them.

It provides:
  - A bounded in-memory flow store with state-aware eviction
  - Filter, expression, and free-text queries with pagination
  - Summary and time-series statistics
  - Export to JSON, JSONL, CSV, Markdown, and HAR with redaction
  - Threshold warnings and a live event stream
  - An optional SQLite archive with scheduled retention pruning`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "flowscope.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
