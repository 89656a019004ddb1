package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entigraph",
		Short: "Knowledge graph crawl orchestrator",
		Long: `entigraph maintains a knowledge graph of real-world entities by
running targeted crawl cycles: it analyzes what a profile is missing,
crawls the web for just those facts, and consolidates the result so
duplicate entities collapse and the relationship graph stays clean.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newDedupeCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}
