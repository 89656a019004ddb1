package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDedupeCmd creates the 'dedupe' subcommand.
func newDedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Run a graph-wide entity deduplication sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			merges, mapping, err := a.engine.DeduplicateEntities(cmd.Context())
			if err != nil {
				return fmt.Errorf("deduplicate entities: %w", err)
			}
			a.logger.Info("dedupe sweep finished", zap.Int("merges", merges))
			return printJSON(cmd, map[string]any{"merges": merges, "merged": mapping})
		},
	}
}

// newValidateCmd creates the 'validate' subcommand.
func newValidateCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the relationship graph",
		Long: `Scans every relationship for self-loops, dangling endpoints, and
out-of-range confidence. With --fix, removable problems are repaired.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Validate(cmd.Context(), fix)
			if err != nil {
				return fmt.Errorf("validate relationships: %w", err)
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair fixable problems")
	return cmd
}
