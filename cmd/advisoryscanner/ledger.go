package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"AdvisoryScanner/internal/app"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove ledger entries older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, _, err := bootstrap(cmd.Context(), app.ModeLedger)
		if err != nil {
			return err
		}
		defer application.Close()

		removed, err := application.Cleanup(cmd.Context())
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed %d expired item(s)\n", green("✓"), removed)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, _, err := bootstrap(cmd.Context(), app.ModeLedger)
		if err != nil {
			return err
		}
		defer application.Close()

		stats := application.Stats()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "%s\n", cyan("Ledger"))
		fmt.Fprintf(out, "  storage:      %s\n", stats.Storage)
		fmt.Fprintf(out, "  items:        %d\n", stats.TotalItems)
		if stats.LastUpdated != nil {
			fmt.Fprintf(out, "  last updated: %s\n", stats.LastUpdated.Format(time.RFC3339))
		} else {
			fmt.Fprintf(out, "  last updated: %s\n", color.YellowString("never"))
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <item-id>",
	Short: "Report whether an item id was already processed",
	Long: `Look up an item id in the ledger.

Examples:
  advisoryscanner check nvd:CVE-2025-12345
  advisoryscanner check github:GHSA-xxxx-xxxx-xxxx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := bootstrap(cmd.Context(), app.ModeLedger)
		if err != nil {
			return err
		}
		defer application.Close()

		out := cmd.OutOrStdout()
		rec, ok := application.Check(args[0])
		if !ok {
			fmt.Fprintf(out, "%s %s has not been processed\n", color.YellowString("✗"), args[0])
			return nil
		}
		fmt.Fprintf(out, "%s %s first seen %s\n", color.GreenString("✓"), rec.ID, rec.FirstSeen.Format(time.RFC3339))
		if rec.Title != "" {
			fmt.Fprintf(out, "  %s\n", rec.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd, statsCmd, checkCmd)
}
