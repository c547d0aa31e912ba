package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"AdvisoryScanner/internal/app"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long: `Fetch all enabled feeds, evaluate the new items and send alerts.

Examples:
  advisoryscanner run             # normal run
  advisoryscanner run --dry-run   # evaluate and record, but only log alerts
  advisoryscanner run -v          # also list every candidate with its score`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	application, _, err := bootstrap(cmd.Context(), app.ModeFull)
	if err != nil {
		return err
	}
	defer application.Close()

	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("DRY RUN MODE - alerts will be logged, not sent"))
	}

	stats, err := application.Run(cmd.Context(), usecase.RunOptions{DryRun: dryRun, Verbose: verbose})
	if err != nil {
		return fmt.Errorf("run %s: %w", stats.RunID, err)
	}

	printRunStats(cmd, stats)
	return nil
}

func printRunStats(cmd *cobra.Command, stats domain.RunStats) {
	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Fprintf(out, "\n%s %s\n", cyan("Run"), stats.RunID)
	fmt.Fprintf(out, "  collected:    %d\n", stats.Collected)
	if stats.Malformed > 0 {
		fmt.Fprintf(out, "  malformed:    %s\n", color.YellowString("%d", stats.Malformed))
	}
	fmt.Fprintf(out, "  new:          %d\n", stats.New)
	fmt.Fprintf(out, "  candidates:   %d\n", stats.Candidates)
	fmt.Fprintf(out, "  analyzed:     %d\n", stats.Analyzed)
	if stats.ModelErrors > 0 {
		fmt.Fprintf(out, "  model errors: %s\n", color.RedString("%d", stats.ModelErrors))
	}
	fmt.Fprintf(out, "  relevant:     %d\n", stats.Relevant)
	fmt.Fprintf(out, "  alerts sent:  %s\n", green(stats.AlertsSent))
	if stats.Swept > 0 {
		fmt.Fprintf(out, "  swept:        %d\n", stats.Swept)
	}
}
