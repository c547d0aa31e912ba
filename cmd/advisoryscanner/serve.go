package main

import (
	"github.com/spf13/cobra"

	"AdvisoryScanner/internal/app"
	"AdvisoryScanner/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run on the configured schedule and expose the status API",
	Long: `Runs the pipeline immediately and then on every scheduler.interval slot in
scheduler.timezone. The HTTP API on server.addr serves:

  GET  /api/health
  GET  /api/ledger/stats
  GET  /api/ledger/:id
  POST /api/runs          {"dry_run": false, "verbose": false}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, logger, err := bootstrap(cmd.Context(), app.ModeFull)
		if err != nil {
			return err
		}
		defer application.Close()

		logger.Info("serving", "dry_run", dryRun)
		return application.Serve(cmd.Context(), usecase.RunOptions{DryRun: dryRun, Verbose: verbose})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
