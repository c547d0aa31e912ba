package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"AdvisoryScanner/internal/app"
	"AdvisoryScanner/internal/config"
	"AdvisoryScanner/internal/logging"
)

var (
	configPath string
	dryRun     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "advisoryscanner",
	Short: "Scan security advisories for the technologies you run",
	Long: `Collects advisories from NVD, The Hacker News and GitHub, drops the ones
already seen, scores the rest against your tech stack and asks a language
model whether they affect a whitelisted product. Relevant critical and high
findings are sent to Slack, Telegram or Kafka.

Without a subcommand a single run is performed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $ADVISORY_SCANNER_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of sending them")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and per-candidate score output")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "%s failed to load .env: %v\n", color.YellowString("Warning:"), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and wires the application.
func bootstrap(ctx context.Context, mode app.Mode) (*app.Application, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger, mode)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}
