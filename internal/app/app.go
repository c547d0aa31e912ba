package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"AdvisoryScanner/internal/config"
	"AdvisoryScanner/internal/dedup"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/filter"
	"AdvisoryScanner/internal/infrastructure/archive"
	"AdvisoryScanner/internal/infrastructure/feeds"
	"AdvisoryScanner/internal/infrastructure/httpapi"
	"AdvisoryScanner/internal/infrastructure/llm"
	"AdvisoryScanner/internal/infrastructure/notify"
	"AdvisoryScanner/internal/infrastructure/scheduler"
	"AdvisoryScanner/internal/infrastructure/storage"
	"AdvisoryScanner/internal/infrastructure/telegram"
	"AdvisoryScanner/internal/logging"
	"AdvisoryScanner/internal/ports"
	"AdvisoryScanner/internal/scanner"
	"AdvisoryScanner/internal/usecase"
	"AdvisoryScanner/internal/whitelist"
)

// Mode selects how much of the application New wires.
type Mode int

const (
	// ModeLedger opens only the ledger; enough for cleanup, stats and check.
	ModeLedger Mode = iota
	// ModeFull adds feeds, the relevance model, notifiers and the archive.
	ModeFull
)

var _ httpapi.Service = (*usecase.Pipeline)(nil)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	closers  []func() error
}

// New builds the application. Collaborator setup failures other than the
// ledger and the relevance model are logged and the channel is left out.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, mode Mode) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	repo, err := storage.Open(ctx, cfg.Deduplication, baseLogger.With("component", "ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.closers = append(a.closers, repo.Close)

	store, err := dedup.NewStore(ctx, repo, dedup.WithLogger(baseLogger.With("component", "dedup")))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	tech := filter.NewTechFilter(cfg.TechKeywordGroups())
	scorer := filter.NewScoreCalculator(cfg.SecurityKeywords, cfg.Scoring.Weights)
	deps := usecase.PipelineDeps{
		Store:           store,
		Filter:          filter.NewPipeline(tech, scorer, cfg.Filtering.MinScoreForLLM),
		Retention:       cfg.Deduplication.Retention(),
		AlertSeverities: cfg.AlertSeverityTiers(),
		Logger:          baseLogger.With("component", "pipeline"),
	}

	if mode == ModeFull {
		deps.Source = a.buildSource()

		completer, err := llm.NewCompleter(cfg.LLM, baseLogger.With("component", "llm"))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("relevance model: %w", err)
		}
		matcher := whitelist.NewMatcher(cfg.Whitelist.Flatten())
		deps.Model = llm.NewAnalyzer(completer, matcher, cfg.LLM.DescriptionLimit, baseLogger.With("component", "analyzer"))

		deps.Notifier = a.buildNotifier()
		deps.Archiver = a.buildArchiver(ctx)
	}

	a.pipeline = usecase.NewPipeline(deps)
	return a, nil
}

func (a *Application) buildSource() ports.ItemSource {
	feedsCfg := a.cfg.Feeds
	registry := scanner.NewRegistry()
	if feedsCfg.NVD.Enabled {
		registry.Register(feeds.NewNVDCollector(feedsCfg.NVD.URL, nil, a.logger.With("component", "feeds.nvd")))
	}
	if feedsCfg.TheHackerNews.Enabled {
		registry.Register(feeds.NewTHNCollector(feedsCfg.TheHackerNews.URL, nil, a.logger.With("component", "feeds.thehackernews")))
	}
	if feedsCfg.GitHub.Enabled {
		registry.Register(feeds.NewGitHubCollector(feedsCfg.GitHub.URL, feedsCfg.GitHub.Token, feedsCfg.GitHub.Limit, nil,
			a.logger.With("component", "feeds.github")))
	}
	return feeds.NewSource(registry, nil, a.logger.With("component", "source"))
}

func (a *Application) buildNotifier() ports.Notifier {
	ncfg := a.cfg.Notifications
	multi := notify.NewMulti()

	if ncfg.Slack.WebhookURL != "" {
		multi.Add("slack", notify.NewSlackNotifier(ncfg.Slack.WebhookURL, ncfg.Slack.MentionUsers, nil))
	}
	if ncfg.Telegram.BotToken != "" && ncfg.Telegram.ChatID != 0 {
		multi.Add("telegram", telegram.NewNotifier(ncfg.Telegram.BotToken, ncfg.Telegram.ChatID))
	}
	if len(ncfg.Kafka.Brokers) > 0 {
		kafka, err := notify.OpenKafka(ncfg.Kafka.Brokers, ncfg.Kafka.Topic)
		if err != nil {
			a.logger.Warn("kafka notifier disabled", "error", err)
		} else {
			multi.Add("kafka", kafka)
			a.closers = append(a.closers, kafka.Close)
		}
	}

	if multi.Len() == 0 {
		a.logger.Warn("no notification channel configured; alerts will only be logged")
		return notify.NewLogNotifier(a.logger.With("component", "notify"))
	}
	return multi
}

func (a *Application) buildArchiver(ctx context.Context) ports.SnapshotArchiver {
	s3cfg := a.cfg.Archive.S3
	if s3cfg.Bucket == "" {
		return nil
	}
	archiver, err := archive.NewS3Archiver(ctx, s3cfg)
	if err != nil {
		a.logger.Warn("ledger archive disabled", "error", err)
		return nil
	}
	return archiver
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context, opts usecase.RunOptions) (domain.RunStats, error) {
	return a.pipeline.Run(ctx, opts)
}

// Cleanup sweeps expired ledger records.
func (a *Application) Cleanup(ctx context.Context) (int, error) {
	return a.pipeline.Cleanup(ctx)
}

// Stats reports the ledger summary.
func (a *Application) Stats() domain.LedgerStats {
	return a.pipeline.Stats()
}

// Check looks up one item id in the ledger.
func (a *Application) Check(id string) (domain.ProcessedRecord, bool) {
	return a.pipeline.Check(id)
}

// Serve runs the pipeline on the configured schedule and exposes the status
// API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, opts usecase.RunOptions) error {
	schedCfg := a.cfg.Scheduler
	driver := scheduler.NewIntervalScheduler(schedCfg.Interval, schedCfg.Location(), true)
	sched := usecase.NewScheduler(driver, a.pipeline, opts, a.logger.With("component", "scheduler"))

	server := httpapi.NewServer(a.cfg.Server.Addr, httpapi.NewRouter(a.pipeline), a.logger.With("component", "http"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return errors.Join(
		serveErr,
		server.Shutdown(shutdownCtx),
		sched.Stop(shutdownCtx),
	)
}

// Close releases the ledger backend and producers.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
