package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AdvisoryScanner/internal/dedup"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/filter"
	"AdvisoryScanner/internal/ports"
)

// ErrRunInProgress is returned by TryRun while another run holds the store.
var ErrRunInProgress = errors.New("run already in progress")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source          ports.ItemSource
	Store           *dedup.Store
	Filter          *filter.Pipeline
	Model           ports.RelevanceModel
	Notifier        ports.Notifier
	Archiver        ports.SnapshotArchiver
	Retention       time.Duration
	AlertSeverities []domain.Severity
	Logger          *slog.Logger
	Now             func() time.Time
}

// RunOptions tunes a single run.
type RunOptions struct {
	// DryRun logs alerts instead of notifying. Items are still recorded.
	DryRun bool
	// Verbose logs every candidate with its score breakdown.
	Verbose bool
}

// Pipeline implements the advisory relevance workflow.
type Pipeline struct {
	source    ports.ItemSource
	store     *dedup.Store
	filter    *filter.Pipeline
	model     ports.RelevanceModel
	notifier  ports.Notifier
	archiver  ports.SnapshotArchiver
	retention time.Duration
	alertOn   map[domain.Severity]bool
	logger    *slog.Logger
	now       func() time.Time

	runMu sync.Mutex
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	severities := deps.AlertSeverities
	if len(severities) == 0 {
		severities = []domain.Severity{domain.SeverityCritical, domain.SeverityHigh}
	}
	alertOn := make(map[domain.Severity]bool, len(severities))
	for _, sev := range severities {
		alertOn[sev] = true
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Pipeline{
		source:    deps.Source,
		store:     deps.Store,
		filter:    deps.Filter,
		model:     deps.Model,
		notifier:  deps.Notifier,
		archiver:  deps.Archiver,
		retention: deps.Retention,
		alertOn:   alertOn,
		logger:    deps.Logger,
		now:       now,
	}
}

// Run executes one full pass. Only ledger write failures and cancellation
// abort it; every other collaborator failure is logged and the batch is
// still recorded. A cancelled run leaves unanalyzed candidates unrecorded.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.run(ctx, opts)
}

// TryRun is Run without waiting: it fails with ErrRunInProgress when busy.
func (p *Pipeline) TryRun(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	if !p.runMu.TryLock() {
		return domain.RunStats{}, ErrRunInProgress
	}
	defer p.runMu.Unlock()
	return p.run(ctx, opts)
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	stats := domain.RunStats{RunID: uuid.NewString()}
	if p.store == nil || p.filter == nil {
		return stats, fmt.Errorf("pipeline misconfigured: store and filter are required")
	}
	log := p.log().With("run_id", stats.RunID)

	if p.retention > 0 {
		swept, err := p.store.Sweep(ctx, p.retention)
		if err != nil {
			return stats, err
		}
		stats.Swept = swept
	}

	var fetched []domain.Item
	if p.source != nil {
		items, err := p.source.Fetch(ctx)
		if err != nil {
			log.Warn("fetch failed", "error", err)
		}
		fetched = items
	}
	stats.Collected = len(fetched)

	valid := make([]domain.Item, 0, len(fetched))
	for _, item := range fetched {
		if err := item.Validate(); err != nil {
			stats.Malformed++
			log.Warn("skipping item", "id", item.ID, "error", err)
			continue
		}
		valid = append(valid, item)
	}

	fresh := p.store.FilterNew(valid)
	stats.New = len(fresh)

	candidates, _ := p.filter.Partition(fresh)
	stats.Candidates = len(candidates)
	log.Info("items filtered", "collected", stats.Collected, "new", stats.New, "candidates", stats.Candidates)

	if opts.Verbose {
		for _, c := range candidates {
			log.Info("candidate",
				"id", c.Item.ID,
				"score", c.Score.Score,
				"severity", c.Severity().String(),
				"breakdown", c.Score.Breakdown,
				"title", c.Item.Title,
			)
		}
	}

	alerts, pending := p.analyze(ctx, log, candidates, &stats)

	if err := ctx.Err(); err != nil {
		return stats, p.interrupted(ctx, log, fresh, pending, alerts, opts.DryRun, &stats, err)
	}

	if len(alerts) > 0 {
		p.deliver(ctx, log, alerts, opts.DryRun, &stats)
	}

	if err := p.store.RecordBatch(ctx, fresh); err != nil {
		return stats, err
	}

	p.archive(ctx, log, stats.RunID)

	log.Info("run finished",
		"collected", stats.Collected,
		"new", stats.New,
		"candidates", stats.Candidates,
		"relevant", stats.Relevant,
		"alerts", stats.AlertsSent,
		"model_errors", stats.ModelErrors,
	)
	return stats, nil
}

// analyze consults the model for every candidate and returns the alerts
// worth sending, most severe first. Candidates the model never evaluated
// because ctx was cancelled are returned as pending.
func (p *Pipeline) analyze(ctx context.Context, log *slog.Logger, candidates []filter.Evaluation, stats *domain.RunStats) ([]domain.Alert, map[string]struct{}) {
	if p.model == nil {
		return nil, nil
	}

	var alerts []domain.Alert
	pending := make(map[string]struct{})
	for i, c := range candidates {
		if ctx.Err() != nil {
			for _, rest := range candidates[i:] {
				pending[rest.Item.ID] = struct{}{}
			}
			break
		}
		analysis, err := p.model.Analyze(ctx, c.Item)
		if err != nil {
			if ctx.Err() != nil {
				pending[c.Item.ID] = struct{}{}
				continue
			}
			stats.ModelErrors++
			log.Warn("model analysis failed", "id", c.Item.ID, "error", err)
			continue
		}
		stats.Analyzed++
		if !analysis.Relevant {
			continue
		}
		stats.Relevant++
		if !p.alertOn[analysis.Severity] {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Item:           c.Item,
			Relevant:       analysis.Relevant,
			Severity:       analysis.Severity,
			Product:        analysis.Product,
			Summary:        analysis.Summary,
			ActionRequired: analysis.ActionRequired,
			Score:          c.Score.Score,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity > alerts[j].Severity
	})
	return alerts, pending
}

// interrupted finishes a cancelled run. Alerts already produced are still
// delivered and every item except the pending candidates is recorded, so the
// next run evaluates exactly what this one did not reach.
func (p *Pipeline) interrupted(ctx context.Context, log *slog.Logger, fresh []domain.Item, pending map[string]struct{}, alerts []domain.Alert, dryRun bool, stats *domain.RunStats, cause error) error {
	detached := context.WithoutCancel(ctx)

	if len(alerts) > 0 {
		p.deliver(detached, log, alerts, dryRun, stats)
	}

	evaluated := make([]domain.Item, 0, len(fresh))
	for _, item := range fresh {
		if _, skip := pending[item.ID]; !skip {
			evaluated = append(evaluated, item)
		}
	}
	if err := p.store.RecordBatch(detached, evaluated); err != nil {
		return errors.Join(cause, err)
	}

	log.Warn("run interrupted", "recorded", len(evaluated), "pending", len(pending), "error", cause)
	return cause
}

func (p *Pipeline) deliver(ctx context.Context, log *slog.Logger, alerts []domain.Alert, dryRun bool, stats *domain.RunStats) {
	if dryRun {
		for _, a := range alerts {
			log.Info("dry-run: alert not sent", "id", a.Item.ID, "severity", a.Severity.String(), "product", a.Product)
		}
		return
	}
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, alerts); err != nil {
		log.Error("notify failed", "alerts", len(alerts), "error", err)
		return
	}
	stats.AlertsSent = len(alerts)
}

func (p *Pipeline) archive(ctx context.Context, log *slog.Logger, runID string) {
	if p.archiver == nil {
		return
	}
	payload, err := p.store.Snapshot()
	if err != nil {
		log.Warn("snapshot encode failed", "error", err)
		return
	}
	name := fmt.Sprintf("ledger-%s-%s", p.now().UTC().Format("20060102T150405Z"), runID)
	if err := p.archiver.Archive(ctx, name, payload); err != nil {
		log.Warn("snapshot archive failed", "name", name, "error", err)
	}
}

// Cleanup only sweeps expired records.
func (p *Pipeline) Cleanup(ctx context.Context) (int, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.store == nil {
		return 0, fmt.Errorf("pipeline misconfigured: store is required")
	}
	return p.store.Sweep(ctx, p.retention)
}

// Stats reports the ledger size and freshness.
func (p *Pipeline) Stats() domain.LedgerStats {
	if p.store == nil {
		return domain.LedgerStats{}
	}
	return p.store.Stats()
}

// Check returns the ledger record for id.
func (p *Pipeline) Check(id string) (domain.ProcessedRecord, bool) {
	if p.store == nil {
		return domain.ProcessedRecord{}, false
	}
	return p.store.Get(id)
}

func (p *Pipeline) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.New(slog.DiscardHandler)
}
