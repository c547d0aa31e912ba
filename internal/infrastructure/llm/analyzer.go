package llm

import (
	"context"
	"fmt"
	"log/slog"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
	"AdvisoryScanner/internal/whitelist"
)

// DefaultDescriptionLimit caps the description runes sent to the model.
const DefaultDescriptionLimit = 1000

// Analyzer implements ports.RelevanceModel: it prompts the model for the
// affected product and decides relevance with the whitelist matcher.
type Analyzer struct {
	completer ports.Completer
	matcher   *whitelist.Matcher
	limit     int
	logger    *slog.Logger
}

var _ ports.RelevanceModel = (*Analyzer)(nil)

// NewAnalyzer wires a completer with the whitelist.
func NewAnalyzer(completer ports.Completer, matcher *whitelist.Matcher, descriptionLimit int, logger *slog.Logger) *Analyzer {
	if descriptionLimit <= 0 {
		descriptionLimit = DefaultDescriptionLimit
	}
	if matcher == nil {
		matcher = whitelist.NewMatcher(nil)
	}
	return &Analyzer{
		completer: completer,
		matcher:   matcher,
		limit:     descriptionLimit,
		logger:    logger,
	}
}

// Analyze asks the model about item. Action is required when the product is
// whitelisted and the model rates it critical or high.
func (a *Analyzer) Analyze(ctx context.Context, item domain.Item) (domain.Analysis, error) {
	if a.completer == nil {
		return domain.Analysis{}, fmt.Errorf("relevance model is not configured")
	}

	answer, err := a.completer.Complete(ctx, BuildPrompt(item, a.limit))
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("analyze %s: %w", item.ID, err)
	}

	extraction, err := ParseAnswer(answer)
	if err != nil {
		a.debug("unparseable model answer", "item", item.ID, "answer", truncate(answer, 200))
		return domain.Analysis{Raw: answer}, fmt.Errorf("analyze %s: %w", item.ID, err)
	}

	severity := domain.ParseSeverity(extraction.Severity)
	entry, relevant := a.matcher.Match(extraction.Product)
	a.debug("model verdict",
		"item", item.ID,
		"product", extraction.Product,
		"whitelist_entry", entry,
		"relevant", relevant,
		"severity", severity.String(),
	)

	return domain.Analysis{
		Product:        extraction.Product,
		Severity:       severity,
		Summary:        extraction.Summary,
		Relevant:       relevant,
		ActionRequired: relevant && severity >= domain.SeverityHigh,
		Raw:            answer,
	}, nil
}

func (a *Analyzer) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
