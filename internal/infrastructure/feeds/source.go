package feeds

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
	"AdvisoryScanner/internal/scanner"
)

// Source implements ItemSource by running registered collectors.
type Source struct {
	registry *scanner.Registry
	names    []string
	logger   *slog.Logger
}

var _ ports.ItemSource = (*Source)(nil)

// NewSource wires the registry with the collector names to run. Empty names
// runs every registered collector.
func NewSource(reg *scanner.Registry, names []string, log *slog.Logger) *Source {
	return &Source{
		registry: reg,
		names:    names,
		logger:   log,
	}
}

// Fetch runs the collectors concurrently and concatenates their items in
// collector order. A failing collector is logged and contributes nothing.
func (s *Source) Fetch(ctx context.Context) ([]domain.Item, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("collector registry is not configured")
	}

	names := s.names
	if len(names) == 0 {
		names = s.registry.Names()
	}

	collectors := make([]scanner.Collector, 0, len(names))
	for _, name := range names {
		collector, err := s.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, collector)
	}

	s.debug("fetch", "collectors", len(collectors))

	results := make([][]domain.Item, len(collectors))
	var g errgroup.Group
	for i, collector := range collectors {
		i, collector := i, collector
		g.Go(func() error {
			items, err := collector.Collect(ctx)
			if err != nil {
				s.warn("collector failed", "collector", collector.Name(), "error", err)
				return nil
			}
			s.debug("collector produced items", "collector", collector.Name(), "count", len(items))
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var aggregated []domain.Item
	for _, items := range results {
		aggregated = append(aggregated, items...)
	}

	s.debug("fetch done", "total_items", len(aggregated))
	return aggregated, ctx.Err()
}

func (s *Source) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Source) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
