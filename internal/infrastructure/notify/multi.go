package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// Multi fans alerts out to every channel. One failing channel does not stop
// the others; their errors are joined.
type Multi struct {
	channels []namedNotifier
}

type namedNotifier struct {
	name     string
	notifier ports.Notifier
}

var _ ports.Notifier = (*Multi)(nil)

// NewMulti returns an empty fan-out notifier.
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a channel under name.
func (m *Multi) Add(name string, n ports.Notifier) {
	if n == nil {
		return
	}
	m.channels = append(m.channels, namedNotifier{name: name, notifier: n})
}

// Len returns the number of registered channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Notify delivers alerts to every channel.
func (m *Multi) Notify(ctx context.Context, alerts []domain.Alert) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.notifier.Notify(ctx, alerts); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier logs alerts instead of delivering them. Used for dry runs.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

// NewLogNotifier writes through logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs one line per alert.
func (l *LogNotifier) Notify(_ context.Context, alerts []domain.Alert) error {
	if l.logger == nil {
		return nil
	}
	for _, alert := range alerts {
		l.logger.Info("dry-run alert",
			"item", alert.Item.ID,
			"severity", alert.Severity.String(),
			"product", alert.Product,
			"title", alert.Item.Title,
		)
	}
	return nil
}
