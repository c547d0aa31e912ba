package ports

import (
	"context"
	"time"

	"AdvisoryScanner/internal/domain"
)

// ItemSource pulls fresh items from every configured feed.
type ItemSource interface {
	Fetch(ctx context.Context) ([]domain.Item, error)
}

// LedgerRepository persists the dedup ledger. Implementations must keep the
// original FirstSeen when Upsert meets an existing id.
type LedgerRepository interface {
	Load(ctx context.Context) (*domain.Ledger, error)
	Contains(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, records []domain.ProcessedRecord) error
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Flush(ctx context.Context, updatedAt time.Time) error
	Describe() string
	Close() error
}

// RelevanceModel asks an external model which product an item affects.
type RelevanceModel interface {
	Analyze(ctx context.Context, item domain.Item) (domain.Analysis, error)
}

// Completer sends one prompt to a text model and returns its raw answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers alerts to Slack, Telegram or other channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []domain.Alert) error
}

// SnapshotArchiver stores a copy of the ledger outside the primary backend.
type SnapshotArchiver interface {
	Archive(ctx context.Context, name string, payload []byte) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
