package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// ErrLedgerWrite is returned when the ledger could not be persisted. State
// consistency is no longer guaranteed, so callers must abort the run.
var ErrLedgerWrite = errors.New("ledger write failed")

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the persistent set of previously evaluated item ids. It owns the
// in-memory ledger and writes through to the repository on every mutation.
// Readers may run concurrently with a writer; writes are serialized.
type Store struct {
	mu     sync.RWMutex
	repo   ports.LedgerRepository
	ledger *domain.Ledger
	now    func() time.Time
	logger *slog.Logger
}

// NewStore loads the ledger once from repo.
func NewStore(ctx context.Context, repo ports.LedgerRepository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository is not configured")
	}

	s := &Store{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	ledger, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if ledger == nil {
		ledger = domain.NewLedger()
	}
	if ledger.Items == nil {
		ledger.Items = make(map[string]domain.ProcessedRecord)
	}
	s.ledger = ledger

	s.debug("ledger loaded", "items", len(ledger.Items), "storage", repo.Describe())
	return s, nil
}

// IsNew reports whether item has never been recorded.
func (s *Store) IsNew(item domain.Item) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, seen := s.ledger.Items[item.ID]
	return !seen
}

// FilterNew returns the items that are not in the ledger, preserving order.
// An id repeated within items is kept only at its first occurrence.
func (s *Store) FilterNew(items []domain.Item) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fresh := make([]domain.Item, 0, len(items))
	batch := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, seen := s.ledger.Items[item.ID]; seen {
			continue
		}
		if _, dup := batch[item.ID]; dup {
			continue
		}
		batch[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}

// Get returns the record for id.
func (s *Store) Get(id string) (domain.ProcessedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.ledger.Items[id]
	return rec, ok
}

// Record marks a single item as processed.
func (s *Store) Record(ctx context.Context, item domain.Item) error {
	return s.RecordBatch(ctx, []domain.Item{item})
}

// RecordBatch marks items as processed with FirstSeen = now. Items already in
// the ledger keep their original FirstSeen.
func (s *Store) RecordBatch(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	added := make([]domain.ProcessedRecord, 0, len(items))
	for _, item := range items {
		if _, seen := s.ledger.Items[item.ID]; seen {
			continue
		}
		rec := domain.NewProcessedRecord(item, now)
		s.ledger.Items[item.ID] = rec
		added = append(added, rec)
	}

	if len(added) == 0 {
		return nil
	}

	if err := s.repo.Upsert(ctx, added); err != nil {
		s.forget(added)
		return fmt.Errorf("%w: upsert %d records: %w", ErrLedgerWrite, len(added), err)
	}
	// Upsert already handed the records to the repository, so memory keeps
	// them when only the flush fails.
	if err := s.flush(ctx, now); err != nil {
		return err
	}

	s.debug("ledger recorded", "added", len(added), "total", len(s.ledger.Items))
	return nil
}

// Sweep deletes every record first seen before now - retention and returns
// how many were removed.
func (s *Store) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-retention)

	var expired []string
	for id, rec := range s.ledger.Items {
		if rec.FirstSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	if _, err := s.repo.Sweep(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("%w: sweep before %s: %w", ErrLedgerWrite, cutoff.Format(time.RFC3339), err)
	}
	for _, id := range expired {
		delete(s.ledger.Items, id)
	}
	if err := s.flush(ctx, now); err != nil {
		return 0, err
	}

	if s.logger != nil {
		s.logger.Info("ledger swept", "removed", len(expired), "retention", retention.String())
	}
	return len(expired), nil
}

// Stats summarizes the ledger.
func (s *Store) Stats() domain.LedgerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.LedgerStats{
		TotalItems:  len(s.ledger.Items),
		LastUpdated: s.ledger.LastUpdated,
		Storage:     s.repo.Describe(),
	}
}

// Snapshot renders the ledger in its interchange document format.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EncodeDocument(s.ledger)
}

func (s *Store) flush(ctx context.Context, now time.Time) error {
	if err := s.repo.Flush(ctx, now); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrLedgerWrite, err)
	}
	updated := now
	s.ledger.LastUpdated = &updated
	return nil
}

// forget drops records that never reached the backend so memory does not
// claim they are persisted.
func (s *Store) forget(records []domain.ProcessedRecord) {
	for _, rec := range records {
		delete(s.ledger.Items, rec.ID)
	}
}

func (s *Store) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
