package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"AdvisoryScanner/internal/dedup"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// FileRepository keeps the ledger in a single JSON document on disk.
type FileRepository struct {
	path   string
	ledger *domain.Ledger
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.LedgerRepository = (*FileRepository)(nil)

// NewFileRepository points the repository at path. Nothing is read until Load.
func NewFileRepository(path string, logger *slog.Logger) *FileRepository {
	return &FileRepository{
		path:   path,
		ledger: domain.NewLedger(),
		now:    time.Now,
		logger: logger,
	}
}

// Load reads the document. A missing or corrupt file yields an empty ledger.
func (r *FileRepository) Load(ctx context.Context) (*domain.Ledger, error) {
	r.ledger = domain.NewLedger()

	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.warn("ledger file unreadable, starting empty", "path", r.path, "error", err)
		}
		return r.ledger.Clone(), nil
	}

	ledger, err := dedup.DecodeDocument(raw, r.now())
	if err != nil {
		r.warn("ledger file corrupt, starting empty", "path", r.path, "error", err)
		return r.ledger.Clone(), nil
	}

	r.ledger = ledger
	return r.ledger.Clone(), nil
}

// Contains reports whether id is stored.
func (r *FileRepository) Contains(_ context.Context, id string) (bool, error) {
	_, ok := r.ledger.Items[id]
	return ok, nil
}

// Upsert inserts records whose ids are absent; present ids are left as is.
func (r *FileRepository) Upsert(_ context.Context, records []domain.ProcessedRecord) error {
	for _, rec := range records {
		if _, ok := r.ledger.Items[rec.ID]; ok {
			continue
		}
		r.ledger.Items[rec.ID] = rec
	}
	return nil
}

// Sweep removes records first seen strictly before cutoff.
func (r *FileRepository) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for id, rec := range r.ledger.Items {
		if rec.FirstSeen.Before(cutoff) {
			delete(r.ledger.Items, id)
			removed++
		}
	}
	return removed, nil
}

// Flush writes the document atomically through a temp file and rename.
func (r *FileRepository) Flush(_ context.Context, updatedAt time.Time) error {
	stamp := updatedAt
	r.ledger.LastUpdated = &stamp

	payload, err := dedup.EncodeDocument(r.ledger)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger file: %w", err)
	}

	return nil
}

// Describe names the backing file.
func (r *FileRepository) Describe() string {
	return "file:" + r.path
}

// Close is a no-op; every Flush already reached disk.
func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
