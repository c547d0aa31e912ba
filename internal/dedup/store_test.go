package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdvisoryScanner/internal/domain"
)

type memoryRepo struct {
	ledger    *domain.Ledger
	upsertErr error
	flushErr  error
	sweepErr  error
	flushes   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{ledger: domain.NewLedger()}
}

func (m *memoryRepo) Load(context.Context) (*domain.Ledger, error) {
	return m.ledger.Clone(), nil
}

func (m *memoryRepo) Contains(_ context.Context, id string) (bool, error) {
	_, ok := m.ledger.Items[id]
	return ok, nil
}

func (m *memoryRepo) Upsert(_ context.Context, records []domain.ProcessedRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, rec := range records {
		if _, ok := m.ledger.Items[rec.ID]; !ok {
			m.ledger.Items[rec.ID] = rec
		}
	}
	return nil
}

func (m *memoryRepo) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	n := 0
	for id, rec := range m.ledger.Items {
		if rec.FirstSeen.Before(cutoff) {
			delete(m.ledger.Items, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) Flush(_ context.Context, updatedAt time.Time) error {
	if m.flushErr != nil {
		return m.flushErr
	}
	m.flushes++
	m.ledger.LastUpdated = &updatedAt
	return nil
}

func (m *memoryRepo) Describe() string { return "memory" }
func (m *memoryRepo) Close() error     { return nil }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func item(id string) domain.Item {
	return domain.Item{ID: id, Source: "nvd", Title: "title " + id}
}

func newStore(t *testing.T, repo *memoryRepo, c *clock) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), repo, WithClock(c.Now))
	require.NoError(t, err)
	return store
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newStore(t, newMemoryRepo(), c)

	require.NoError(t, store.Record(ctx, item("nvd:CVE-2025-1")))
	first, ok := store.Get("nvd:CVE-2025-1")
	require.True(t, ok)

	c.now = c.now.Add(72 * time.Hour)
	require.NoError(t, store.Record(ctx, item("nvd:CVE-2025-1")))
	require.NoError(t, store.RecordBatch(ctx, []domain.Item{item("nvd:CVE-2025-1")}))

	again, ok := store.Get("nvd:CVE-2025-1")
	require.True(t, ok)
	assert.True(t, again.FirstSeen.Equal(first.FirstSeen))
	assert.False(t, store.IsNew(item("nvd:CVE-2025-1")))
}

func TestSweepRetentionBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	retention := 90 * 24 * time.Hour

	repo := newMemoryRepo()
	repo.ledger.Items["expired"] = domain.ProcessedRecord{ID: "expired", FirstSeen: now.Add(-retention - time.Second)}
	repo.ledger.Items["kept"] = domain.ProcessedRecord{ID: "kept", FirstSeen: now.Add(-retention + time.Second)}

	store := newStore(t, repo, &clock{now: now})

	removed, err := store.Sweep(ctx, retention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := store.Get("expired")
	assert.False(t, ok)
	_, ok = store.Get("kept")
	assert.True(t, ok)

	assert.NotContains(t, repo.ledger.Items, "expired")
	assert.Contains(t, repo.ledger.Items, "kept")
}

func TestSweepWithNothingExpiredSkipsWrites(t *testing.T) {
	repo := newMemoryRepo()
	store := newStore(t, repo, &clock{now: time.Now()})

	removed, err := store.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Zero(t, repo.flushes)
}

func TestFilterNewPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newMemoryRepo(), &clock{now: time.Now()})
	require.NoError(t, store.Record(ctx, item("b")))

	fresh := store.FilterNew([]domain.Item{item("c"), item("b"), item("a"), item("d")})

	ids := make([]string, 0, len(fresh))
	for _, it := range fresh {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"c", "a", "d"}, ids)
}

func TestFilterNewDropsRepeatedIDs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newMemoryRepo(), &clock{now: time.Now()})
	require.NoError(t, store.Record(ctx, item("b")))

	first := item("a")
	repeat := item("a")
	repeat.Title = "mirror of a"
	fresh := store.FilterNew([]domain.Item{first, item("b"), repeat, item("c"), item("c")})

	require.Len(t, fresh, 2)
	assert.Equal(t, "a", fresh[0].ID)
	assert.Equal(t, first.Title, fresh[0].Title)
	assert.Equal(t, "c", fresh[1].ID)
}

func TestRecordBatchFlushesOnce(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2025, 2, 2, 2, 2, 2, 0, time.UTC)
	store := newStore(t, repo, &clock{now: now})

	require.NoError(t, store.RecordBatch(context.Background(), []domain.Item{item("a"), item("b"), item("c")}))

	assert.Equal(t, 1, repo.flushes)
	assert.Len(t, repo.ledger.Items, 3)

	stats := store.Stats()
	assert.Equal(t, 3, stats.TotalItems)
	require.NotNil(t, stats.LastUpdated)
	assert.True(t, stats.LastUpdated.Equal(now))
	assert.Equal(t, "memory", stats.Storage)
}

func TestWriteFailureIsSurfaced(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	t.Run("upsert", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.upsertErr = boom
		store := newStore(t, repo, &clock{now: time.Now()})

		err := store.Record(ctx, item("a"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLedgerWrite)
		assert.ErrorIs(t, err, boom)
		assert.True(t, store.IsNew(item("a")))
	})

	t.Run("flush", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.flushErr = boom
		store := newStore(t, repo, &clock{now: time.Now()})

		err := store.Record(ctx, item("a"))
		assert.ErrorIs(t, err, ErrLedgerWrite)

		contained, cerr := repo.Contains(ctx, "a")
		require.NoError(t, cerr)
		assert.True(t, contained)
		assert.False(t, store.IsNew(item("a")))
	})

	t.Run("sweep", func(t *testing.T) {
		repo := newMemoryRepo()
		repo.ledger.Items["old"] = domain.ProcessedRecord{ID: "old", FirstSeen: time.Unix(0, 0)}
		repo.sweepErr = boom
		store := newStore(t, repo, &clock{now: time.Now()})

		_, err := store.Sweep(ctx, time.Hour)
		assert.ErrorIs(t, err, ErrLedgerWrite)
	})
}

func TestNewStoreRequiresRepository(t *testing.T) {
	_, err := NewStore(context.Background(), nil)
	assert.Error(t, err)
}

func TestDocumentRoundTripKeepsTimestamps(t *testing.T) {
	ledger := domain.NewLedger()
	seen := time.Date(2025, 4, 5, 6, 7, 8, 9, time.UTC)
	ledger.Items["nvd:CVE-2025-7"] = domain.ProcessedRecord{ID: "nvd:CVE-2025-7", FirstSeen: seen, Source: "nvd", Title: "<b>x</b>"}

	raw, err := EncodeDocument(ledger)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_updated": null`)
	assert.Contains(t, string(raw), `<b>x</b>`)

	decoded, err := DecodeDocument(raw, time.Now())
	require.NoError(t, err)
	assert.True(t, decoded.Items["nvd:CVE-2025-7"].FirstSeen.Equal(seen))
	assert.Nil(t, decoded.LastUpdated)
}
