package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"AdvisoryScanner/internal/dedup"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

const (
	itemsTable     = "processed_items"
	metaTable      = "ledger_meta"
	lastUpdatedKey = "last_updated"
	insertChunk    = 200
)

// first_seen is stored as unix nanoseconds so both dialects compare it the
// same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS processed_items (
		id         TEXT PRIMARY KEY,
		first_seen BIGINT NOT NULL,
		source     TEXT NOT NULL,
		title      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS processed_items_first_seen_idx ON processed_items (first_seen)`,
	`CREATE TABLE IF NOT EXISTS ledger_meta (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SQLRepository persists the ledger in SQLite or Postgres.
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	name    string
}

var _ ports.LedgerRepository = (*SQLRepository)(nil)

// OpenSQLite opens (and creates) a SQLite ledger database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLRepository, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	return newSQLRepository(ctx, db, sq.Question, "sqlite:"+dsn)
}

// OpenPostgres connects to a Postgres ledger database.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newSQLRepository(ctx, db, sq.Dollar, "postgres")
}

func newSQLRepository(ctx context.Context, db *sql.DB, format sq.PlaceholderFormat, name string) (*SQLRepository, error) {
	r := &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		name:    name,
	}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger schema: %w", err)
		}
	}
	return nil
}

// Load reads every record plus the last_updated marker.
func (r *SQLRepository) Load(ctx context.Context) (*domain.Ledger, error) {
	query, args, err := r.builder.
		Select("id", "first_seen", "source", "title").
		From(itemsTable).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build load query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}

	ledger := domain.NewLedger()
	for rows.Next() {
		var (
			rec       domain.ProcessedRecord
			firstSeen int64
		)
		if err := rows.Scan(&rec.ID, &firstSeen, &rec.Source, &rec.Title); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.FirstSeen = time.Unix(0, firstSeen)
		ledger.Items[rec.ID] = rec
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	updated, err := r.lastUpdated(ctx)
	if err != nil {
		return nil, err
	}
	ledger.LastUpdated = updated

	return ledger, nil
}

func (r *SQLRepository) lastUpdated(ctx context.Context) (*time.Time, error) {
	query, args, err := r.builder.
		Select("value").
		From(metaTable).
		Where(sq.Eq{"name": lastUpdatedKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meta query: %w", err)
	}

	var raw string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last_updated: %w", err)
	}

	ts, ok := dedup.ParseTimestamp(raw)
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

// Contains reports whether id is stored.
func (r *SQLRepository) Contains(ctx context.Context, id string) (bool, error) {
	query, args, err := r.builder.
		Select("1").
		From(itemsTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build contains query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query contains: %w", err)
	}
	return true, nil
}

// Upsert inserts records in one transaction; existing ids keep their row.
func (r *SQLRepository) Upsert(ctx context.Context, records []domain.ProcessedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}

	for start := 0; start < len(records); start += insertChunk {
		end := start + insertChunk
		if end > len(records) {
			end = len(records)
		}

		insert := r.builder.
			Insert(itemsTable).
			Columns("id", "first_seen", "source", "title").
			Suffix("ON CONFLICT (id) DO NOTHING")
		for _, rec := range records[start:end] {
			insert = insert.Values(rec.ID, rec.FirstSeen.UnixNano(), rec.Source, rec.Title)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert processed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Sweep deletes records first seen strictly before cutoff.
func (r *SQLRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := r.builder.
		Delete(itemsTable).
		Where(sq.Lt{"first_seen": cutoff.UnixNano()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sweep: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return int(affected), nil
}

// Flush records the last_updated marker. Rows are already durable.
func (r *SQLRepository) Flush(ctx context.Context, updatedAt time.Time) error {
	query, args, err := r.builder.
		Insert(metaTable).
		Columns("name", "value").
		Values(lastUpdatedKey, updatedAt.Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build flush: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update last_updated: %w", err)
	}
	return nil
}

// Describe names the dialect and, for SQLite, the database file.
func (r *SQLRepository) Describe() string {
	return r.name
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
