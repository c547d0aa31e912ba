package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"AdvisoryScanner/internal/dedup"
	"AdvisoryScanner/internal/domain"
	"AdvisoryScanner/internal/ports"
)

// RedisRepository keeps the ledger in one hash (id -> JSON record) plus a
// string key holding last_updated.
type RedisRepository struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

var _ ports.LedgerRepository = (*RedisRepository)(nil)

// NewRedisRepository wraps an existing client. key prefixes both redis keys.
func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	if key == "" {
		key = "advisoryscanner:ledger"
	}
	return &RedisRepository{client: client, key: key, now: time.Now}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, key string) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisRepository(client, key), nil
}

func (r *RedisRepository) itemsKey() string   { return r.key + ":items" }
func (r *RedisRepository) updatedKey() string { return r.key + ":last_updated" }

// Load reads the whole hash.
func (r *RedisRepository) Load(ctx context.Context) (*domain.Ledger, error) {
	entries, err := r.client.HGetAll(ctx, r.itemsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall ledger: %w", err)
	}

	loadedAt := r.now()
	ledger := domain.NewLedger()
	for id, raw := range entries {
		rec, err := decodeRedisRecord(id, raw, loadedAt)
		if err != nil {
			continue
		}
		ledger.Items[id] = rec
	}

	raw, err := r.client.Get(ctx, r.updatedKey()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("get last_updated: %w", err)
	default:
		if ts, ok := dedup.ParseTimestamp(raw); ok {
			ledger.LastUpdated = &ts
		}
	}

	return ledger, nil
}

// Contains reports whether id is a field of the hash.
func (r *RedisRepository) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := r.client.HExists(ctx, r.itemsKey(), id).Result()
	if err != nil {
		return false, fmt.Errorf("hexists %s: %w", id, err)
	}
	return ok, nil
}

// Upsert sets each record with HSETNX so existing entries keep FirstSeen.
func (r *RedisRepository) Upsert(ctx context.Context, records []domain.ProcessedRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			payload, err := json.Marshal(dedup.DocumentRecord{
				FirstSeen: dedup.Timestamp{Time: rec.FirstSeen},
				Source:    rec.Source,
				Title:     rec.Title,
			})
			if err != nil {
				return fmt.Errorf("encode %s: %w", rec.ID, err)
			}
			pipe.HSetNX(ctx, r.itemsKey(), rec.ID, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hsetnx ledger: %w", err)
	}
	return nil
}

// Sweep removes fields first seen strictly before cutoff.
func (r *RedisRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := r.client.HGetAll(ctx, r.itemsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("hgetall ledger: %w", err)
	}

	loadedAt := r.now()
	var expired []string
	for id, raw := range entries {
		rec, err := decodeRedisRecord(id, raw, loadedAt)
		if err != nil {
			continue
		}
		if rec.FirstSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	removed, err := r.client.HDel(ctx, r.itemsKey(), expired...).Result()
	if err != nil {
		return 0, fmt.Errorf("hdel expired: %w", err)
	}
	return int(removed), nil
}

// Flush stores the last_updated marker.
func (r *RedisRepository) Flush(ctx context.Context, updatedAt time.Time) error {
	if err := r.client.Set(ctx, r.updatedKey(), updatedAt.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("set last_updated: %w", err)
	}
	return nil
}

// Describe names the server and key.
func (r *RedisRepository) Describe() string {
	return fmt.Sprintf("redis:%s/%s", r.client.Options().Addr, r.key)
}

// Close closes the client.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func decodeRedisRecord(id, raw string, loadedAt time.Time) (domain.ProcessedRecord, error) {
	var doc dedup.DocumentRecord
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.ProcessedRecord{}, err
	}
	firstSeen := doc.FirstSeen.Time
	if firstSeen.IsZero() {
		firstSeen = loadedAt
	}
	return domain.ProcessedRecord{
		ID:        id,
		FirstSeen: firstSeen,
		Source:    doc.Source,
		Title:     doc.Title,
	}, nil
}
