package storage

import (
	"context"
	"fmt"
	"log/slog"

	"AdvisoryScanner/internal/config"
	"AdvisoryScanner/internal/ports"
)

// Open builds the ledger repository selected by cfg.Backend.
func Open(ctx context.Context, cfg config.DeduplicationConfig, logger *slog.Logger) (ports.LedgerRepository, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileRepository(cfg.StorageFile, logger), nil
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
