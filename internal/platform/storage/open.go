package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/rbrdigital/goldcare-sub000/internal/platform/db"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures the durable backend.
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
	Timeout     time.Duration
}

// Handle is the result of Open: the Fallback store plus whatever durable
// resources back it.
type Handle struct {
	*Fallback
	Backend string
	Pool    *pgxpool.Pool // set only for the postgres backend
	closers []func()
}

// Close releases durable connections.
func (h *Handle) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
}

// Open builds the configured backend wrapped in a Fallback. If the durable
// backend cannot be reached, Open logs a warning and returns a memory-only
// handle rather than failing; only an unknown backend name is an error.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Handle, error) {
	h := &Handle{Backend: opts.Backend}

	var primary Storage
	switch opts.Backend {
	case "", BackendMemory:
		h.Backend = BackendMemory
	case BackendRedis:
		r, err := DialRedis(ctx, opts.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, drafts will be kept in memory only")
			break
		}
		primary = r
		h.closers = append(h.closers, func() { _ = r.Close() })
	case BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolOptions{
			URL:            opts.DatabaseURL,
			MaxConns:       opts.MaxConns,
			MinConns:       opts.MinConns,
			ConnectTimeout: opts.Timeout,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("postgres unavailable, drafts will be kept in memory only")
			break
		}
		pg := NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			logger.Warn().Err(err).Msg("postgres schema setup failed, drafts will be kept in memory only")
			break
		}
		primary = pg
		h.Pool = pool
		h.closers = append(h.closers, pool.Close)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}

	h.Fallback = NewFallback(primary, opts.Timeout, logger)
	logger.Info().
		Str("backend", h.Backend).
		Bool("durable", h.Durable()).
		Msg("storage ready")
	return h, nil
}
