package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Fallback wraps a durable primary Storage with an in-memory shadow. When
// the primary fails, reads and writes are served from memory instead of
// surfacing the error. A key written to memory because the primary rejected
// it keeps being served from memory until the primary accepts a write for
// that key again, so a reader never sees an older durable value. Likewise a
// key whose primary delete failed is tombstoned and reads as missing until
// the primary accepts a write or delete for it.
type Fallback struct {
	primary  Storage
	memory   *Memory
	timeout  time.Duration
	logger   zerolog.Logger
	failures atomic.Int64

	mu         sync.Mutex
	tombstones map[string]struct{}
}

// NewFallback creates a Fallback over primary. A nil primary yields a
// memory-only store. timeout bounds each primary call; zero means no bound.
func NewFallback(primary Storage, timeout time.Duration, logger zerolog.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		memory:     NewMemory(),
		timeout:    timeout,
		logger:     logger.With().Str("component", "storage").Logger(),
		tombstones: make(map[string]struct{}),
	}
}

func (f *Fallback) tombstoned(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tombstones[key]
	return ok
}

func (f *Fallback) setTombstone(key string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.tombstones[key] = struct{}{}
	} else {
		delete(f.tombstones, key)
	}
}

func (f *Fallback) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

func (f *Fallback) Get(ctx context.Context, key string) (string, error) {
	if v, err := f.memory.Get(ctx, key); err == nil {
		return v, nil
	}
	if f.primary == nil || f.tombstoned(key) {
		return "", ErrNotFound
	}

	pctx, cancel := f.bounded(ctx)
	defer cancel()
	v, err := f.primary.Get(pctx, key)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotFound
	}

	f.degrade("get", key, err)
	return "", ErrNotFound
}

func (f *Fallback) Set(ctx context.Context, key, value string) error {
	if f.primary != nil {
		pctx, cancel := f.bounded(ctx)
		err := f.primary.Set(pctx, key, value)
		cancel()
		if err == nil {
			_ = f.memory.Remove(ctx, key)
			f.setTombstone(key, false)
			return nil
		}
		f.degrade("set", key, err)
	}
	f.setTombstone(key, false)
	return f.memory.Set(ctx, key, value)
}

func (f *Fallback) Remove(ctx context.Context, key string) error {
	_ = f.memory.Remove(ctx, key)
	if f.primary == nil {
		return nil
	}
	pctx, cancel := f.bounded(ctx)
	defer cancel()
	if err := f.primary.Remove(pctx, key); err != nil {
		f.degrade("remove", key, err)
		f.setTombstone(key, true)
		return nil
	}
	f.setTombstone(key, false)
	return nil
}

// Ping reports the primary's connectivity. A memory-only Fallback is always
// reachable.
func (f *Fallback) Ping(ctx context.Context) error {
	if p, ok := f.primary.(Pinger); ok {
		pctx, cancel := f.bounded(ctx)
		defer cancel()
		return p.Ping(pctx)
	}
	return nil
}

// Degraded reports whether any operation has fallen back to memory.
func (f *Fallback) Degraded() bool {
	return f.failures.Load() > 0
}

// Durable reports whether a durable primary is configured.
func (f *Fallback) Durable() bool {
	return f.primary != nil
}

func (f *Fallback) degrade(op, key string, err error) {
	f.failures.Add(1)
	f.logger.Warn().
		Err(err).
		Str("op", op).
		Str("key", key).
		Msg("durable storage unavailable, using in-memory fallback")
}
