package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/observability"
	"github.com/rl1809/review-platform/internal/port"
)

// ErrCacheBusy is returned when the rebuild lock stays held past the retry budget.
var ErrCacheBusy = errors.New("cache rebuild in progress, retry later")

// nullMarker is the cached negative result for ids missing from the source of truth.
const nullMarker = ""

// Loader fetches a value from the source of truth. It returns domain.ErrNotFound for absent ids.
type Loader[T any] func(ctx context.Context) (T, error)

type CacheOptions struct {
	// Name labels metrics and log lines.
	Name          string
	NullTTL       time.Duration
	LockLease     time.Duration
	RetryInterval time.Duration
	MaxRetries    int
	Now           func() time.Time
}

func DefaultCacheOptions(name string) CacheOptions {
	return CacheOptions{
		Name:          name,
		NullTTL:       2 * time.Minute,
		LockLease:     10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		MaxRetries:    20,
		Now:           time.Now,
	}
}

// logicalEntry is stored without a physical TTL; ExpireTime only marks it stale.
type logicalEntry struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

type lookupState int

const (
	stateMiss lookupState = iota
	stateHit
	stateNull
)

// CacheClient reads through a KV store with penetration and stampede protection.
type CacheClient[T any] struct {
	store  port.KVStore
	locker port.Locker
	pool   *RebuildPool
	opts   CacheOptions
	logger *zap.Logger
}

func NewCacheClient[T any](store port.KVStore, locker port.Locker, pool *RebuildPool, opts CacheOptions, logger *zap.Logger) *CacheClient[T] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	return &CacheClient[T]{
		store:  store,
		locker: locker,
		pool:   pool,
		opts:   opts,
		logger: logger.With(zap.String("cache", opts.Name)),
	}
}

func (c *CacheClient[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(payload), ttl)
}

func (c *CacheClient[T]) SetWithLogicalExpire(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	payload, err := json.Marshal(logicalEntry{Data: data, ExpireTime: c.opts.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(payload), 0)
}

func (c *CacheClient[T]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// QueryWithPassThrough caches both values and misses so absent ids stop reaching the loader.
func (c *CacheClient[T]) QueryWithPassThrough(ctx context.Context, key string, load Loader[T], ttl time.Duration) (T, error) {
	var zero T
	value, state, err := c.lookup(ctx, key)
	if err != nil {
		return zero, err
	}
	switch state {
	case stateHit:
		return value, nil
	case stateNull:
		return zero, domain.ErrNotFound
	}
	return c.loadAndStore(ctx, key, load, ttl)
}

// QueryWithMutex lets one caller rebuild a missing key while the others wait and retry.
func (c *CacheClient[T]) QueryWithMutex(ctx context.Context, key, lockKey string, load Loader[T], ttl time.Duration) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		value, state, err := c.lookup(ctx, key)
		if err != nil {
			return zero, err
		}
		switch state {
		case stateHit:
			return value, nil
		case stateNull:
			return zero, domain.ErrNotFound
		}

		handle, ok, err := c.tryLock(ctx, lockKey)
		if err != nil {
			return zero, err
		}
		if ok {
			return c.rebuildHolding(ctx, key, handle, load, ttl)
		}

		if attempt >= c.opts.MaxRetries {
			c.logger.Warn("cache rebuild lock still held, giving up", zap.String("key", key), zap.Int("attempts", attempt+1))
			return zero, ErrCacheBusy
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

func (c *CacheClient[T]) rebuildHolding(ctx context.Context, key string, handle domain.LockHandle, load Loader[T], ttl time.Duration) (T, error) {
	defer releaseLock(ctx, c.locker, handle, c.logger)

	var zero T
	value, state, err := c.lookup(ctx, key)
	if err != nil {
		return zero, err
	}
	switch state {
	case stateHit:
		return value, nil
	case stateNull:
		return zero, domain.ErrNotFound
	}
	return c.loadAndStore(ctx, key, load, ttl)
}

// QueryWithLogicalExpire never blocks: stale entries are served while one caller schedules a rebuild.
// Keys are expected to be pre-warmed; an absent key is reported as domain.ErrNotFound.
func (c *CacheClient[T]) QueryWithLogicalExpire(ctx context.Context, key, lockKey string, load Loader[T], ttl time.Duration) (T, error) {
	var zero T
	entry, value, ok, err := c.lookupLogical(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "miss").Inc()
		return zero, domain.ErrNotFound
	}
	if c.opts.Now().Before(entry.ExpireTime) {
		observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "hit").Inc()
		return value, nil
	}
	observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "stale").Inc()

	handle, acquired, err := c.tryLock(ctx, lockKey)
	if err != nil {
		c.logger.Warn("serving stale entry, lock unavailable", zap.String("key", key), zap.Error(err))
		return value, nil
	}
	if !acquired {
		return value, nil
	}

	// another caller may have finished a rebuild between our read and the lock
	fresh, freshValue, ok, err := c.lookupLogical(ctx, key)
	if err == nil && ok && c.opts.Now().Before(fresh.ExpireTime) {
		releaseLock(ctx, c.locker, handle, c.logger)
		return freshValue, nil
	}

	task := RebuildTask{
		Key: key,
		Run: func(taskCtx context.Context) error {
			return c.rebuildLogical(taskCtx, key, load, ttl)
		},
		Cleanup: func() {
			releaseLock(ctx, c.locker, handle, c.logger)
		},
	}
	if err := c.pool.Submit(task); err != nil {
		c.logger.Warn("cache rebuild not scheduled", zap.String("key", key), zap.Error(err))
		releaseLock(ctx, c.locker, handle, c.logger)
	}
	return value, nil
}

func (c *CacheClient[T]) rebuildLogical(ctx context.Context, key string, load Loader[T], ttl time.Duration) error {
	value, err := load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "not_found").Inc()
		// the row is gone, so the stale entry must go too
		return c.store.Delete(ctx, key)
	}
	if err != nil {
		observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "error").Inc()
		return fmt.Errorf("load %s: %w", key, err)
	}
	observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "success").Inc()
	return c.SetWithLogicalExpire(ctx, key, value, ttl)
}

func (c *CacheClient[T]) loadAndStore(ctx context.Context, key string, load Loader[T], ttl time.Duration) (T, error) {
	var zero T
	value, err := load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "not_found").Inc()
		if serr := c.store.Set(ctx, key, nullMarker, c.opts.NullTTL); serr != nil {
			c.logger.Warn("negative cache write failed", zap.String("key", key), zap.Error(serr))
		}
		return zero, domain.ErrNotFound
	}
	if err != nil {
		observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "error").Inc()
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	observability.CacheLoadsTotal.WithLabelValues(c.opts.Name, "success").Inc()

	if err := c.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func (c *CacheClient[T]) lookup(ctx context.Context, key string) (T, lookupState, error) {
	var zero T
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return zero, stateMiss, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found {
		observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "miss").Inc()
		return zero, stateMiss, nil
	}
	if raw == nullMarker {
		observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "null_hit").Inc()
		return zero, stateNull, nil
	}

	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		c.dropMalformed(ctx, key, err)
		observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "miss").Inc()
		return zero, stateMiss, nil
	}
	observability.CacheRequestsTotal.WithLabelValues(c.opts.Name, "hit").Inc()
	return value, stateHit, nil
}

func (c *CacheClient[T]) lookupLogical(ctx context.Context, key string) (logicalEntry, T, bool, error) {
	var zero T
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return logicalEntry{}, zero, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found || raw == nullMarker {
		return logicalEntry{}, zero, false, nil
	}

	var entry logicalEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || len(entry.Data) == 0 {
		if err == nil {
			err = errors.New("missing data field")
		}
		c.dropMalformed(ctx, key, err)
		return logicalEntry{}, zero, false, nil
	}
	var value T
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		c.dropMalformed(ctx, key, err)
		return logicalEntry{}, zero, false, nil
	}
	return entry, value, true, nil
}

func (c *CacheClient[T]) dropMalformed(ctx context.Context, key string, cause error) {
	c.logger.Error("malformed cache payload, dropping", zap.String("key", key), zap.Error(cause))
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("failed to drop malformed payload", zap.String("key", key), zap.Error(err))
	}
}

func (c *CacheClient[T]) tryLock(ctx context.Context, lockKey string) (domain.LockHandle, bool, error) {
	handle, ok, err := c.locker.TryAcquire(ctx, lockKey, c.opts.LockLease)
	switch {
	case err != nil:
		observability.LockAcquireTotal.WithLabelValues(c.opts.Name, "error").Inc()
		return domain.LockHandle{}, false, fmt.Errorf("acquire %s: %w", lockKey, err)
	case ok:
		observability.LockAcquireTotal.WithLabelValues(c.opts.Name, "acquired").Inc()
	default:
		observability.LockAcquireTotal.WithLabelValues(c.opts.Name, "contended").Inc()
	}
	return handle, ok, nil
}
