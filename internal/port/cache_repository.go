package port

import (
	"context"
	"time"

	"github.com/rl1809/review-platform/internal/core/domain"
)

type KVStore interface {
	// Get returns the raw value and whether the key exists. An existing key may hold "".
	Get(ctx context.Context, key string) (string, bool, error)

	// Set overwrites key. ttl <= 0 stores without expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error
}

// SortedSetStore backs list caches ordered by score.
type SortedSetStore interface {
	ZRange(ctx context.Context, key string) ([]string, error)
	ZAdd(ctx context.Context, key string, members map[string]float64) error
	Delete(ctx context.Context, keys ...string) error
}

type Locker interface {
	// TryAcquire sets the lock only if absent, with lease as its expiration, in one operation.
	// It never waits.
	TryAcquire(ctx context.Context, name string, lease time.Duration) (domain.LockHandle, bool, error)

	// Release deletes the lock only while it is still owned by handle. It reports whether it did.
	Release(ctx context.Context, handle domain.LockHandle) (bool, error)
}

type IDGenerator interface {
	NextID(ctx context.Context, prefix string) (int64, error)
}

type AdmissionGate interface {
	// Reserve atomically checks the purchase marker and stock, then decrements stock,
	// records the purchase and appends the order to the order stream.
	Reserve(ctx context.Context, voucherID, userID, orderID int64) (domain.ReserveResult, error)

	// SetStock seeds the stock counter for a newly created seckill voucher.
	SetStock(ctx context.Context, voucherID int64, stock int) error
}
