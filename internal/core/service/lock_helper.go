package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/port"
)

const releaseTimeout = 2 * time.Second

// releaseLock releases handle even when ctx is already cancelled.
func releaseLock(ctx context.Context, locker port.Locker, handle domain.LockHandle, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := locker.Release(ctx, handle)
	if err != nil {
		logger.Warn("lock release failed", zap.String("lock", handle.Name), zap.Error(err))
		return
	}
	if !released {
		// lease ran out; someone else may hold it now
		logger.Warn("lock already expired at release", zap.String("lock", handle.Name))
	}
}
