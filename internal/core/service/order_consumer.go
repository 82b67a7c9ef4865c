package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/observability"
	"github.com/rl1809/review-platform/internal/port"
)

// Outcome is what happened to one stream entry.
type Outcome string

const (
	OutcomePersisted Outcome = "persisted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeContended Outcome = "contended"
	OutcomeMalformed Outcome = "malformed"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeError     Outcome = "error"
)

type OrderConsumerConfig struct {
	Name         string
	Count        int64
	Block        time.Duration
	LockLease    time.Duration
	ErrorBackoff time.Duration
	// PendingInterval forces a pending-list pass even while new entries keep arriving.
	PendingInterval time.Duration
	// MaxDeliveries is how many times an entry may be tried before it is dead-lettered.
	MaxDeliveries int64
}

func DefaultOrderConsumerConfig() OrderConsumerConfig {
	return OrderConsumerConfig{
		Name:            "c1",
		Count:           10,
		Block:           2 * time.Second,
		LockLease:       10 * time.Second,
		ErrorBackoff:    time.Second,
		PendingInterval: 10 * time.Second,
		MaxDeliveries:   16,
	}
}

// OrderConsumer turns admitted purchases from the order stream into order rows.
type OrderConsumer struct {
	log    port.OrderLog
	locker port.Locker
	repo   port.VoucherRepository
	cfg    OrderConsumerConfig
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	failures map[string]int64
}

func NewOrderConsumer(log port.OrderLog, locker port.Locker, repo port.VoucherRepository, cfg OrderConsumerConfig, logger *zap.Logger) *OrderConsumer {
	def := DefaultOrderConsumerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Count <= 0 {
		cfg.Count = def.Count
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = def.LockLease
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.PendingInterval <= 0 {
		cfg.PendingInterval = def.PendingInterval
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = def.MaxDeliveries
	}
	return &OrderConsumer{
		log:      log,
		locker:   locker,
		repo:     repo,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(zap.String("consumer", cfg.Name)),
		failures: make(map[string]int64),
	}
}

// Run consumes until ctx is cancelled. It returns an error only if the group cannot be created.
func (c *OrderConsumer) Run(ctx context.Context) error {
	if err := c.log.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("order consumer started")
	defer c.logger.Info("order consumer stopped")

	c.DrainPending(ctx)
	lastDrain := c.now()

	for ctx.Err() == nil {
		entries, err := c.log.ReadNew(ctx, c.cfg.Name, c.cfg.Count, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("order stream read failed", zap.Error(err))
			c.sleep(ctx, c.cfg.ErrorBackoff)
			continue
		}

		for _, entry := range entries {
			c.HandleEntry(ctx, entry)
		}

		if len(entries) == 0 || c.now().Sub(lastDrain) >= c.cfg.PendingInterval {
			c.DrainPending(ctx)
			lastDrain = c.now()
		}
	}
	return nil
}

// DrainPending makes one pass over the whole pending list of this consumer, a batch at a time,
// so entries that keep failing at the head cannot hide the ones behind them.
// It returns how many entries were handled.
func (c *OrderConsumer) DrainPending(ctx context.Context) int {
	handled := 0
	cursor := "0"
	for ctx.Err() == nil {
		entries, err := c.log.ReadPending(ctx, c.cfg.Name, cursor, c.cfg.Count)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("pending list read failed", zap.Error(err))
			}
			return handled
		}
		if len(entries) == 0 {
			return handled
		}
		for _, entry := range entries {
			c.HandleEntry(ctx, entry)
		}
		handled += len(entries)
		cursor = entries[len(entries)-1].ID
	}
	return handled
}

// HandleEntry persists one entry and acknowledges it once the outcome is final.
// Contended and failed entries stay pending and are retried from the pending list until
// MaxDeliveries tries, then dead-lettered.
func (c *OrderConsumer) HandleEntry(ctx context.Context, entry domain.OrderEntry) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("order entry handler panicked",
				zap.String("entryId", entry.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			outcome = OutcomeError
		}
		c.recordAttempt(entry.ID, outcome)
		observability.OrdersConsumedTotal.WithLabelValues(string(outcome)).Inc()
	}()

	if attempts := c.attempts(entry); attempts > c.cfg.MaxDeliveries {
		c.logger.Error("order entry retry limit reached",
			zap.String("entryId", entry.ID),
			zap.Int64("attempts", attempts),
			zap.Any("values", entry.Values),
		)
		return c.deadLetter(ctx, entry, "retry limit exceeded", OutcomeExhausted)
	}

	order, err := domain.ParsePendingOrder(entry)
	if err != nil {
		c.logger.Error("malformed order entry", zap.String("entryId", entry.ID), zap.Any("values", entry.Values), zap.Error(err))
		return c.deadLetter(ctx, entry, err.Error(), OutcomeMalformed)
	}

	handle, ok, err := c.locker.TryAcquire(ctx, domain.LockKeyOrder(order.UserID), c.cfg.LockLease)
	if err != nil {
		observability.LockAcquireTotal.WithLabelValues("order", "error").Inc()
		c.logger.Error("order lock failed", zap.String("entryId", entry.ID), zap.Error(err))
		return OutcomeError
	}
	if !ok {
		observability.LockAcquireTotal.WithLabelValues("order", "contended").Inc()
		c.logger.Warn("order for user already being processed",
			zap.String("entryId", entry.ID),
			zap.Int64("userId", order.UserID),
			zap.Int64("voucherId", order.VoucherID),
		)
		return OutcomeContended
	}
	observability.LockAcquireTotal.WithLabelValues("order", "acquired").Inc()
	defer releaseLock(ctx, c.locker, handle, c.logger)

	now := c.now()
	err = c.repo.CreateVoucherOrder(ctx, domain.VoucherOrder{
		ID:        order.OrderID,
		UserID:    order.UserID,
		VoucherID: order.VoucherID,
		Status:    domain.OrderStatusUnpaid,
		CreatedAt: now,
		UpdatedAt: now,
	})
	switch {
	case err == nil:
		outcome = OutcomePersisted
	case errors.Is(err, domain.ErrOrderExists):
		outcome = OutcomeDuplicate
	case errors.Is(err, domain.ErrInsufficientStock):
		c.logger.Error("durable stock exhausted for admitted order",
			zap.String("entryId", entry.ID),
			zap.Int64("orderId", order.OrderID),
			zap.Int64("voucherId", order.VoucherID),
		)
		return c.deadLetter(ctx, entry, err.Error(), OutcomeRejected)
	default:
		c.logger.Error("order persist failed", zap.String("entryId", entry.ID), zap.Int64("orderId", order.OrderID), zap.Error(err))
		return OutcomeError
	}

	if err := c.log.Ack(ctx, entry.ID); err != nil {
		c.logger.Error("order ack failed", zap.String("entryId", entry.ID), zap.Error(err))
		return OutcomeError
	}
	c.logger.Debug("order entry handled", zap.String("entryId", entry.ID), zap.Int64("orderId", order.OrderID), zap.String("outcome", string(outcome)))
	return outcome
}

func (c *OrderConsumer) deadLetter(ctx context.Context, entry domain.OrderEntry, reason string, outcome Outcome) Outcome {
	if err := c.log.DeadLetter(ctx, entry, reason); err != nil {
		c.logger.Error("dead-letter failed", zap.String("entryId", entry.ID), zap.Error(err))
		return OutcomeError
	}
	return outcome
}

// attempts numbers the current try: the group's delivery count, or one past the failures
// this process has seen, whichever is larger.
func (c *OrderConsumer) attempts(entry domain.OrderEntry) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if local := c.failures[entry.ID] + 1; local > entry.Deliveries {
		return local
	}
	return entry.Deliveries
}

func (c *OrderConsumer) recordAttempt(entryID string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case OutcomeError:
		c.failures[entryID]++
	case OutcomeContended:
	default:
		delete(c.failures, entryID)
	}
}

func (c *OrderConsumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
