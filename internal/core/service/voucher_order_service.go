package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/observability"
	"github.com/rl1809/review-platform/internal/port"
)

const orderIDPrefix = "order"

type VoucherOrderService struct {
	vouchers   port.VoucherRepository
	cache      *CacheClient[domain.SeckillVoucher]
	gate       port.AdmissionGate
	ids        port.IDGenerator
	voucherTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewVoucherOrderService(
	vouchers port.VoucherRepository,
	cache *CacheClient[domain.SeckillVoucher],
	gate port.AdmissionGate,
	ids port.IDGenerator,
	voucherTTL time.Duration,
	logger *zap.Logger,
) *VoucherOrderService {
	return &VoucherOrderService{
		vouchers:   vouchers,
		cache:      cache,
		gate:       gate,
		ids:        ids,
		voucherTTL: voucherTTL,
		now:        time.Now,
		logger:     logger,
	}
}

// PurchaseVoucher admits a seckill purchase and returns the order id.
// The order row is written later by the order consumer.
func (s *VoucherOrderService) PurchaseVoucher(ctx context.Context, voucherID, userID int64) (int64, error) {
	if voucherID <= 0 || userID <= 0 {
		return 0, domain.ErrInvalidArgument
	}

	voucher, err := s.cache.QueryWithPassThrough(ctx, domain.CacheKeySeckill(voucherID), func(ctx context.Context) (domain.SeckillVoucher, error) {
		return s.vouchers.GetSeckillVoucher(ctx, voucherID)
	}, s.voucherTTL)
	if err != nil {
		return 0, err
	}
	if err := voucher.CheckWindow(s.now()); err != nil {
		return 0, err
	}

	orderID, err := s.ids.NextID(ctx, orderIDPrefix)
	if err != nil {
		return 0, fmt.Errorf("generate order id: %w", err)
	}

	result, err := s.gate.Reserve(ctx, voucherID, userID, orderID)
	if err != nil {
		observability.SeckillReserveTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("reserve voucher %d: %w", voucherID, err)
	}
	observability.SeckillReserveTotal.WithLabelValues(result.String()).Inc()

	switch result {
	case domain.ReserveAccepted:
		s.logger.Debug("purchase admitted",
			zap.Int64("voucherId", voucherID),
			zap.Int64("userId", userID),
			zap.Int64("orderId", orderID),
		)
		return orderID, nil
	case domain.ReserveOutOfStock:
		return 0, domain.ErrOutOfStock
	case domain.ReserveDuplicatePurchase:
		return 0, domain.ErrDuplicatePurchase
	default:
		return 0, fmt.Errorf("reserve voucher %d: unexpected result %d", voucherID, int(result))
	}
}

// AddSeckillVoucher persists the voucher and seeds its admission stock.
func (s *VoucherOrderService) AddSeckillVoucher(ctx context.Context, voucher domain.SeckillVoucher) error {
	if voucher.VoucherID <= 0 || voucher.Stock < 0 || !voucher.EndTime.After(voucher.BeginTime) {
		return domain.ErrInvalidArgument
	}
	if err := s.vouchers.CreateSeckillVoucher(ctx, voucher); err != nil {
		return err
	}
	if err := s.gate.SetStock(ctx, voucher.VoucherID, voucher.Stock); err != nil {
		return fmt.Errorf("seed stock for voucher %d: %w", voucher.VoucherID, err)
	}
	// drop any negative marker cached before the voucher existed
	if err := s.cache.Delete(ctx, domain.CacheKeySeckill(voucher.VoucherID)); err != nil {
		s.logger.Warn("seckill cache invalidation failed", zap.Int64("voucherId", voucher.VoucherID), zap.Error(err))
	}
	return nil
}
