package port

import (
	"context"

	"github.com/rl1809/review-platform/internal/core/domain"
)

type ShopRepository interface {
	// GetShop returns domain.ErrNotFound when no row exists.
	GetShop(ctx context.Context, id int64) (domain.Shop, error)
	UpdateShop(ctx context.Context, shop domain.Shop) error
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}

type VoucherRepository interface {
	// GetSeckillVoucher returns domain.ErrNotFound when no row exists.
	GetSeckillVoucher(ctx context.Context, voucherID int64) (domain.SeckillVoucher, error)
	CreateSeckillVoucher(ctx context.Context, voucher domain.SeckillVoucher) error

	// CreateVoucherOrder inserts the order and decrements durable stock in one transaction.
	// It returns domain.ErrOrderExists when the order id or (voucher, user) pair is already
	// stored, and domain.ErrInsufficientStock when durable stock is exhausted.
	CreateVoucherOrder(ctx context.Context, order domain.VoucherOrder) error
}
