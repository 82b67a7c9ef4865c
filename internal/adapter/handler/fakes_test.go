package handler

import (
	"context"
	"sync"

	"github.com/rl1809/review-platform/internal/core/domain"
)

type fakeShops struct {
	mu      sync.Mutex
	shops   map[int64]domain.Shop
	types   []domain.ShopType
	err     error
	updated []domain.Shop
}

func (f *fakeShops) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Shop{}, f.err
	}
	s, ok := f.shops[id]
	if !ok {
		return domain.Shop{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeShops) UpdateShop(ctx context.Context, shop domain.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if shop.ID <= 0 {
		return domain.ErrInvalidArgument
	}
	f.updated = append(f.updated, shop)
	return nil
}

func (f *fakeShops) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	if len(f.types) == 0 {
		return nil, domain.ErrNotFound
	}
	return f.types, nil
}

type fakeVouchers struct {
	mu       sync.Mutex
	orderID  int64
	err      error
	calls    []int64
	vouchers []domain.SeckillVoucher
}

func (f *fakeVouchers) PurchaseVoucher(ctx context.Context, voucherID, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return 0, f.err
	}
	return f.orderID, nil
}

func (f *fakeVouchers) AddSeckillVoucher(ctx context.Context, v domain.SeckillVoucher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.vouchers = append(f.vouchers, v)
	return nil
}
