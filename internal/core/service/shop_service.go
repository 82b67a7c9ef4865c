package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/port"
)

// CacheStrategy selects how shop reads are protected against penetration and stampedes.
type CacheStrategy string

const (
	StrategyPassThrough   CacheStrategy = "pass_through"
	StrategyMutex         CacheStrategy = "mutex"
	StrategyLogicalExpire CacheStrategy = "logical_expire"
)

type ShopService struct {
	repo     port.ShopRepository
	cache    *CacheClient[domain.Shop]
	lists    port.SortedSetStore
	strategy CacheStrategy
	ttl      time.Duration
	logger   *zap.Logger
}

func NewShopService(repo port.ShopRepository, cache *CacheClient[domain.Shop], lists port.SortedSetStore, strategy CacheStrategy, ttl time.Duration, logger *zap.Logger) *ShopService {
	if strategy == "" {
		strategy = StrategyPassThrough
	}
	return &ShopService{
		repo:     repo,
		cache:    cache,
		lists:    lists,
		strategy: strategy,
		ttl:      ttl,
		logger:   logger,
	}
}

func (s *ShopService) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	if id <= 0 {
		return domain.Shop{}, domain.ErrInvalidArgument
	}
	key := domain.CacheKeyShop(id)
	load := func(ctx context.Context) (domain.Shop, error) {
		return s.repo.GetShop(ctx, id)
	}

	switch s.strategy {
	case StrategyMutex:
		return s.cache.QueryWithMutex(ctx, key, domain.LockKeyShop(id), load, s.ttl)
	case StrategyLogicalExpire:
		return s.cache.QueryWithLogicalExpire(ctx, key, domain.LockKeyShop(id), load, s.ttl)
	default:
		return s.cache.QueryWithPassThrough(ctx, key, load, s.ttl)
	}
}

// UpdateShop writes the row first and then invalidates the cached copy.
// Under logical expiration a missing entry is never rebuilt, so the entry is rewritten from
// the updated row instead.
func (s *ShopService) UpdateShop(ctx context.Context, shop domain.Shop) error {
	if shop.ID <= 0 {
		return domain.ErrInvalidArgument
	}
	if err := s.repo.UpdateShop(ctx, shop); err != nil {
		return err
	}
	if s.strategy == StrategyLogicalExpire {
		if err := s.WarmShop(ctx, shop.ID, s.ttl); err != nil {
			s.logger.Error("shop cache refresh failed", zap.Int64("shopId", shop.ID), zap.Error(err))
			return fmt.Errorf("refresh shop %d: %w", shop.ID, err)
		}
		return nil
	}
	if err := s.cache.Delete(ctx, domain.CacheKeyShop(shop.ID)); err != nil {
		s.logger.Error("shop cache invalidation failed", zap.Int64("shopId", shop.ID), zap.Error(err))
		return fmt.Errorf("invalidate shop %d: %w", shop.ID, err)
	}
	return nil
}

// WarmShop loads a shop into the cache as a logical-expiration entry.
func (s *ShopService) WarmShop(ctx context.Context, id int64, ttl time.Duration) error {
	if id <= 0 {
		return domain.ErrInvalidArgument
	}
	shop, err := s.repo.GetShop(ctx, id)
	if err != nil {
		return err
	}
	return s.cache.SetWithLogicalExpire(ctx, domain.CacheKeyShop(id), shop, ttl)
}

// ListShopTypes serves the type list from a sorted set scored by sort order.
func (s *ShopService) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	members, err := s.lists.ZRange(ctx, domain.CacheShopTypeKey)
	if err != nil {
		s.logger.Warn("shop type cache read failed", zap.Error(err))
	}
	if len(members) > 0 {
		types := make([]domain.ShopType, 0, len(members))
		for _, m := range members {
			var t domain.ShopType
			if err := json.Unmarshal([]byte(m), &t); err != nil {
				s.logger.Error("malformed shop type entry", zap.String("member", m), zap.Error(err))
				continue
			}
			types = append(types, t)
		}
		if len(types) == len(members) {
			return types, nil
		}
	}

	types, err := s.repo.ListShopTypes(ctx)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, domain.ErrNotFound
	}

	scored := make(map[string]float64, len(types))
	for _, t := range types {
		payload, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode shop type %d: %w", t.ID, err)
		}
		scored[string(payload)] = float64(t.Sort)
	}
	// drop whatever was cached so a malformed member cannot survive the refill
	if err := s.lists.Delete(ctx, domain.CacheShopTypeKey); err != nil {
		s.logger.Warn("shop type cache reset failed", zap.Error(err))
	}
	if err := s.lists.ZAdd(ctx, domain.CacheShopTypeKey, scored); err != nil {
		s.logger.Warn("shop type cache write failed", zap.Error(err))
	}
	return types, nil
}
