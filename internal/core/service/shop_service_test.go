package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/core/domain"
)

func newTestShopService(t *testing.T, repo *mockShopRepo, strategy CacheStrategy) (*ShopService, *mockKV, *mockZSet) {
	t.Helper()
	kv := newMockKV()
	zset := newMockZSet()
	cache, _ := newTestCache(t, kv, newMockLocker(), nil)
	return NewShopService(repo, cache, zset, strategy, 30*time.Minute, zap.NewNop()), kv, zset
}

func TestGetShop_Strategies(t *testing.T) {
	for _, strategy := range []CacheStrategy{StrategyPassThrough, StrategyMutex} {
		t.Run(string(strategy), func(t *testing.T) {
			repo := newMockShopRepo(domain.Shop{ID: 1, Name: "Hotpot"})
			svc, _, _ := newTestShopService(t, repo, strategy)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				shop, err := svc.GetShop(ctx, 1)
				if err != nil || shop.Name != "Hotpot" {
					t.Fatalf("GetShop() = %+v, %v", shop, err)
				}
			}
			if repo.gets.Load() != 1 {
				t.Errorf("repo hit %d times, want 1", repo.gets.Load())
			}

			if _, err := svc.GetShop(ctx, 99); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("GetShop(99) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestGetShop_LogicalExpireNeedsWarmup(t *testing.T) {
	repo := newMockShopRepo(domain.Shop{ID: 2, Name: "Bakery"})
	svc, _, _ := newTestShopService(t, repo, StrategyLogicalExpire)
	ctx := context.Background()

	if _, err := svc.GetShop(ctx, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cold GetShop() error = %v, want ErrNotFound", err)
	}
	if err := svc.WarmShop(ctx, 2, time.Minute); err != nil {
		t.Fatalf("WarmShop() error = %v", err)
	}
	shop, err := svc.GetShop(ctx, 2)
	if err != nil || shop.Name != "Bakery" {
		t.Errorf("warm GetShop() = %+v, %v", shop, err)
	}
}

func TestUpdateShop_LogicalExpireKeepsEntry(t *testing.T) {
	repo := newMockShopRepo(domain.Shop{ID: 2, Name: "Bakery"})
	svc, kv, _ := newTestShopService(t, repo, StrategyLogicalExpire)
	ctx := context.Background()

	if err := svc.WarmShop(ctx, 2, time.Minute); err != nil {
		t.Fatalf("WarmShop() error = %v", err)
	}
	if err := svc.UpdateShop(ctx, domain.Shop{ID: 2, Name: "Patisserie"}); err != nil {
		t.Fatalf("UpdateShop() error = %v", err)
	}
	if _, _, ok := kv.raw(domain.CacheKeyShop(2)); !ok {
		t.Fatal("logical entry removed by update")
	}

	for i := 0; i < 3; i++ {
		shop, err := svc.GetShop(ctx, 2)
		if err != nil || shop.Name != "Patisserie" {
			t.Fatalf("GetShop() after update = %+v, %v", shop, err)
		}
	}
	if repo.gets.Load() != 2 {
		t.Errorf("repo hit %d times, want 2 (warmup and update)", repo.gets.Load())
	}
}

func TestGetShop_InvalidID(t *testing.T) {
	svc, _, _ := newTestShopService(t, newMockShopRepo(), StrategyPassThrough)
	if _, err := svc.GetShop(context.Background(), 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestUpdateShop_InvalidatesCache(t *testing.T) {
	repo := newMockShopRepo(domain.Shop{ID: 1, Name: "before"})
	svc, kv, _ := newTestShopService(t, repo, StrategyPassThrough)
	ctx := context.Background()

	svc.GetShop(ctx, 1)
	if _, _, ok := kv.raw(domain.CacheKeyShop(1)); !ok {
		t.Fatal("shop not cached after read")
	}

	if err := svc.UpdateShop(ctx, domain.Shop{ID: 1, Name: "after"}); err != nil {
		t.Fatalf("UpdateShop() error = %v", err)
	}
	if _, _, ok := kv.raw(domain.CacheKeyShop(1)); ok {
		t.Error("cache entry survived update")
	}

	shop, _ := svc.GetShop(ctx, 1)
	if shop.Name != "after" {
		t.Errorf("read after update = %q, want after", shop.Name)
	}
}

func TestUpdateShop_RequiresID(t *testing.T) {
	repo := newMockShopRepo()
	svc, _, _ := newTestShopService(t, repo, StrategyPassThrough)

	if err := svc.UpdateShop(context.Background(), domain.Shop{Name: "nameless"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
	if repo.updates != 0 {
		t.Error("repository touched for invalid update")
	}
}

func TestListShopTypes_CachedInSortedSet(t *testing.T) {
	repo := newMockShopRepo()
	repo.types = []domain.ShopType{
		{ID: 1, Name: "Food", Icon: "/food.png", Sort: 1},
		{ID: 2, Name: "KTV", Icon: "/ktv.png", Sort: 2},
	}
	svc, _, zset := newTestShopService(t, repo, StrategyPassThrough)
	ctx := context.Background()

	first, err := svc.ListShopTypes(ctx)
	if err != nil || len(first) != 2 {
		t.Fatalf("ListShopTypes() = %v, %v", first, err)
	}
	members, _ := zset.ZRange(ctx, domain.CacheShopTypeKey)
	if len(members) != 2 {
		t.Fatalf("sorted set has %d members, want 2", len(members))
	}

	second, err := svc.ListShopTypes(ctx)
	if err != nil {
		t.Fatalf("cached ListShopTypes() error = %v", err)
	}
	if repo.lists.Load() != 1 {
		t.Errorf("repository listed %d times, want 1", repo.lists.Load())
	}
	if second[0].Name != "Food" || second[1].Name != "KTV" {
		t.Errorf("cached order = %v, want by sort", second)
	}
}

func TestListShopTypes_Empty(t *testing.T) {
	svc, _, _ := newTestShopService(t, newMockShopRepo(), StrategyPassThrough)
	if _, err := svc.ListShopTypes(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListShopTypes_MalformedMemberReplaced(t *testing.T) {
	repo := newMockShopRepo()
	repo.types = []domain.ShopType{{ID: 1, Name: "Food", Sort: 1}}
	svc, _, zset := newTestShopService(t, repo, StrategyPassThrough)
	ctx := context.Background()
	zset.ZAdd(ctx, domain.CacheShopTypeKey, map[string]float64{"{not json": 0})

	for i := 0; i < 2; i++ {
		types, err := svc.ListShopTypes(ctx)
		if err != nil || len(types) != 1 || types[0].Name != "Food" {
			t.Fatalf("ListShopTypes() = %v, %v", types, err)
		}
	}
	if repo.lists.Load() != 1 {
		t.Errorf("repository listed %d times, want 1 once the set is rebuilt", repo.lists.Load())
	}
	members, _ := zset.ZRange(ctx, domain.CacheShopTypeKey)
	if len(members) != 1 {
		t.Errorf("sorted set = %v, want only the valid member", members)
	}
}
