package domain

import "strconv"

// Redis key layout, kept in one place.
const (
	CacheShopKeyPrefix    = "cache:shop:"
	LockShopKeyPrefix     = "shop:"
	CacheShopTypeKey      = "cache:shop-type"
	CacheSeckillKeyPrefix = "cache:seckill:"
	LockSeckillKeyPrefix  = "seckill:"
	LockOrderKeyPrefix    = "order:"
)

func CacheKeyShop(id int64) string    { return CacheShopKeyPrefix + strconv.FormatInt(id, 10) }
func LockKeyShop(id int64) string     { return LockShopKeyPrefix + strconv.FormatInt(id, 10) }
func CacheKeySeckill(id int64) string { return CacheSeckillKeyPrefix + strconv.FormatInt(id, 10) }
func LockKeySeckill(id int64) string  { return LockSeckillKeyPrefix + strconv.FormatInt(id, 10) }
func LockKeyOrder(userID int64) string {
	return LockOrderKeyPrefix + strconv.FormatInt(userID, 10)
}
