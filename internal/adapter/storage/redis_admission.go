package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/review-platform/internal/core/domain"
)

const (
	seckillStockKeyPrefix = "seckill:stock:"
	seckillOrderKeyPrefix = "seckill:order:"
)

// KEYS: stock key, purchase-marker set, order stream
// ARGV: voucher id, user id, order id
var reserveScript = redis.NewScript(`
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local streamKey = KEYS[3]
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]

if redis.call('SISMEMBER', orderKey, userId) == 1 then
	return 2
end

local stock = tonumber(redis.call('GET', stockKey))
if not stock or stock <= 0 then
	return 1
end

redis.call('INCRBY', stockKey, -1)
redis.call('SADD', orderKey, userId)
redis.call('XADD', streamKey, '*', 'id', orderId, 'userId', userId, 'voucherId', voucherId)
return 0
`)

// RedisAdmissionGate owns the seckill stock counters and purchase markers.
type RedisAdmissionGate struct {
	client *redis.Client
	stream string
}

func NewRedisAdmissionGate(client *redis.Client, stream string) *RedisAdmissionGate {
	return &RedisAdmissionGate{client: client, stream: stream}
}

func (g *RedisAdmissionGate) Reserve(ctx context.Context, voucherID, userID, orderID int64) (domain.ReserveResult, error) {
	vid := strconv.FormatInt(voucherID, 10)
	keys := []string{seckillStockKeyPrefix + vid, seckillOrderKeyPrefix + vid, g.stream}

	code, err := reserveScript.Run(ctx, g.client, keys,
		vid, strconv.FormatInt(userID, 10), strconv.FormatInt(orderID, 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("run reserve script: %w", err)
	}

	result := domain.ReserveResult(code)
	switch result {
	case domain.ReserveAccepted, domain.ReserveOutOfStock, domain.ReserveDuplicatePurchase:
		return result, nil
	default:
		return 0, fmt.Errorf("reserve script returned unexpected code %d", code)
	}
}

func (g *RedisAdmissionGate) SetStock(ctx context.Context, voucherID int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: negative stock %d", domain.ErrInvalidArgument, stock)
	}
	return g.client.Set(ctx, seckillStockKeyPrefix+strconv.FormatInt(voucherID, 10), stock, 0).Err()
}

// Stock reads the current counter; used by tooling and tests.
func (g *RedisAdmissionGate) Stock(ctx context.Context, voucherID int64) (int, error) {
	return g.client.Get(ctx, seckillStockKeyPrefix+strconv.FormatInt(voucherID, 10)).Int()
}
