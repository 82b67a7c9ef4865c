package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/review-platform/internal/adapter/storage"
	"github.com/rl1809/review-platform/internal/config"
	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/observability"
)

const (
	voucherID     = 990001
	initialStock  = 20
	totalRequests = 200
	repeatPerUser = 2
	stressStream  = "stream.orders.stress"
	stressGroup   = "stress"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// clear previous run
	vid := strconv.Itoa(voucherID)
	rdb.Del(ctx, "seckill:stock:"+vid, "seckill:order:"+vid, stressStream)

	gate := storage.NewRedisAdmissionGate(rdb, stressStream)
	ids := storage.NewRedisIDWorker(rdb)
	stream := storage.NewRedisOrderStream(rdb, stressStream, stressGroup)
	if err := gate.SetStock(ctx, voucherID, initialStock); err != nil {
		logger.Fatal("failed to set stock", zap.Error(err))
	}
	if err := stream.EnsureGroup(ctx); err != nil {
		logger.Fatal("failed to create group", zap.Error(err))
	}

	var accepted, outOfStock, duplicate, failed atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		for r := 0; r < repeatPerUser; r++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				orderID, err := ids.NextID(ctx, "order")
				if err != nil {
					failed.Add(1)
					return
				}
				result, err := gate.Reserve(ctx, voucherID, userID, orderID)
				switch {
				case err != nil:
					failed.Add(1)
				case result == domain.ReserveAccepted:
					accepted.Add(1)
				case result == domain.ReserveOutOfStock:
					outOfStock.Add(1)
				case result == domain.ReserveDuplicatePurchase:
					duplicate.Add(1)
				}
			}(int64(i + 1))
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	entries, _ := rdb.XLen(ctx, stressStream).Result()
	finalStock, _ := gate.Stock(ctx, voucherID)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Users x Repeats:  %d x %d\n", totalRequests, repeatPerUser)
	fmt.Printf("Accepted:         %d\n", accepted.Load())
	fmt.Printf("Out of stock:     %d\n", outOfStock.Load())
	fmt.Printf("Duplicate:        %d\n", duplicate.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Stream entries:   %d\n", entries)
	fmt.Printf("Final stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := accepted.Load() == initialStock && entries == initialStock && finalStock == 0 && failed.Load() == 0
	if ok {
		fmt.Printf("PASS: exactly %d purchases admitted, one stream entry each, stock depleted\n", initialStock)
	} else {
		fmt.Println("FAIL: admission counts do not match stock")
		os.Exit(1)
	}
}
