package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/rl1809/review-platform/internal/adapter/handler"
	"github.com/rl1809/review-platform/internal/adapter/storage"
	"github.com/rl1809/review-platform/internal/config"
	"github.com/rl1809/review-platform/internal/core/domain"
	"github.com/rl1809/review-platform/internal/core/service"
	"github.com/rl1809/review-platform/internal/observability"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	logger.Info("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
		return err
	}

	redisAdapter := storage.NewRedisAdapter(rdb)
	locker := storage.NewRedisLocker(rdb)
	ids := storage.NewRedisIDWorker(rdb)
	gate := storage.NewRedisAdmissionGate(rdb, storage.OrderStream)
	stream := storage.NewRedisOrderStream(rdb, storage.OrderStream, storage.OrderStreamGroup)

	pool := service.NewRebuildPool(cfg.RebuildWorkers, cfg.RebuildQueueSize, cfg.RebuildTimeout, logger)
	defer pool.Close()

	cacheOptions := func(name string) service.CacheOptions {
		opts := service.DefaultCacheOptions(name)
		opts.NullTTL = cfg.NullTTL
		opts.LockLease = cfg.CacheLockLease
		opts.RetryInterval = cfg.CacheRetryInterval
		opts.MaxRetries = cfg.CacheMaxRetries
		return opts
	}
	shopCache := service.NewCacheClient[domain.Shop](redisAdapter, locker, pool, cacheOptions("shop"), logger)
	voucherCache := service.NewCacheClient[domain.SeckillVoucher](redisAdapter, locker, pool, cacheOptions("seckill"), logger)

	shopService := service.NewShopService(mysqlAdapter, shopCache, redisAdapter, service.CacheStrategy(cfg.CacheStrategy), cfg.ShopTTL, logger)
	voucherService := service.NewVoucherOrderService(mysqlAdapter, voucherCache, gate, ids, cfg.SeckillVoucherTTL, logger)

	consumer := service.NewOrderConsumer(stream, locker, mysqlAdapter, service.OrderConsumerConfig{
		Name:          cfg.ConsumerName,
		Count:         cfg.ConsumerCount,
		Block:         cfg.ConsumerBlock,
		LockLease:     cfg.OrderLockLease,
		MaxDeliveries: cfg.MaxDeliveries,
	}, logger)

	var purchaseLimiter *rate.Limiter
	if cfg.PurchaseRateLimitRPS > 0 {
		purchaseLimiter = rate.NewLimiter(rate.Limit(cfg.PurchaseRateLimitRPS), cfg.PurchaseRateLimitBurst)
	}
	ping := func(ctx context.Context) error {
		if err := redisAdapter.Ping(ctx); err != nil {
			return err
		}
		return db.PingContext(ctx)
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(shopService, voucherService, ping, logger), logger, purchaseLimiter),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(logger)))
	handler.RegisterVoucherServiceServer(grpcServer, handler.NewGRPCHandler(shopService, voucherService, logger))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("servers stopped, draining cache rebuilds")
	return err
}
