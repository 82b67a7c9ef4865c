package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache strategies for shop reads.
const (
	StrategyPassThrough   = "pass_through"
	StrategyMutex         = "mutex"
	StrategyLogicalExpire = "logical_expire"
)

// Config holds service configuration loaded from YAML, .env and environment.
type Config struct {
	LogLevel string

	HTTPPort string
	GRPCPort string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	MySQLDSN          string
	MySQLMaxOpenConns int
	MySQLMaxIdleConns int
	MySQLConnLifetime time.Duration

	CacheStrategy      string
	ShopTTL            time.Duration
	SeckillVoucherTTL  time.Duration
	NullTTL            time.Duration
	CacheLockLease     time.Duration
	CacheRetryInterval time.Duration
	CacheMaxRetries    int

	RebuildWorkers   int
	RebuildQueueSize int
	RebuildTimeout   time.Duration

	ConsumerName   string
	ConsumerCount  int64
	ConsumerBlock  time.Duration
	OrderLockLease time.Duration
	MaxDeliveries  int64

	PurchaseRateLimitRPS   int
	PurchaseRateLimitBurst int

	ShutdownTimeout time.Duration
}

type fileConfig struct {
	LogLevel string `yaml:"log_level"`

	Server struct {
		HTTPPort string `yaml:"http_port"`
		GRPCPort string `yaml:"grpc_port"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	MySQL struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
		ConnLifetime string `yaml:"conn_lifetime"`
	} `yaml:"mysql"`

	Cache struct {
		Strategy      string `yaml:"strategy"`
		ShopTTL       string `yaml:"shop_ttl"`
		SeckillTTL    string `yaml:"seckill_ttl"`
		NullTTL       string `yaml:"null_ttl"`
		LockLease     string `yaml:"lock_lease"`
		RetryInterval string `yaml:"retry_interval"`
		MaxRetries    int    `yaml:"max_retries"`
		Rebuild       struct {
			Workers   int    `yaml:"workers"`
			QueueSize int    `yaml:"queue_size"`
			Timeout   string `yaml:"timeout"`
		} `yaml:"rebuild"`
	} `yaml:"cache"`

	Consumer struct {
		Name          string `yaml:"name"`
		Count         int64  `yaml:"count"`
		Block         string `yaml:"block"`
		LockLease     string `yaml:"lock_lease"`
		MaxDeliveries int64  `yaml:"max_deliveries"`
	} `yaml:"consumer"`

	RateLimit struct {
		PurchaseRPS   int `yaml:"purchase_rps"`
		PurchaseBurst int `yaml:"purchase_burst"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Default returns the configuration used when no file or override is present.
func Default() *Config {
	return &Config{
		LogLevel:               "INFO",
		HTTPPort:               "8080",
		GRPCPort:               "50051",
		RedisAddr:              "localhost:6379",
		RedisPoolSize:          100,
		MySQLDSN:               "root:root@tcp(localhost:3306)/hmdp?parseTime=true",
		MySQLMaxOpenConns:      50,
		MySQLMaxIdleConns:      25,
		MySQLConnLifetime:      5 * time.Minute,
		CacheStrategy:          StrategyPassThrough,
		ShopTTL:                30 * time.Minute,
		SeckillVoucherTTL:      10 * time.Minute,
		NullTTL:                2 * time.Minute,
		CacheLockLease:         10 * time.Second,
		CacheRetryInterval:     50 * time.Millisecond,
		CacheMaxRetries:        20,
		RebuildWorkers:         10,
		RebuildQueueSize:       256,
		RebuildTimeout:         5 * time.Second,
		ConsumerName:           "c1",
		ConsumerCount:          10,
		ConsumerBlock:          2 * time.Second,
		OrderLockLease:         30 * time.Second,
		MaxDeliveries:          16,
		PurchaseRateLimitRPS:   0,
		PurchaseRateLimitBurst: 0,
		ShutdownTimeout:        10 * time.Second,
	}
}

// Load reads config/{ENV_NAME}.yaml (default dev) when present, loads .env for local
// development, then applies environment overrides. Call from project root.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(filepath.Join(cwd, "config", env+".yaml"))
	switch {
	case err == nil:
		if err := apply(cfg, data); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse applies YAML data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := apply(cfg, data); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.HTTPPort, fc.Server.HTTPPort)
	setString(&cfg.GRPCPort, fc.Server.GRPCPort)

	setString(&cfg.RedisAddr, fc.Redis.Addr)
	setString(&cfg.RedisPassword, fc.Redis.Password)
	setInt(&cfg.RedisDB, fc.Redis.DB)
	setInt(&cfg.RedisPoolSize, fc.Redis.PoolSize)

	setString(&cfg.MySQLDSN, fc.MySQL.DSN)
	setInt(&cfg.MySQLMaxOpenConns, fc.MySQL.MaxOpenConns)
	setInt(&cfg.MySQLMaxIdleConns, fc.MySQL.MaxIdleConns)

	setString(&cfg.CacheStrategy, fc.Cache.Strategy)
	setInt(&cfg.CacheMaxRetries, fc.Cache.MaxRetries)
	setInt(&cfg.RebuildWorkers, fc.Cache.Rebuild.Workers)
	setInt(&cfg.RebuildQueueSize, fc.Cache.Rebuild.QueueSize)

	setString(&cfg.ConsumerName, fc.Consumer.Name)
	if fc.Consumer.Count > 0 {
		cfg.ConsumerCount = fc.Consumer.Count
	}
	if fc.Consumer.MaxDeliveries > 0 {
		cfg.MaxDeliveries = fc.Consumer.MaxDeliveries
	}

	setInt(&cfg.PurchaseRateLimitRPS, fc.RateLimit.PurchaseRPS)
	setInt(&cfg.PurchaseRateLimitBurst, fc.RateLimit.PurchaseBurst)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"mysql.conn_lifetime", fc.MySQL.ConnLifetime, &cfg.MySQLConnLifetime},
		{"cache.shop_ttl", fc.Cache.ShopTTL, &cfg.ShopTTL},
		{"cache.seckill_ttl", fc.Cache.SeckillTTL, &cfg.SeckillVoucherTTL},
		{"cache.null_ttl", fc.Cache.NullTTL, &cfg.NullTTL},
		{"cache.lock_lease", fc.Cache.LockLease, &cfg.CacheLockLease},
		{"cache.retry_interval", fc.Cache.RetryInterval, &cfg.CacheRetryInterval},
		{"cache.rebuild.timeout", fc.Cache.Rebuild.Timeout, &cfg.RebuildTimeout},
		{"consumer.block", fc.Consumer.Block, &cfg.ConsumerBlock},
		{"consumer.lock_lease", fc.Consumer.LockLease, &cfg.OrderLockLease},
		{"shutdown.timeout", fc.Shutdown.Timeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&cfg.HTTPPort, os.Getenv("HTTP_PORT"))
	setString(&cfg.GRPCPort, os.Getenv("GRPC_PORT"))
	setString(&cfg.RedisAddr, os.Getenv("REDIS_ADDR"))
	setString(&cfg.RedisPassword, os.Getenv("REDIS_PASSWORD"))
	setString(&cfg.MySQLDSN, os.Getenv("MYSQL_DSN"))
	setString(&cfg.CacheStrategy, os.Getenv("CACHE_STRATEGY"))
	setString(&cfg.ConsumerName, os.Getenv("CONSUMER_NAME"))

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}
	return nil
}

func (c *Config) validate() error {
	switch c.CacheStrategy {
	case StrategyPassThrough, StrategyMutex, StrategyLogicalExpire:
	default:
		return fmt.Errorf("cache.strategy: unknown strategy %q", c.CacheStrategy)
	}
	if c.RebuildWorkers <= 0 {
		return fmt.Errorf("cache.rebuild.workers must be positive, got %d", c.RebuildWorkers)
	}
	if c.ConsumerBlock <= 0 {
		return fmt.Errorf("consumer.block must be positive, got %s", c.ConsumerBlock)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
