package main

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"retail-order-service/internal/api"
	"retail-order-service/internal/cache"
	"retail-order-service/internal/config"
	"retail-order-service/internal/events"
	"retail-order-service/internal/idgen"
	"retail-order-service/internal/repository"
	"retail-order-service/internal/service"
	"retail-order-service/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "memory":
		logger.Warn().Msg("Using in-memory store, data is lost on exit")
		return repository.NewMemoryStore(), nil
	case "sqlite":
		db, err := config.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := migrations.AutoMigrate(3, "sqlite", db); err != nil {
			return nil, err
		}
		return repository.NewSQLStore(db, repository.SQLite), nil
	default:
		db, err := config.ConnectMySQL(cfg)
		if err != nil {
			return nil, err
		}
		if err := migrations.AutoMigrate(3, "mysql", db); err != nil {
			return nil, err
		}
		return repository.NewSQLStore(db, repository.MySQL), nil
	}
}

// newAllocator seeds the sequence from the highest id already stored so a restart never reuses one.
func newAllocator(ctx context.Context, cfg *config.Config, store repository.Store, rdb *redis.Client) (idgen.Allocator, error) {
	if cfg.OrderIDScheme == "random" {
		return idgen.NewRandomAllocator(), nil
	}
	last, err := store.MaxDisplaySequence(ctx, cfg.OrderIDPrefix)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return idgen.NewSequenceAllocator(cfg.OrderIDPrefix, idgen.NewMemoryCounter(last)), nil
	}
	counter := idgen.NewRedisCounter(rdb, "order-seq:"+cfg.OrderIDPrefix)
	if err := counter.Seed(ctx, last); err != nil {
		return nil, err
	}
	return idgen.NewSequenceAllocator(cfg.OrderIDPrefix, counter), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	config.SetupLogger(cfg.LogLevel)
	ctx := context.Background()

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	rdb, err := config.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	allocator, err := newAllocator(ctx, cfg, store, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up order id allocator")
	}

	opts := []service.Option{service.WithCreditTerm(cfg.CreditTerm())}
	var stockCache service.StockCache
	if rdb != nil {
		stockCache = cache.NewStockCache(rdb, cfg.StockCacheTTL)
		opts = append(opts, service.WithIdempotency(cache.NewRedisIdempotency(rdb, cfg.IdempotencyTTL)))
	} else {
		opts = append(opts, service.WithIdempotency(cache.NewMemoryIdempotency()))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaWriter := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaWriter.Close()
		opts = append(opts, service.WithPublisher(events.NewKafkaPublisher(kafkaWriter)))
	}

	customerService := service.NewCustomerService(store, cfg.PhoneRegion)
	stockService := service.NewStockService(store, stockCache)
	catalogService := service.NewCatalogService(store)
	orderService := service.NewOrderService(store, allocator, customerService, stockService, opts...)

	orderHandler := api.NewOrderHandler(orderService)
	catalogHandler := api.NewCatalogHandler(catalogService, stockService, customerService)

	e := echo.New()

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET is not set, admin routes are unauthenticated")
	}
	api.RegisterRoutes(e, orderHandler, catalogHandler, cfg.JWTSecret)

	e.Logger.Fatal(e.Start(cfg.HTTPAddr))
}
