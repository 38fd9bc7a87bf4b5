package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-ledger/internal/cache"
	"stock-ledger/internal/config"
	"stock-ledger/internal/database"
	"stock-ledger/internal/events"
	"stock-ledger/internal/handlers"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/logger"
	"stock-ledger/internal/middleware"
	"stock-ledger/internal/repository"
	"stock-ledger/internal/routes"
	"stock-ledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	shutdownTimeout      = 10 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.Logging.Environment, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgresDB, err := database.NewPostgresDB(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, appLogger)
	if err != nil {
		return err
	}
	defer postgresDB.Close()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(cfg.Database.URL, appLogger); err != nil {
			return err
		}
	}

	// Redis es opcional: sin él el caché queda en L1 y los conteos se calculan al vuelo
	var (
		redisDB     *database.RedisDB
		redisClient *redis.Client
	)
	if rdb, err := database.NewRedisDB(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, appLogger); err != nil {
		appLogger.Warn("Redis unavailable, continuing without it", zap.Error(err))
	} else {
		redisDB, redisClient = rdb, rdb.Client
		defer redisDB.Close()
	}

	productCache := cache.NewProductCache(redisClient, cfg.Cache.L1Size, cfg.Cache.TTL, appLogger)

	publisher, err := newPublisher(cfg, appLogger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	stockRepo, err := repository.NewStockRepository(postgresDB.DB)
	if err != nil {
		return fmt.Errorf("stock repository: %w", err)
	}
	productRepo, err := repository.NewProductRepository(postgresDB.DB, appLogger)
	if err != nil {
		return fmt.Errorf("product repository: %w", err)
	}

	monitoringService := services.NewMonitoringService(appLogger, cfg, redisClient, postgresDB.DB, productCache)

	stockLedger := ledger.New(stockRepo, ledger.Options{
		AuditMode:   ledger.AuditMode(cfg.Ledger.AuditMode),
		Concurrency: ledger.ConcurrencyMode(cfg.Ledger.Concurrency),
		MaxRetries:  cfg.Ledger.MaxRetries,
	}, monitoringService, appLogger)

	routeAll := cfg.Ledger.RouteAllPaths
	stockService := services.NewStockService(stockLedger, stockRepo, productRepo, productCache, publisher, appLogger)
	productService := services.NewProductService(productRepo, stockLedger, productCache, publisher, routeAll, appLogger)
	salesService := services.NewSalesService(stockLedger, stockRepo, productRepo, productCache, publisher, routeAll, appLogger)
	importService := services.NewImportService(stockLedger, stockRepo, productRepo, productCache, publisher, routeAll, appLogger)
	notificationService := services.NewNotificationService(productRepo, redisClient, cfg.Notifications.PollInterval, appLogger)

	go notificationService.Run(ctx)
	go productCache.RunCleanup(ctx, cacheCleanupInterval)

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	monitoringHandler := handlers.NewMonitoringHandler(monitoringService, appLogger)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(appLogger))
	router.Use(monitoringHandler.RecordRequestMiddleware())

	routes.SetupRoutes(router, routes.Handlers{
		Stock:        handlers.NewStockHandler(stockService, appLogger),
		Product:      handlers.NewProductHandler(productService, importService, appLogger),
		POS:          handlers.NewPOSHandler(productService, salesService, productCache, appLogger),
		Notification: handlers.NewNotificationHandler(notificationService, appLogger),
		Monitoring:   monitoringHandler,
		Health: middleware.NewHealthChecker(postgresDB, redisDB, gin.H{
			"audit_mode":      cfg.Ledger.AuditMode,
			"concurrency":     cfg.Ledger.Concurrency,
			"route_all_paths": cfg.Ledger.RouteAllPaths,
		}, appLogger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		middleware.ServerInfo(cfg, appLogger)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	appLogger.Info("Server exited")
	return nil
}

func newPublisher(cfg *config.Config, appLogger *zap.Logger) (events.Publisher, error) {
	if !cfg.Kafka.Enabled {
		appLogger.Info("Kafka disabled, events go to the log")
		return events.NewLogPublisher(appLogger), nil
	}
	publisher, err := events.NewKafkaPublisher(cfg.Kafka, appLogger)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return publisher, nil
}
