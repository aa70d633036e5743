package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cache"
	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/gateway"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.ConnectionString(), logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Initialize coupon loader with S3 and local fallback
	fileLoader := coupon.NewFileLoader(logger)
	var s3Loader coupon.Loader
	if cfg.S3.Enabled {
		s3Loader, err = coupon.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
			s3Loader = nil
		}
	} else {
		logger.Info().Msg("using local file system for coupon files (S3 disabled)")
	}
	couponLoader := coupon.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled, logger)

	rules, err := coupon.NewCatalog(ctx, &coupon.CatalogConfig{
		FilePaths:       cfg.Pricing.CouponRuleFiles,
		IncludeDefaults: cfg.Pricing.IncludeDefaults,
	}, couponLoader, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize coupon catalog: %w", err)
	}

	engine := pricing.NewEngine(pricing.DefaultConfig(), rules)

	gw := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Currency:  cfg.Gateway.Currency,
		Timeout:   cfg.Gateway.Timeout,
	}, logger)

	m := metrics.New()
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	locker := cache.NewRedisLocker(redisClient, "confirm", cfg.Checkout.ConfirmLockTTL)

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := repository.NewOutboxRepository(pool, logger)

	// Initialize services
	productService := service.NewProductService(productRepo, logger)
	cartService := service.NewCartService(cart.NewRedisPersister(redisClient, cfg.Redis.CartTTL), productService, logger)
	checkoutService := service.NewCheckoutService(cartService, orderRepo, engine, gw, m, cfg.Gateway.CallbackURL, logger)
	reconciliationService := service.NewReconciliationService(orderRepo, productRepo, outboxRepo, gw, locker, cartService, m, logger)

	// Initialize HTTP handlers and router
	mux := router.New(router.Handlers{
		Product:  handler.NewProductHandler(productService, logger),
		Cart:     handler.NewCartHandler(cartService, logger),
		Checkout: handler.NewCheckoutHandler(checkoutService, logger),
		Payment:  handler.NewPaymentHandler(reconciliationService, logger),
		Order:    handler.NewOrderHandler(reconciliationService, logger),
		Internal: handler.NewInternalHandler(checkoutService, logger),
	}, tokens, m, cfg.Auth.APIKey, logger)

	// Outbox relay runs only when a broker is configured; events accumulate otherwise.
	var workers sync.WaitGroup
	if cfg.Kafka.Enabled {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()

		poller := events.NewOutboxPoller(outboxRepo, writer, m, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			poller.Run(ctx)
		}()
	} else {
		logger.Info().Msg("kafka disabled, order events stay in the outbox")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		cancel()
		workers.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		// Stop background workers after in-flight requests finish
		cancel()
		workers.Wait()

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
