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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/product"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

const serviceName = "storefront-service"

func main() {
	if err := run(); err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Logger()
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

// run owns every resource so deferred closes happen before main exits.
func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	var store cart.Store = cart.NewPostgresStore(pool)
	if cfg.CartStore == config.StoreMemory {
		store = cart.NewMemoryStore()
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cache reads will fall through")
		}
		store = cart.NewCachedStore(store, rdb, cfg.CartCacheTTL, logger)
	}

	engine := cart.NewEngine(store,
		cart.WithMaxAttempts(cfg.CartMaxAttempts),
		cart.WithLogger(logger),
	)

	products, err := product.NewService(product.NewPostgresRepository(pool), cfg.ProductCacheSize)
	if err != nil {
		return fmt.Errorf("create product service: %w", err)
	}

	tokens, err := auth.NewTokenMaker(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("create token maker: %w", err)
	}
	users := user.NewService(user.NewPostgresRepository(pool))
	authSvc := auth.NewService(users, tokens, cfg.AllowRoleSelection)

	var publisher events.CartEvents = events.Nop{}
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		defer conn.Close()

		rabbit, err := events.NewRabbitCartEventsPublisher(conn, events.NewSequenceRepository(pool))
		if err != nil {
			return fmt.Errorf("create cart publisher: %w", err)
		}
		defer func() {
			if err := rabbit.Close(); err != nil {
				logger.Error().Err(err).Msg("close cart publisher")
			}
		}()
		publisher = rabbit
	} else {
		logger.Info().Msg("RABBITMQ_URL not set, cart events are not published")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := httpapi.NewRouter(httpapi.Deps{
		Cart:           engine,
		Products:       products,
		Auth:           authSvc,
		Events:         publisher,
		Logger:         logger,
		Metrics:        metrics.NewServerMetrics("http", reg),
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("cart_store", cfg.CartStore).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	return serveErr
}
