package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/chain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/di"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/metrics"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/repository"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/config"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/database"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/middleware"
	pkgredis "github.com/appLSI/decentralized-rental-app-sub000/pkg/redis"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/retry"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "payment-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateChain(); err != nil {
		log.Fatalf("Invalid chain config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Payment Service...", zap.String("environment", cfg.App.Environment))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Tracing and metrics
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry init failed, continuing without tracing", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics init failed", zap.Error(err))
	}

	// Amount tolerance, parsed once so a typo fails at startup
	var tolerance *decimal.Decimal
	if cfg.Chain.AmountTolerance != "" {
		t, err := decimal.NewFromString(cfg.Chain.AmountTolerance)
		if err != nil || t.IsNegative() || t.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			appLog.Fatal("Invalid CHAIN_AMOUNT_TOLERANCE", zap.String("value", cfg.Chain.AmountTolerance))
		}
		tolerance = &t
	}

	// Initialize database connection. Outside production the service falls
	// back to the in-memory repository when Postgres is unreachable.
	var db *database.PostgresDB
	var paymentRepo repository.PaymentRepository
	dbCfg := cfg.PaymentDatabase
	if err := cfg.ValidatePaymentDatabase(); err != nil && cfg.IsProduction() {
		appLog.Fatal("Invalid payment database config", zap.Error(err))
	}
	db, err = database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            dbCfg.Host,
		Port:            dbCfg.Port,
		User:            dbCfg.User,
		Password:        dbCfg.Password,
		Database:        dbCfg.DBName,
		SSLMode:         dbCfg.SSLMode,
		MaxConns:        int32(dbCfg.MaxOpenConns),
		MinConns:        int32(dbCfg.MaxIdleConns),
		MaxConnLifetime: dbCfg.ConnMaxLifetime,
		MaxConnIdleTime: dbCfg.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     serviceName,
	})
	switch {
	case err == nil:
		defer db.Close()
		if dbCfg.Migrate {
			if err := repository.EnsureSchema(ctx, db.Pool()); err != nil {
				appLog.Fatal("Failed to apply payment schema", zap.Error(err))
			}
		}
		paymentRepo = repository.NewPostgresPaymentRepository(db.Pool())
		appLog.Info("Database connected", zap.String("database", dbCfg.DBName))
	case cfg.IsProduction():
		appLog.Fatal("Database connection failed", zap.Error(err))
	default:
		appLog.Warn("Database connection failed, using in-memory repository", zap.Error(err))
		db = nil
		paymentRepo = repository.NewMemoryPaymentRepository()
	}

	// Redis backs idempotency keys on the validate endpoint
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 500 * time.Millisecond,
		})
		if err != nil {
			appLog.Warn("Redis connection failed, idempotency disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			appLog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// Event bus
	busOpts := &eventbus.Options{
		Driver:         cfg.Bus.Driver,
		Service:        serviceName,
		KafkaBrokers:   cfg.Kafka.Brokers,
		KafkaClientID:  serviceName,
		KafkaGroupID:   cfg.Kafka.ConsumerGroup,
		RabbitURL:      cfg.RabbitMQ.URL,
		RabbitExchange: cfg.RabbitMQ.Exchange,
		RabbitQueue:    cfg.RabbitMQ.Queue,
		RabbitPrefetch: cfg.RabbitMQ.Prefetch,
		Retry: &retry.Config{
			MaxRetries:      cfg.Bus.MaxRetries,
			InitialInterval: cfg.Bus.InitialInterval,
			MaxInterval:     cfg.Bus.MaxInterval,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}
	busPublisher, err := eventbus.NewPublisher(ctx, busOpts)
	if err != nil {
		appLog.Warn("Event bus connection failed, using no-op publisher", zap.Error(err))
		busPublisher = eventbus.NewNoOpPublisher()
	} else {
		appLog.Info("Event bus publisher connected", zap.String("driver", cfg.Bus.Driver))
	}
	defer busPublisher.Close()
	eventPublisher := service.NewBusEventPublisher(busPublisher, &service.EventPublisherConfig{ServiceName: serviceName})

	// Blockchain node
	chainClient := chain.NewRPCClient(&chain.Config{
		URL:        cfg.Chain.RPCURL,
		Timeout:    cfg.Chain.Timeout,
		MaxRetries: cfg.Chain.MaxRetries,
	})
	if n, err := chainClient.BlockNumber(ctx); err != nil {
		appLog.Warn("Blockchain node unreachable, validations will be retryable until it answers", zap.Error(err))
	} else {
		appLog.Info("Blockchain node connected", zap.Uint64("block", n))
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:             db,
		Redis:          redisClient,
		Chain:          chainClient,
		PaymentRepo:    paymentRepo,
		EventPublisher: eventPublisher,
		ServiceConfig: &service.PaymentServiceConfig{
			Currency:        cfg.Chain.Currency,
			Decimals:        cfg.Chain.Decimals,
			AmountTolerance: tolerance,
			Logger:          appLog,
		},
		Logger: appLog,
	})

	// Follow the booking lifecycle
	source, err := eventbus.NewSource(ctx, busOpts, container.EventRouter.Topics(), appLog)
	if err != nil {
		appLog.Warn("Event bus consumer unavailable, booking events will not be observed", zap.Error(err))
	} else if source != nil {
		defer source.Close()
		go func() {
			if err := source.Run(ctx, container.EventRouter.Dispatch); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("Event consumer stopped", zap.Error(err))
			}
		}()
		appLog.Info("Consuming booking events", zap.Strings("topics", container.EventRouter.Topics()))
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(serviceName))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Idempotency for writes, only when Redis is up
	idempotency := func(c *gin.Context) { c.Next() }
	if redisClient != nil {
		idemCfg := middleware.DefaultIdempotencyConfig(redisClient.Client())
		idemCfg.Logger = appLog
		idempotency = middleware.Idempotency(idemCfg)
	}

	// API routes
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		payments.POST("/validate", idempotency, container.PaymentHandler.ValidatePayment)
		payments.GET("/:id", container.PaymentHandler.GetPayment)
		payments.GET("/booking/:bookingId", container.PaymentHandler.GetPaymentsForBooking)
	}

	// Service-to-service routes
	serviceAuth := &middleware.ServiceAuthConfig{
		Secret:   cfg.ServiceAuth.Secret,
		Issuer:   cfg.ServiceAuth.Issuer,
		Audience: cfg.ServiceAuth.Audience,
		TTL:      cfg.ServiceAuth.TokenTTL,
	}
	internal := router.Group("/internal/v1", middleware.ServiceAuth(serviceAuth))
	{
		internal.GET("/payments/booking/:bookingId", container.PaymentHandler.GetPaymentsForBooking)
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info("Payment Service listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Validations in flight finish their transaction before the pool closes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	stop()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}
