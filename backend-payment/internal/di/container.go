package di

import (
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/chain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/consumer"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/handler"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/repository"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/database"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/redis"
)

// Container holds all dependencies for the payment service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client
	Chain *chain.RPCClient

	// Repositories
	PaymentRepo repository.PaymentRepository

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	PaymentService service.PaymentService

	// Background processing
	BookingConsumer *consumer.BookingConsumer
	EventRouter     *eventbus.Router

	// Handlers
	HealthHandler  *handler.HealthHandler
	PaymentHandler *handler.PaymentHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Redis          *redis.Client
	Chain          *chain.RPCClient
	PaymentRepo    repository.PaymentRepository
	EventPublisher service.EventPublisher
	ServiceConfig  *service.PaymentServiceConfig
	Logger         *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		Chain:          cfg.Chain,
		PaymentRepo:    cfg.PaymentRepo,
		EventPublisher: cfg.EventPublisher,
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NoOpEventPublisher{}
	}

	// Initialize services
	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.Chain,
		c.EventPublisher,
		cfg.ServiceConfig,
	)

	// Booking events
	c.EventRouter = eventbus.NewRouter(log)
	c.BookingConsumer = consumer.NewBookingConsumer(c.PaymentService, log)
	c.BookingConsumer.Register(c.EventRouter)

	// Initialize handlers
	components := map[string]handler.HealthChecker{"chain": c.Chain}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(components)
	c.PaymentHandler = handler.NewPaymentHandler(c.PaymentService)

	return c
}
