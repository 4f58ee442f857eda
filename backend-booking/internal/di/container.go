package di

import (
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/client"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/consumer"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/handler"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/repository"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/worker"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/database"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/redis"
)

// sweepLockKey is shared by every replica of the booking service
const sweepLockKey = "booking:expiry-sweep"

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	BookingRepo repository.BookingRepository

	// Collaborators
	Identity client.IdentityClient
	Listings client.ListingClient

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	BookingService service.BookingService

	// Background processing
	ExpiryWorker    *worker.ExpiryWorker
	PaymentConsumer *consumer.PaymentConsumer
	EventRouter     *eventbus.Router

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Redis          *redis.Client
	BookingRepo    repository.BookingRepository
	Identity       client.IdentityClient
	Listings       client.ListingClient
	EventPublisher service.EventPublisher
	ServiceConfig  *service.BookingServiceConfig
	WorkerConfig   *worker.ExpiryWorkerConfig
	SweepLockTTL   time.Duration
	Logger         *logger.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		BookingRepo:    cfg.BookingRepo,
		Identity:       cfg.Identity,
		Listings:       cfg.Listings,
		EventPublisher: cfg.EventPublisher,
	}

	// Initialize services
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.Identity,
		c.Listings,
		c.EventPublisher,
		cfg.ServiceConfig,
	)

	// Expiry sweep, guarded across replicas when Redis is available
	var locker worker.Locker
	if c.Redis != nil {
		ttl := cfg.SweepLockTTL
		if ttl <= 0 {
			ttl = 90 * time.Second
		}
		locker = worker.NewRedisLocker(c.Redis, sweepLockKey, ttl)
	}
	expiryWorker, err := worker.NewExpiryWorker(c.BookingService, locker, cfg.WorkerConfig)
	if err != nil {
		return nil, err
	}
	c.ExpiryWorker = expiryWorker

	// Payment events
	c.EventRouter = eventbus.NewRouter(log)
	c.PaymentConsumer = consumer.NewPaymentConsumer(c.BookingService, log)
	c.PaymentConsumer.Register(c.EventRouter)

	// Initialize handlers
	components := map[string]handler.HealthChecker{}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(components, c.ExpiryWorker)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)

	return c, nil
}
