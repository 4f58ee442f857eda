package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	pkgredis "github.com/appLSI/decentralized-rental-app-sub000/pkg/redis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper expires bookings whose payment window has passed
type Sweeper interface {
	ExpireStaleBookings(ctx context.Context) (*service.ExpiryResult, error)
}

// Locker guards a sweep so only one replica runs it at a time.
// Acquire returns ok=false when another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// Schedule is a cron spec, e.g. "@every 2m"
	Schedule string
	// SweepTimeout bounds a single sweep
	SweepTimeout time.Duration
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		Schedule:     "@every 2m",
		SweepTimeout: 60 * time.Second,
	}
}

// ExpiryWorker runs the expiry sweep on a cron schedule
type ExpiryWorker struct {
	sweeper Sweeper
	locker  Locker
	config  *ExpiryWorkerConfig
	log     *logger.Logger
	cron    *cron.Cron
	job     cron.Job
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalRuns            int64
	skippedRuns          int64
	totalExpired         int64
	totalPublishFailures int64
	lastRunTime          time.Time
	lastExpiredCount     int
	lastError            string
}

// NewExpiryWorker creates a new expiry worker. locker may be nil.
func NewExpiryWorker(sweeper Sweeper, locker Locker, config *ExpiryWorkerConfig) (*ExpiryWorker, error) {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = 60 * time.Second
	}

	w := &ExpiryWorker{
		sweeper: sweeper,
		locker:  locker,
		config:  config,
		log:     logger.Get().With(zap.String("worker", "expiry")),
	}

	cl := cronLogger{log: w.log}
	w.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
	)
	w.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(w.sweep))

	if _, err := w.cron.AddJob(config.Schedule, w.job); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", config.Schedule, err)
	}
	return w, nil
}

// Start starts the schedule and runs one sweep immediately
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker", zap.String("schedule", w.config.Schedule))

	// Run immediately on start
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.job.Run()
	}()

	w.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	<-w.cron.Stop().Done()
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

// RunOnce runs a single sweep synchronously
func (w *ExpiryWorker) RunOnce() {
	w.job.Run()
}

func (w *ExpiryWorker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.SweepTimeout)
	defer cancel()

	if w.locker != nil {
		release, ok, err := w.locker.Acquire(ctx)
		if err != nil {
			w.recordRun(nil, fmt.Errorf("acquire sweep lock: %w", err))
			return
		}
		if !ok {
			w.mu.Lock()
			w.skippedRuns++
			w.mu.Unlock()
			w.log.Debug("Expiry sweep skipped, another replica holds the lock")
			return
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				w.log.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	result, err := w.sweeper.ExpireStaleBookings(ctx)
	w.recordRun(result, err)
}

func (w *ExpiryWorker) recordRun(result *service.ExpiryResult, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.totalRuns++
	w.lastRunTime = time.Now()
	if err != nil {
		w.lastError = err.Error()
		w.log.Error("Expiry sweep failed", zap.Error(err))
		return
	}

	w.lastError = ""
	w.lastExpiredCount = result.Expired
	w.totalExpired += int64(result.Expired)
	w.totalPublishFailures += int64(result.PublishFailures)
	if result.Expired > 0 {
		w.log.Info("Expired stale bookings",
			zap.Int("expired", result.Expired),
			zap.Int("publish_failures", result.PublishFailures),
		)
	}
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:            w.running,
		Schedule:             w.config.Schedule,
		TotalRuns:            w.totalRuns,
		SkippedRuns:          w.skippedRuns,
		TotalExpired:         w.totalExpired,
		TotalPublishFailures: w.totalPublishFailures,
		LastRunTime:          w.lastRunTime,
		LastExpiredCount:     w.lastExpiredCount,
		LastError:            w.lastError,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning            bool      `json:"is_running"`
	Schedule             string    `json:"schedule"`
	TotalRuns            int64     `json:"total_runs"`
	SkippedRuns          int64     `json:"skipped_runs"`
	TotalExpired         int64     `json:"total_expired"`
	TotalPublishFailures int64     `json:"total_publish_failures"`
	LastRunTime          time.Time `json:"last_run_time"`
	LastExpiredCount     int       `json:"last_expired_count"`
	LastError            string    `json:"last_error,omitempty"`
}

// RedisLocker takes the sweep lock in Redis
type RedisLocker struct {
	client *pkgredis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on key with the given lease
func NewRedisLocker(client *pkgredis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	lock, err := l.client.TryLock(ctx, l.key, l.ttl)
	if err != nil {
		return nil, false, err
	}
	if lock == nil {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, pkgredis.ErrLockNotHeld) {
			return err
		}
		return nil
	}, true, nil
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}
