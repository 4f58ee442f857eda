package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterFactor of 0.1 means ±10% around the computed interval
	JitterFactor float64
}

// DefaultConfig returns exponential backoff of 1s, 2s, 4s ... capped at 30s
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError marks an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as permanent
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked permanent anywhere in its chain
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Result describes how a retried operation finished
type Result struct {
	Err           error
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values with defaults
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	cfg.JitterFactor = math.Max(0, math.Min(1, cfg.JitterFactor))
	return &Retrier{config: &cfg}
}

// Do executes op until it succeeds, returns a permanent error, or runs out
// of attempts.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}

	finish := func(err, last error) *Result {
		result.Err = err
		result.LastError = last
		result.TotalDuration = time.Since(start)
		return result
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			return finish(ErrContextCanceled, lastErr)
		}

		err := op(ctx)
		if err == nil {
			return finish(nil, nil)
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return finish(perm.Err, perm.Err)
		}

		if attempt == r.config.MaxRetries {
			break
		}

		interval := r.interval(attempt)
		select {
		case <-ctx.Done():
			return finish(ErrContextCanceled, lastErr)
		case <-time.After(interval):
		}
	}

	return finish(fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr), lastErr)
}

func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}
	return time.Duration(interval)
}
