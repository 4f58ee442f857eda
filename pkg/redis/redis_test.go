package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestConfig() *Config {
	cfg := DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	if password := os.Getenv("TEST_REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
	cfg.MaxRetries = 0
	return cfg
}

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run.")
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", cfg.Addr())
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &Config{
		Host:          "invalid-host-that-does-not-exist",
		Port:          9999,
		RetryInterval: 10 * time.Millisecond,
		DialTimeout:   200 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, cfg)
	assert.Error(t, err)
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	skipIfNoIntegration(t)

	ctx := context.Background()
	client, err := NewClient(ctx, getTestConfig())
	require.NoError(t, err)
	defer client.Close()

	key := "test:lock:" + time.Now().Format("150405.000000")

	first, err := client.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := client.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, first.Release(ctx))
	assert.ErrorIs(t, first.Release(ctx), ErrLockNotHeld)

	third, err := client.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, third)
	require.NoError(t, third.Release(ctx))
}
