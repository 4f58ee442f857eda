package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run.")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getPostgresPool creates a PostgreSQL connection pool for testing
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envOr("TEST_POSTGRES_USER", "postgres"),
		envOr("TEST_POSTGRES_PASSWORD", "postgres"),
		envOr("TEST_POSTGRES_HOST", "localhost"),
		envOr("TEST_POSTGRES_PORT", "5432"),
		envOr("TEST_POSTGRES_DB", "payment_test"),
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, EnsureSchema(ctx, pool))

	_, err = pool.Exec(ctx, "TRUNCATE payments RESTART IDENTITY")
	require.NoError(t, err)

	return pool
}

func TestPostgresPaymentRepository_InsertConfirmAndRead(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := newTestPayment(t, 7, 1, now)
	err := repo.WithinTx(ctx, func(tx PaymentStore) error {
		if err := tx.Insert(ctx, p); err != nil {
			return err
		}
		require.NoError(t, p.Confirm(decimal.RequireFromString("99.990000000000000001"), "0x00000000000000000000000000000000000000aa", 123, now))
		return tx.Update(ctx, p)
	})
	require.NoError(t, err)

	got, err := repo.GetByTransactionHash(ctx, p.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, domain.PaymentStatusConfirmed, got.Status)
	assert.True(t, decimal.RequireFromString("99.990000000000000001").Equal(got.Amount))
	assert.Equal(t, uint64(123), got.BlockNumber)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", got.PayerAddress)
	require.NotNil(t, got.ValidatedAt)

	_, err = repo.GetByID(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPostgresPaymentRepository_RollbackOnError(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()
	boom := errors.New("node down")

	p := newTestPayment(t, 7, 2, time.Now().UTC())
	err := repo.WithinTx(ctx, func(tx PaymentStore) error {
		require.NoError(t, tx.Insert(ctx, p))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetByTransactionHash(ctx, p.TransactionHash)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestPostgresPaymentRepository_ConcurrentInsertOneWinner(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		wins, dups int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithinTx(ctx, func(tx PaymentStore) error {
				return tx.Insert(ctx, newTestPayment(t, 7, 3, time.Now().UTC()))
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, domain.ErrPaymentAlreadyExists) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, dups)
}

func TestPostgresPaymentRepository_ListByBookingNewestFirst(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresPaymentRepository(pool)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, offset := range []time.Duration{0, 2 * time.Second, time.Second} {
		p := newTestPayment(t, 11, 10+i, base.Add(offset))
		require.NoError(t, repo.WithinTx(ctx, func(tx PaymentStore) error { return tx.Insert(ctx, p) }))
	}

	payments, err := repo.ListByBooking(ctx, 11)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.True(t, payments[0].CreatedAt.After(payments[1].CreatedAt))
	assert.True(t, payments[1].CreatedAt.After(payments[2].CreatedAt))
}
