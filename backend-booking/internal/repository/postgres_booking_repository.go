package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/database"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed schema.sql
var schema string

const bookingColumns = `
	id, property_id, tenant_id, start_date, end_date, status, wallet_address,
	price_per_night::text, total_price::text, currency, created_at, updated_at`

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// EnsureSchema creates the bookings table and its constraints if missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply booking schema: %w", err)
	}
	return nil
}

// Create inserts a booking under a per-property advisory lock. The exclusion
// constraint backs the lock up for writers that bypass this method.
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("property_id", booking.PropertyID),
		attribute.Int64("tenant_id", booking.TenantID),
	)

	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, booking.PropertyID); err != nil {
			return fmt.Errorf("failed to lock property: %w", err)
		}

		overlap, err := hasOverlap(ctx, tx, booking.PropertyID, booking.StartDate, booking.EndDate)
		if err != nil {
			return err
		}
		if overlap {
			return domain.ErrPropertyUnavailable
		}

		query := `
			INSERT INTO bookings (
				property_id, tenant_id, start_date, end_date, status, wallet_address,
				price_per_night, total_price, currency, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7::text::numeric, $8::text::numeric, $9, $10, $11
			)
			RETURNING id
		`
		return tx.QueryRow(ctx, query,
			booking.PropertyID,
			booking.TenantID,
			booking.StartDate,
			booking.EndDate,
			string(booking.Status),
			booking.WalletAddress,
			booking.PricePerNight.String(),
			booking.TotalPrice.String(),
			booking.Currency,
			booking.CreatedAt,
			booking.UpdatedAt,
		).Scan(&booking.ID)
	})

	if err != nil {
		if database.IsExclusionViolation(err) {
			err = domain.ErrPropertyUnavailable
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrPropertyUnavailable) {
			return err
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetAttributes(attribute.Int64("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_id", id))

	booking, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ListByTenant returns the tenant's bookings, newest first
func (r *PostgresBookingRepository) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_tenant")
	defer span.End()
	span.SetAttributes(attribute.Int64("tenant_id", tenantID))

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return collectBookings(rows)
}

// HasOverlap reports whether an active booking intersects [start, end)
func (r *PostgresBookingRepository) HasOverlap(ctx context.Context, propertyID int64, start, end time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.has_overlap")
	defer span.End()
	span.SetAttributes(attribute.Int64("property_id", propertyID))

	return hasOverlap(ctx, r.pool, propertyID, start, end)
}

func hasOverlap(ctx context.Context, q database.Querier, propertyID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE property_id = $1
			  AND status IN ('AWAITING_PAYMENT', 'CONFIRMED')
			  AND start_date < $3
			  AND end_date > $2
		)
	`, propertyID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check availability: %w", err)
	}
	return exists, nil
}

// Transition runs a row-locked read-modify-write of the booking status
func (r *PostgresBookingRepository) Transition(ctx context.Context, id int64, fn func(b *domain.Booking) error) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_id", id))

	var booking *domain.Booking
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		booking, err = scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrBookingNotFound
			}
			return fmt.Errorf("failed to lock booking: %w", err)
		}

		from := booking.Status
		if err := fn(booking); err != nil {
			return err
		}
		if booking.Status == from {
			return nil
		}

		_, err = tx.Exec(ctx, `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(booking.Status), booking.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return booking, err
	}

	span.SetAttributes(attribute.String("status", string(booking.Status)))
	return booking, nil
}

// ExpireStale expires unpaid bookings in a single guarded UPDATE
func (r *PostgresBookingRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.expire_stale")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		UPDATE bookings
		SET status = 'EXPIRED', updated_at = $2
		WHERE status = 'AWAITING_PAYMENT' AND created_at < $1
		RETURNING `+bookingColumns,
		cutoff, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to expire bookings: %w", err)
	}

	expired, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("expired_count", len(expired)))
	return expired, nil
}

func collectBookings(rows pgx.Rows) ([]*domain.Booking, error) {
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b             domain.Booking
		status        string
		pricePerNight string
		totalPrice    string
	)
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.TenantID, &b.StartDate, &b.EndDate, &status, &b.WalletAddress,
		&pricePerNight, &totalPrice, &b.Currency, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	if b.PricePerNight, err = decimal.NewFromString(pricePerNight); err != nil {
		return nil, fmt.Errorf("invalid price_per_night %q: %w", pricePerNight, err)
	}
	if b.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return nil, fmt.Errorf("invalid total_price %q: %w", totalPrice, err)
	}
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	return &b, nil
}
