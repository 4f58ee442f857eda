package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/database"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schema string

const paymentColumns = `
	id, transaction_hash, contract_address, booking_id, amount::text, currency,
	payer_address, status, block_number, validated_at, error_code, error_message,
	created_at, updated_at`

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL with pgxpool
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository
func NewPostgresPaymentRepository(pool *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool}
}

// EnsureSchema creates the payments table and its indexes if missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply payment schema: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment_id", id))

	payment, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, lookupError(span, err, "failed to get payment")
	}
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

// GetByTransactionHash retrieves the payment recorded for a transaction
func (r *PostgresPaymentRepository) GetByTransactionHash(ctx context.Context, txHash string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_tx_hash")
	defer span.End()
	span.SetAttributes(attribute.String("tx_hash", txHash))

	payment, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_hash = $1`, txHash))
	if err != nil {
		return nil, lookupError(span, err, "failed to get payment by transaction hash")
	}
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

// ListByBooking returns every payment attempt for a booking, newest first
func (r *PostgresPaymentRepository) ListByBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.list_by_booking")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_id", bookingID))

	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY created_at DESC, id DESC`,
		bookingID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := []*domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(payments)))
	span.SetStatus(codes.Ok, "")
	return payments, nil
}

// WithinTx runs fn inside one pgx transaction. The unique index on
// transaction_hash makes a concurrent insert of the same hash wait for this
// transaction and then fail with ErrPaymentAlreadyExists.
func (r *PostgresPaymentRepository) WithinTx(ctx context.Context, fn func(tx PaymentStore) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&postgresPaymentStore{q: tx})
	})
}

func lookupError(span trace.Span, err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrPaymentNotFound
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%s: %w", msg, err)
}

// postgresPaymentStore writes through a querier bound to one transaction
type postgresPaymentStore struct {
	q database.Querier
}

func (s *postgresPaymentStore) Insert(ctx context.Context, p *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("tx_hash", p.TransactionHash),
		attribute.Int64("booking_id", p.BookingID),
	)

	query := `
		INSERT INTO payments (
			transaction_hash, contract_address, booking_id, amount, currency,
			payer_address, status, block_number, validated_at, error_code, error_message,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13
		)
		RETURNING id
	`
	err := s.q.QueryRow(ctx, query,
		p.TransactionHash,
		p.ContractAddress,
		p.BookingID,
		p.Amount.String(),
		p.Currency,
		nullString(p.PayerAddress),
		string(p.Status),
		nullBlock(p.BlockNumber),
		p.ValidatedAt,
		p.ErrorCode,
		p.ErrorMessage,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			span.SetAttributes(attribute.Bool("duplicate", true))
			return domain.ErrPaymentAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	span.SetAttributes(attribute.Int64("payment_id", p.ID))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *postgresPaymentStore) Update(ctx context.Context, p *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.update")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payment_id", p.ID),
		attribute.String("status", string(p.Status)),
	)

	query := `
		UPDATE payments SET
			amount = $2::text::numeric,
			payer_address = $3,
			status = $4,
			block_number = $5,
			validated_at = $6,
			error_code = $7,
			error_message = $8,
			updated_at = $9
		WHERE id = $1
	`
	tag, err := s.q.Exec(ctx, query,
		p.ID,
		p.Amount.String(),
		nullString(p.PayerAddress),
		string(p.Status),
		nullBlock(p.BlockNumber),
		p.ValidatedAt,
		p.ErrorCode,
		p.ErrorMessage,
		p.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// scanPayment scans a payment row selected with paymentColumns
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p           domain.Payment
		amount      string
		payer       *string
		status      string
		blockNumber *int64
	)
	err := row.Scan(
		&p.ID,
		&p.TransactionHash,
		&p.ContractAddress,
		&p.BookingID,
		&amount,
		&p.Currency,
		&payer,
		&status,
		&blockNumber,
		&p.ValidatedAt,
		&p.ErrorCode,
		&p.ErrorMessage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if payer != nil {
		p.PayerAddress = *payer
	}
	if blockNumber != nil {
		p.BlockNumber = uint64(*blockNumber)
	}
	p.Status = domain.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullBlock(n uint64) *int64 {
	if n == 0 {
		return nil
	}
	v := int64(n)
	return &v
}
