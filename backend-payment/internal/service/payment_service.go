package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/chain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/metrics"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/repository"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultAmountTolerance is the accepted shortfall of a funded amount
var DefaultAmountTolerance = decimal.RequireFromString("0.0001")

// Validation outcomes used in metrics and logs
const (
	outcomeConfirmed = "confirmed"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeRetryable = "retryable"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

// PaymentService defines the interface for payment business logic
type PaymentService interface {
	// ValidatePayment verifies an escrow funding transaction. A permanent
	// validation failure returns the FAILED payment together with a
	// *domain.ValidationError. Retryable failures return no payment and
	// leave nothing behind.
	ValidatePayment(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error)

	// GetPayment retrieves a payment by ID
	GetPayment(ctx context.Context, paymentID int64) (*domain.Payment, error)

	// GetPaymentsForBooking retrieves every attempt for a booking, newest first
	GetPaymentsForBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error)
}

// PaymentServiceConfig contains configuration for the payment service
type PaymentServiceConfig struct {
	Currency string
	// Decimals of the on-chain amount, 18 for ETH
	Decimals int32
	// AmountTolerance defaults to DefaultAmountTolerance when nil
	AmountTolerance *decimal.Decimal
	Now             func() time.Time
	Logger          *logger.Logger
}

// paymentService implements PaymentService
type paymentService struct {
	repo           repository.PaymentRepository
	chain          chain.Reader
	eventPublisher EventPublisher
	currency       string
	decimals       int32
	tolerance      decimal.Decimal
	now            func() time.Time
	log            *logger.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	repo repository.PaymentRepository,
	reader chain.Reader,
	eventPublisher EventPublisher,
	cfg *PaymentServiceConfig,
) PaymentService {
	s := &paymentService{
		repo:           repo,
		chain:          reader,
		eventPublisher: eventPublisher,
		currency:       domain.DefaultCurrency,
		decimals:       18,
		tolerance:      DefaultAmountTolerance,
		now:            time.Now,
		log:            logger.Nop(),
	}
	if cfg != nil {
		if cfg.Currency != "" {
			s.currency = cfg.Currency
		}
		if cfg.Decimals > 0 {
			s.decimals = cfg.Decimals
		}
		if cfg.AmountTolerance != nil {
			s.tolerance = *cfg.AmountTolerance
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	if s.eventPublisher == nil {
		s.eventPublisher = NoOpEventPublisher{}
	}
	return s
}

// ValidatePayment runs the checks in order and stops at the first failure
func (s *paymentService) ValidatePayment(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.validate")
	defer span.End()
	if req != nil {
		span.SetAttributes(
			attribute.Int64("booking_id", req.BookingID),
			attribute.String("tx_hash", domain.NormalizeHex(req.TransactionHash)),
		)
	}

	start := time.Now()
	metrics.RecordValidationStarted(ctx)
	payment, outcome, err := s.validate(ctx, req)
	metrics.RecordValidationFinished(ctx, outcome, time.Since(start).Seconds())

	span.SetAttributes(attribute.String("outcome", outcome))
	if payment != nil {
		span.SetAttributes(
			attribute.Int64("payment_id", payment.ID),
			attribute.String("status", string(payment.Status)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return payment, err
	}
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

// verification is what a successful chain check learned
type verification struct {
	amount      decimal.Decimal
	payer       string
	blockNumber uint64
}

func (s *paymentService) validate(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, string, error) {
	if req == nil {
		return nil, outcomeRejected, domain.ErrInvalidBookingID
	}
	payment, err := domain.NewPayment(req.BookingID, req.TransactionHash, req.ContractAddress, req.ExpectedAmount, s.currency, s.now())
	if err != nil {
		return nil, outcomeRejected, err
	}

	existing, err := s.repo.GetByTransactionHash(ctx, payment.TransactionHash)
	if err == nil {
		metrics.RecordDuplicate(ctx)
		return existing, outcomeDuplicate, nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, outcomeError, err
	}

	var rejection *domain.ValidationError
	err = s.repo.WithinTx(ctx, func(tx repository.PaymentStore) error {
		if err := tx.Insert(ctx, payment); err != nil {
			return err
		}

		result, verr := s.verify(ctx, payment, req.ExpectedAmount)
		switch {
		case verr != nil && verr.Retryable:
			return verr
		case verr != nil:
			rejection = verr
			if err := payment.Fail(verr.Code, verr.Message, s.now()); err != nil {
				return err
			}
		default:
			if err := payment.Confirm(result.amount, result.payer, result.blockNumber, s.now()); err != nil {
				return err
			}
		}
		return tx.Update(ctx, payment)
	})

	if errors.Is(err, domain.ErrPaymentAlreadyExists) {
		// A concurrent submission of the same hash committed first
		existing, getErr := s.repo.GetByTransactionHash(ctx, payment.TransactionHash)
		if getErr != nil {
			return nil, outcomeError, fmt.Errorf("failed to load concurrent payment: %w", getErr)
		}
		metrics.RecordDuplicate(ctx)
		return existing, outcomeDuplicate, nil
	}
	if err != nil {
		if ve, ok := domain.AsValidationError(err); ok && ve.Retryable {
			metrics.RecordRetryable(ctx, string(ve.Code))
			s.log.WarnContext(ctx, "payment validation deferred",
				zap.String("tx_hash", payment.TransactionHash),
				zap.Int64("booking_id", payment.BookingID),
				zap.String("code", string(ve.Code)),
				zap.Error(err),
			)
			return nil, outcomeRetryable, err
		}
		return nil, outcomeError, fmt.Errorf("failed to record payment: %w", err)
	}

	if rejection != nil {
		metrics.RecordPaymentFailed(ctx, string(rejection.Code))
		s.log.WarnContext(ctx, "payment validation failed",
			zap.Int64("payment_id", payment.ID),
			zap.Int64("booking_id", payment.BookingID),
			zap.String("tx_hash", payment.TransactionHash),
			zap.String("code", string(rejection.Code)),
			zap.String("reason", rejection.Message),
		)
		if err := s.eventPublisher.PublishPaymentFailed(ctx, payment); err != nil {
			s.logPublishFailure(ctx, domain.TopicPaymentFailed, payment, err)
		}
		return payment, outcomeFailed, rejection
	}

	amount, _ := payment.Amount.Float64()
	metrics.RecordPaymentConfirmed(ctx, payment.Currency, amount)
	s.log.InfoContext(ctx, "payment confirmed",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("booking_id", payment.BookingID),
		zap.String("tx_hash", payment.TransactionHash),
		zap.String("amount", payment.Amount.String()),
		zap.Uint64("block_number", payment.BlockNumber),
	)
	if err := s.eventPublisher.PublishPaymentConfirmed(ctx, payment); err != nil {
		s.logPublishFailure(ctx, domain.TopicPaymentConfirmed, payment, err)
	}
	return payment, outcomeConfirmed, nil
}

// verify checks the receipt, the Funded log, the amount and the contract
// state, in that order
func (s *paymentService) verify(ctx context.Context, p *domain.Payment, expected decimal.Decimal) (*verification, *domain.ValidationError) {
	receipt, err := s.receipt(ctx, p.TransactionHash)
	if errors.Is(err, chain.ErrRejected) {
		return nil, domain.NewTransactionRejected(p.TransactionHash, err)
	}
	if err != nil {
		return nil, domain.NewChainUnavailable(err)
	}
	if receipt == nil {
		return nil, domain.NewTransactionNotFound(p.TransactionHash)
	}
	if !receipt.Succeeded() {
		return nil, domain.NewTransactionFailed(p.TransactionHash)
	}
	if !strings.EqualFold(receipt.To, p.ContractAddress) {
		return nil, domain.NewInvalidContract(p.ContractAddress, strings.ToLower(receipt.To))
	}

	funded, found, err := chain.FindFunded(receipt, p.ContractAddress)
	if !found {
		return nil, domain.NewEventNotFound(p.ContractAddress)
	}
	if err != nil {
		ve := domain.NewEventNotFound(p.ContractAddress)
		ve.Message = "malformed Funded event: " + err.Error()
		ve.Err = err
		return nil, ve
	}

	amount := chain.ScaleAmount(funded.Amount, s.decimals)
	floor := expected.Mul(decimal.NewFromInt(1).Sub(s.tolerance))
	if amount.LessThan(floor) {
		return nil, domain.NewAmountMismatch(expected.String(), amount.String(), floor.String())
	}

	state, err := s.contractState(ctx, p.ContractAddress)
	if errors.Is(err, chain.ErrRejected) {
		return nil, domain.NewStateCallRejected(p.ContractAddress, err)
	}
	if err != nil {
		return nil, domain.NewChainUnavailable(err)
	}
	if state != domain.ContractStateFunded {
		return nil, domain.NewInvalidContractState(domain.ContractStateFunded, state)
	}

	return &verification{amount: amount, payer: funded.Payer, blockNumber: receipt.BlockNumber}, nil
}

func (s *paymentService) receipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	start := time.Now()
	receipt, err := s.chain.TransactionReceipt(ctx, txHash)
	metrics.RecordChainCall(ctx, "eth_getTransactionReceipt", time.Since(start).Seconds(), err == nil)
	return receipt, err
}

func (s *paymentService) contractState(ctx context.Context, contract string) (domain.ContractState, error) {
	start := time.Now()
	state, err := s.chain.ContractState(ctx, contract)
	metrics.RecordChainCall(ctx, "eth_call", time.Since(start).Seconds(), err == nil)
	return state, err
}

// GetPayment retrieves a payment by ID
func (s *paymentService) GetPayment(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.get")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment_id", paymentID))

	if paymentID <= 0 {
		return nil, domain.ErrInvalidPaymentID
	}
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		if !domain.IsNotFoundError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

// GetPaymentsForBooking retrieves every attempt for a booking, newest first
func (s *paymentService) GetPaymentsForBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.payment.list_for_booking")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_id", bookingID))

	if bookingID <= 0 {
		return nil, domain.ErrInvalidBookingID
	}
	payments, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(payments)))
	span.SetStatus(codes.Ok, "")
	return payments, nil
}

func (s *paymentService) logPublishFailure(ctx context.Context, topic string, p *domain.Payment, err error) {
	metrics.RecordPublishFailure(ctx, topic)
	s.log.ErrorContext(ctx, "failed to publish event",
		zap.String("topic", topic),
		zap.Int64("payment_id", p.ID),
		zap.Int64("booking_id", p.BookingID),
		zap.Error(err),
	)
}
