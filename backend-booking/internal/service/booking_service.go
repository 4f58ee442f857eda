package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/client"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/metrics"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/repository"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/logger"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// CancelOptions describe who cancels and why. TenantID is zero for
// system-initiated cancellations. When RequireStatus is set the booking is
// only cancelled from that status.
type CancelOptions struct {
	TenantID      int64
	Reason        string
	RequireStatus domain.BookingStatus
}

// ExpiryResult summarises one expiry sweep
type ExpiryResult struct {
	Expired         int
	PublishFailures int
}

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking validates, prices and stores a booking in AWAITING_PAYMENT
	CreateBooking(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error)

	// ConfirmBooking moves an AWAITING_PAYMENT booking to CONFIRMED
	ConfirmBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)

	// CancelBooking cancels an AWAITING_PAYMENT or CONFIRMED booking
	CancelBooking(ctx context.Context, bookingID int64, opts CancelOptions) (*domain.Booking, error)

	// GetBooking retrieves a booking owned by tenantID
	GetBooking(ctx context.Context, bookingID, tenantID int64) (*domain.Booking, error)

	// ListTenantBookings retrieves a page of the tenant's bookings, newest first
	ListTenantBookings(ctx context.Context, tenantID int64, page, pageSize int) ([]*domain.Booking, error)

	// ExpireStaleBookings expires bookings whose payment window has passed
	ExpireStaleBookings(ctx context.Context) (*ExpiryResult, error)
}

// bookingService implements BookingService
type bookingService struct {
	bookingRepo     repository.BookingRepository
	identity        client.IdentityClient
	listings        client.ListingClient
	eventPublisher  EventPublisher
	paymentTimeout  time.Duration
	defaultCurrency string
	now             func() time.Time
	log             *logger.Logger
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	PaymentTimeout  time.Duration
	DefaultCurrency string
	Now             func() time.Time
	Logger          *logger.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookingRepo repository.BookingRepository,
	identity client.IdentityClient,
	listings client.ListingClient,
	eventPublisher EventPublisher,
	cfg *BookingServiceConfig,
) BookingService {
	s := &bookingService{
		bookingRepo:     bookingRepo,
		identity:        identity,
		listings:        listings,
		eventPublisher:  eventPublisher,
		paymentTimeout:  15 * time.Minute,
		defaultCurrency: "ETH",
		now:             time.Now,
		log:             logger.Nop(),
	}
	if cfg != nil {
		if cfg.PaymentTimeout > 0 {
			s.paymentTimeout = cfg.PaymentTimeout
		}
		if cfg.DefaultCurrency != "" {
			s.defaultCurrency = cfg.DefaultCurrency
		}
		if cfg.Now != nil {
			s.now = cfg.Now
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	// Use NoOpEventPublisher if none provided
	if s.eventPublisher == nil {
		s.eventPublisher = NewNoOpEventPublisher()
	}
	return s
}

// CreateBooking runs the checks in order and fails on the first one
func (s *bookingService) CreateBooking(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()
	span.SetAttributes(attribute.Int64("tenant_id", tenantID))
	if req != nil {
		span.SetAttributes(attribute.Int64("property_id", req.PropertyID))
	}

	booking, err := s.createBooking(ctx, tenantID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordBookingRejected(ctx, string(domain.KindOf(err)))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	metrics.RecordBookingCreated(ctx, booking.PropertyID)

	if err := s.eventPublisher.PublishBookingCreated(ctx, booking); err != nil {
		s.logPublishFailure(ctx, domain.TopicBookingCreated, booking.ID, err)
	}
	return booking, nil
}

func (s *bookingService) createBooking(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenantID
	}
	if req == nil || req.PropertyID <= 0 {
		return nil, domain.ErrInvalidProperty
	}

	// 1. Dates
	start, end, err := s.validateDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	// 2. Wallet ownership
	if !walletPattern.MatchString(req.WalletAddress) {
		return nil, domain.ErrInvalidWallet
	}
	wallet, err := s.identity.GetWallet(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !wallet.Exists || wallet.WalletAddress == "" {
		return nil, domain.ErrWalletNotRegistered
	}
	if !strings.EqualFold(wallet.WalletAddress, req.WalletAddress) {
		return nil, domain.ErrWalletMismatch
	}

	// 3. Availability
	overlap, err := s.bookingRepo.HasOverlap(ctx, req.PropertyID, start, end)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, domain.ErrPropertyUnavailable
	}

	// 4. Pricing snapshot
	pricing, err := s.listings.GetPricing(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}
	if !pricing.PricePerNight.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	currency := pricing.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	// 5. Total
	nights := domain.NightsBetween(start, end)
	now := s.now().UTC()
	booking := &domain.Booking{
		PropertyID:    req.PropertyID,
		TenantID:      tenantID,
		StartDate:     start,
		EndDate:       end,
		Status:        domain.BookingStatusAwaitingPayment,
		WalletAddress: strings.ToLower(req.WalletAddress),
		PricePerNight: pricing.PricePerNight,
		TotalPrice:    pricing.PricePerNight.Mul(decimal.NewFromInt(int64(nights))),
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 6. Persist with the atomic overlap re-check
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("property_id", booking.PropertyID),
		zap.Int64("tenant_id", tenantID),
		zap.Int("nights", nights),
		zap.String("total_price", booking.TotalPrice.String()),
	)
	return booking, nil
}

func (s *bookingService) validateDates(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := domain.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidDate
	}
	end, err := domain.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, domain.ErrInvalidDate
	}

	today := domain.TruncateDate(s.now())
	if start.Before(today) {
		return time.Time{}, time.Time{}, domain.ErrStartDateInPast
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, domain.ErrInvalidDateRange
	}
	if domain.NightsBetween(start, end) < 1 {
		return time.Time{}, time.Time{}, domain.ErrMinimumStay
	}
	return start, end, nil
}

// ConfirmBooking is reachable only from the payment confirmation path
func (s *bookingService) ConfirmBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()
	span.SetAttributes(attribute.Int64("booking_id", bookingID))

	if bookingID <= 0 {
		return nil, domain.ErrInvalidBookingID
	}

	now := s.now().UTC()
	booking, err := s.bookingRepo.Transition(ctx, bookingID, func(b *domain.Booking) error {
		return b.TransitionTo(domain.BookingStatusConfirmed, "confirm", now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return booking, err
	}

	metrics.RecordBookingConfirmed(ctx, now.Sub(booking.CreatedAt).Seconds())
	s.log.InfoContext(ctx, "booking confirmed", zap.Int64("booking_id", bookingID))

	if err := s.eventPublisher.PublishBookingConfirmed(ctx, booking); err != nil {
		s.logPublishFailure(ctx, domain.TopicBookingConfirmed, booking.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// CancelBooking checks ownership when a tenant cancels
func (s *bookingService) CancelBooking(ctx context.Context, bookingID int64, opts CancelOptions) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("booking_id", bookingID),
		attribute.Bool("tenant_initiated", opts.TenantID != 0),
	)

	if bookingID <= 0 {
		return nil, domain.ErrInvalidBookingID
	}

	now := s.now().UTC()
	booking, err := s.bookingRepo.Transition(ctx, bookingID, func(b *domain.Booking) error {
		if opts.TenantID != 0 && b.TenantID != opts.TenantID {
			return domain.ErrNotBookingOwner
		}
		if opts.RequireStatus != "" && b.Status != opts.RequireStatus {
			return &domain.TransitionError{Action: "cancel", From: b.Status, To: domain.BookingStatusCancelled}
		}
		return b.TransitionTo(domain.BookingStatusCancelled, "cancel", now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrNotBookingOwner) {
			return nil, err
		}
		return booking, err
	}

	reason := opts.Reason
	if reason == "" {
		reason = "cancelled by tenant"
	}
	metrics.RecordBookingCancelled(ctx, reason)
	s.log.InfoContext(ctx, "booking cancelled", zap.Int64("booking_id", bookingID), zap.String("reason", reason))

	if err := s.eventPublisher.PublishBookingCancelled(ctx, booking, reason); err != nil {
		s.logPublishFailure(ctx, domain.TopicBookingCancelled, booking.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetBooking hides other tenants' bookings behind ErrBookingNotFound
func (s *bookingService) GetBooking(ctx context.Context, bookingID, tenantID int64) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	if bookingID <= 0 {
		return nil, domain.ErrInvalidBookingID
	}
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if tenantID != 0 && booking.TenantID != tenantID {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}

// ListTenantBookings retrieves a page of the tenant's bookings
func (s *bookingService) ListTenantBookings(ctx context.Context, tenantID int64, page, pageSize int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenantID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.bookingRepo.ListByTenant(ctx, tenantID, pageSize, (page-1)*pageSize)
}

// ExpireStaleBookings expires every booking created more than the payment
// timeout ago. Publish failures are counted and never abort the batch.
func (s *bookingService) ExpireStaleBookings(ctx context.Context) (*ExpiryResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.expire_stale")
	defer span.End()

	started := time.Now()
	now := s.now().UTC()
	cutoff := now.Add(-s.paymentTimeout)

	expired, err := s.bookingRepo.ExpireStale(ctx, cutoff, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &ExpiryResult{Expired: len(expired)}
	for _, b := range expired {
		s.log.InfoContext(ctx, "booking expired",
			zap.Int64("booking_id", b.ID),
			zap.Int64("property_id", b.PropertyID),
			zap.Time("created_at", b.CreatedAt),
		)
		if err := s.eventPublisher.PublishBookingExpired(ctx, b); err != nil {
			result.PublishFailures++
			s.logPublishFailure(ctx, domain.TopicBookingExpired, b.ID, err)
		}
	}

	metrics.RecordExpirySweep(ctx, result.Expired, time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Int("expired_count", result.Expired),
		attribute.Int("publish_failures", result.PublishFailures),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *bookingService) logPublishFailure(ctx context.Context, topic string, bookingID int64, err error) {
	metrics.RecordPublishFailure(ctx, topic)
	s.log.ErrorContext(ctx, "failed to publish event",
		zap.String("topic", topic),
		zap.Int64("booking_id", bookingID),
		zap.Error(err),
	)
}
