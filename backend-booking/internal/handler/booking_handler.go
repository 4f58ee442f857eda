package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/middleware"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tenantID, ok := tenantFromHeader(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	span.SetAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int64("property_id", req.PropertyID),
		attribute.String("start_date", req.StartDate),
		attribute.String("end_date", req.EndDate),
	)

	booking, err := h.bookingService.CreateBooking(ctx, tenantID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int64("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusCreated, dto.FromDomain(booking))
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tenantID, ok := tenantFromHeader(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	bookingID, ok := bookingIDParam(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid booking id")
		return
	}
	span.SetAttributes(attribute.Int64("booking_id", bookingID))

	booking, err := h.bookingService.GetBooking(ctx, bookingID, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.FromDomain(booking))
}

// ListBookings handles GET /api/v1/bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tenantID, ok := tenantFromHeader(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	span.SetAttributes(
		attribute.Int64("tenant_id", tenantID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	bookings, err := h.bookingService.ListTenantBookings(ctx, tenantID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.PaginatedResponse{
		Data:     dto.FromDomainList(bookings),
		Page:     page,
		PageSize: pageSize,
	})
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tenantID, ok := tenantFromHeader(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	bookingID, ok := bookingIDParam(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid booking id")
		return
	}

	// Reason is optional, so an empty body is fine
	var req dto.CancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	span.SetAttributes(
		attribute.Int64("booking_id", bookingID),
		attribute.Int64("tenant_id", tenantID),
	)

	booking, err := h.bookingService.CancelBooking(ctx, bookingID, service.CancelOptions{
		TenantID: tenantID,
		Reason:   req.Reason,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.FromDomain(booking))
}

// ConfirmBooking handles POST /internal/v1/bookings/:id/confirm.
// Only other services holding a service token reach this route.
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.confirm")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID, ok := bookingIDParam(c)
	if !ok {
		span.SetStatus(codes.Error, "invalid booking id")
		return
	}

	span.SetAttributes(
		attribute.Int64("booking_id", bookingID),
		attribute.String("caller", c.GetString(middleware.ContextKeyService)),
	)

	booking, err := h.bookingService.ConfirmBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.FromDomain(booking))
}

// tenantFromHeader reads the tenant id set by the gateway
func tenantFromHeader(c *gin.Context) (int64, bool) {
	tenantID, err := strconv.ParseInt(c.GetHeader(middleware.UserIDHeader), 10, 64)
	if err != nil || tenantID <= 0 {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "unauthorized",
			Code:    "UNAUTHORIZED",
			Message: "missing or invalid " + middleware.UserIDHeader + " header",
		})
		return 0, false
	}
	return tenantID, true
}

func bookingIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: domain.ErrInvalidBookingID.Error(),
			Code:  "INVALID_BOOKING_ID",
		})
		return 0, false
	}
	return id, true
}

// handleError converts domain errors to HTTP responses
func (h *BookingHandler) handleError(c *gin.Context, err error) {
	var te *domain.TransitionError
	if errors.As(err, &te) {
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "INVALID_STATUS_TRANSITION",
			Message: "booking is " + string(te.From),
		})
		return
	}

	switch domain.KindOf(err) {
	case domain.KindClientInput:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  errorCode(err, "VALIDATION_ERROR"),
		})
	case domain.KindNotFound:
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  errorCode(err, "NOT_FOUND"),
		})
	case domain.KindForbidden:
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error: err.Error(),
			Code:  errorCode(err, "FORBIDDEN"),
		})
	case domain.KindConflict:
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "PROPERTY_UNAVAILABLE",
		})
	case domain.KindRetryable:
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "service temporarily unavailable",
			Code:    "UPSTREAM_UNAVAILABLE",
			Message: "a dependent service is unavailable, please retry",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrStartDateInPast, "START_DATE_IN_PAST"},
	{domain.ErrInvalidDateRange, "INVALID_DATE_RANGE"},
	{domain.ErrMinimumStay, "INVALID_DATE_RANGE"},
	{domain.ErrInvalidDate, "INVALID_DATE"},
	{domain.ErrInvalidWallet, "INVALID_WALLET_ADDRESS"},
	{domain.ErrInvalidPrice, "INVALID_PRICE"},
	{domain.ErrPropertyNotFound, "PROPERTY_NOT_FOUND"},
	{domain.ErrBookingNotFound, "BOOKING_NOT_FOUND"},
	{domain.ErrWalletNotRegistered, "WALLET_NOT_REGISTERED"},
	{domain.ErrWalletMismatch, "WALLET_MISMATCH"},
	{domain.ErrNotBookingOwner, "NOT_BOOKING_OWNER"},
}

func errorCode(err error, fallback string) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return fallback
}
