package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Seconds a client should wait before resubmitting a retryable validation
const (
	retryAfterNotMined   = "15"
	retryAfterNodeOutage = "5"
)

// PaymentHandler handles payment HTTP endpoints
type PaymentHandler struct {
	paymentService service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// ValidatePayment handles POST /api/v1/payments/validate
func (h *PaymentHandler) ValidatePayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.validate")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.ValidatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	span.SetAttributes(
		attribute.Int64("booking_id", req.BookingID),
		attribute.String("tx_hash", req.TransactionHash),
		attribute.String("contract", req.ContractAddress),
	)

	payment, err := h.paymentService.ValidatePayment(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err, payment)
		return
	}

	span.SetAttributes(
		attribute.Int64("payment_id", payment.ID),
		attribute.String("status", string(payment.Status)),
	)

	// A resubmitted hash that failed before is answered from the stored row
	if payment.Status == domain.PaymentStatusFailed {
		span.SetStatus(codes.Error, "payment failed")
		c.JSON(http.StatusUnprocessableEntity, failedResponse(payment))
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromPayment(payment)))
}

// GetPayment handles GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || paymentID <= 0 {
		span.SetStatus(codes.Error, "invalid payment id")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_PAYMENT_ID", domain.ErrInvalidPaymentID.Error()))
		return
	}
	span.SetAttributes(attribute.Int64("payment_id", paymentID))

	payment, err := h.paymentService.GetPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err, nil)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.FromPayment(payment)))
}

// GetPaymentsForBooking handles GET /api/v1/payments/booking/:bookingId
func (h *PaymentHandler) GetPaymentsForBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.payment.list_by_booking")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID, err := strconv.ParseInt(c.Param("bookingId"), 10, 64)
	if err != nil || bookingID <= 0 {
		span.SetStatus(codes.Error, "invalid booking id")
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("INVALID_BOOKING_ID", domain.ErrInvalidBookingID.Error()))
		return
	}
	span.SetAttributes(attribute.Int64("booking_id", bookingID))

	payments, err := h.paymentService.GetPaymentsForBooking(ctx, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err, nil)
		return
	}

	span.SetAttributes(attribute.Int("count", len(payments)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PaymentListResponse{
		Payments: dto.FromPayments(payments),
		Total:    len(payments),
	}))
}

// handleError converts service errors to HTTP responses. payment is the
// FAILED record when validation was rejected for good.
func (h *PaymentHandler) handleError(c *gin.Context, err error, payment *domain.Payment) {
	if ve, ok := domain.AsValidationError(err); ok {
		resp := &dto.ErrorResponse{Error: &dto.ErrorDetail{
			Code:      string(ve.Code),
			Message:   ve.Message,
			Retryable: ve.Retryable,
			Details:   ve.Details,
		}}
		if !ve.Retryable {
			if payment != nil {
				resp.Data = dto.FromPayment(payment)
			}
			c.JSON(http.StatusUnprocessableEntity, resp)
			return
		}
		if ve.Code == domain.CodeTransactionNotFound {
			c.Header("Retry-After", retryAfterNotMined)
			c.JSON(http.StatusTooEarly, resp)
			return
		}
		c.Header("Retry-After", retryAfterNodeOutage)
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	switch domain.KindOf(err) {
	case domain.KindClientInput:
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(errorCode(err, "VALIDATION_ERROR"), err.Error()))
	case domain.KindNotFound:
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("PAYMENT_NOT_FOUND", err.Error()))
	case domain.KindConflict, domain.KindDomainState:
		c.JSON(http.StatusConflict, dto.NewErrorResponse("CONFLICT", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("INTERNAL_ERROR", "internal server error"))
	}
}

func failedResponse(p *domain.Payment) *dto.ErrorResponse {
	resp := dto.NewErrorResponse("PAYMENT_FAILED", "payment validation failed")
	if p.ErrorCode != nil {
		resp.Error.Code = *p.ErrorCode
	}
	if p.ErrorMessage != nil {
		resp.Error.Message = *p.ErrorMessage
	}
	resp.Data = dto.FromPayment(p)
	return resp
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidPaymentID, "INVALID_PAYMENT_ID"},
	{domain.ErrInvalidBookingID, "INVALID_BOOKING_ID"},
	{domain.ErrInvalidTransactionHash, "INVALID_TRANSACTION_HASH"},
	{domain.ErrInvalidContractAddress, "INVALID_CONTRACT_ADDRESS"},
	{domain.ErrInvalidAmount, "INVALID_AMOUNT"},
}

func errorCode(err error, fallback string) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return fallback
}
