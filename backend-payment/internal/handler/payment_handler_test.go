package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// mockPaymentService implements service.PaymentService for testing
type mockPaymentService struct {
	ValidatePaymentFunc       func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error)
	GetPaymentFunc            func(ctx context.Context, paymentID int64) (*domain.Payment, error)
	GetPaymentsForBookingFunc func(ctx context.Context, bookingID int64) ([]*domain.Payment, error)
}

var _ service.PaymentService = (*mockPaymentService)(nil)

func (m *mockPaymentService) ValidatePayment(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
	if m.ValidatePaymentFunc != nil {
		return m.ValidatePaymentFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockPaymentService) GetPayment(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	if m.GetPaymentFunc != nil {
		return m.GetPaymentFunc(ctx, paymentID)
	}
	return nil, domain.ErrPaymentNotFound
}

func (m *mockPaymentService) GetPaymentsForBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error) {
	if m.GetPaymentsForBookingFunc != nil {
		return m.GetPaymentsForBookingFunc(ctx, bookingID)
	}
	return []*domain.Payment{}, nil
}

const (
	testHash     = "0xab00000000000000000000000000000000000000000000000000000000000001"
	testContract = "0xc0ffee0000000000000000000000000000000001"
)

func samplePayment(id int64, status domain.PaymentStatus) *domain.Payment {
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)
	p := &domain.Payment{
		ID:              id,
		BookingID:       42,
		TransactionHash: testHash,
		ContractAddress: testContract,
		Amount:          decimal.RequireFromString("1.5"),
		Currency:        domain.DefaultCurrency,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == domain.PaymentStatusConfirmed {
		p.PayerAddress = "0xabcdef0123456789abcdef0123456789abcdef01"
		p.BlockNumber = 436
		p.ValidatedAt = &now
	}
	return p
}

func setupTestRouter(svc service.PaymentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewPaymentHandler(svc)
	payments := router.Group("/api/v1/payments")
	{
		payments.POST("/validate", handler.ValidatePayment)
		payments.GET("/:id", handler.GetPayment)
		payments.GET("/booking/:bookingId", handler.GetPaymentsForBooking)
	}
	return router
}

func postValidate(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/payments/validate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const validBody = `{"bookingId":42,"transactionHash":"` + testHash + `","contractAddress":"` + testContract + `","expectedAmount":"1.5"}`

func TestPaymentHandler_ValidatePayment_Confirmed(t *testing.T) {
	var got *dto.ValidatePaymentRequest
	svc := &mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			got = req
			return samplePayment(1, domain.PaymentStatusConfirmed), nil
		},
	}
	router := setupTestRouter(svc)

	w := postValidate(router, validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got == nil || got.BookingID != 42 || !got.ExpectedAmount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Unexpected request passed to service: %+v", got)
	}

	var resp struct {
		Success bool                `json:"success"`
		Data    dto.PaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("Expected success to be true")
	}
	if resp.Data.Status != string(domain.PaymentStatusConfirmed) {
		t.Errorf("Expected status CONFIRMED, got %s", resp.Data.Status)
	}
	if resp.Data.Amount != "1.5" {
		t.Errorf("Expected amount 1.5, got %s", resp.Data.Amount)
	}
	if resp.Data.PayerAddress == "" {
		t.Error("Expected payer address to be set")
	}
}

func TestPaymentHandler_ValidatePayment_NumericAmount(t *testing.T) {
	svc := &mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			if !req.ExpectedAmount.Equal(decimal.RequireFromString("0.25")) {
				t.Errorf("Expected amount 0.25, got %s", req.ExpectedAmount)
			}
			return samplePayment(1, domain.PaymentStatusConfirmed), nil
		},
	}
	router := setupTestRouter(svc)

	w := postValidate(router, `{"bookingId":42,"transactionHash":"`+testHash+`","contractAddress":"`+testContract+`","expectedAmount":0.25}`)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestPaymentHandler_ValidatePayment_BadRequest(t *testing.T) {
	router := setupTestRouter(&mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			return nil, domain.ErrInvalidTransactionHash
		},
	})

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not json", `{"bookingId":`, "VALIDATION_ERROR"},
		{"missing hash", `{"bookingId":42,"contractAddress":"` + testContract + `","expectedAmount":"1"}`, "VALIDATION_ERROR"},
		{"rejected by service", `{"bookingId":42,"transactionHash":"0x12","contractAddress":"` + testContract + `","expectedAmount":"1"}`, "INVALID_TRANSACTION_HASH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postValidate(router, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			var resp dto.ErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %+v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestPaymentHandler_ValidatePayment_Rejected(t *testing.T) {
	failed := samplePayment(3, domain.PaymentStatusFailed)
	verr := domain.NewAmountMismatch("1.5", "1.2", "1.49985")
	code, msg := string(verr.Code), verr.Message
	failed.ErrorCode, failed.ErrorMessage = &code, &msg

	router := setupTestRouter(&mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			return failed, verr
		},
	})

	w := postValidate(router, validBody)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error.Code != "AMOUNT_MISMATCH" {
		t.Errorf("Expected AMOUNT_MISMATCH, got %s", resp.Error.Code)
	}
	if resp.Error.Retryable {
		t.Error("Expected permanent failure")
	}
	if resp.Error.Details["floor"] != "1.49985" {
		t.Errorf("Expected floor detail, got %v", resp.Error.Details)
	}
	if resp.Data == nil || resp.Data.ID != 3 || resp.Data.Status != "FAILED" {
		t.Errorf("Expected FAILED payment in data, got %+v", resp.Data)
	}
}

func TestPaymentHandler_ValidatePayment_FailedResubmission(t *testing.T) {
	failed := samplePayment(3, domain.PaymentStatusFailed)
	code, msg := string(domain.CodeTransactionFailed), "transaction reverted"
	failed.ErrorCode, failed.ErrorMessage = &code, &msg

	router := setupTestRouter(&mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			return failed, nil
		},
	})

	w := postValidate(router, validBody)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	var resp dto.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "TRANSACTION_FAILED" || resp.Error.Message != "transaction reverted" {
		t.Errorf("Unexpected error detail: %+v", resp.Error)
	}
	if resp.Data == nil {
		t.Error("Expected stored payment in data")
	}
}

func TestPaymentHandler_ValidatePayment_Retryable(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not mined", domain.NewTransactionNotFound(testHash), http.StatusTooEarly, "TRANSACTION_NOT_FOUND"},
		{"node down", domain.NewChainUnavailable(errors.New("dial tcp: connection refused")), http.StatusServiceUnavailable, "CHAIN_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&mockPaymentService{
				ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
					return nil, tt.err
				},
			})

			w := postValidate(router, validBody)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if w.Header().Get("Retry-After") == "" {
				t.Error("Expected Retry-After header")
			}
			var resp dto.ErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error.Code != tt.wantCode || !resp.Error.Retryable {
				t.Errorf("Unexpected error detail: %+v", resp.Error)
			}
			if resp.Data != nil {
				t.Error("Expected no payment for a retryable failure")
			}
		})
	}
}

func TestPaymentHandler_ValidatePayment_InternalError(t *testing.T) {
	router := setupTestRouter(&mockPaymentService{
		ValidatePaymentFunc: func(ctx context.Context, req *dto.ValidatePaymentRequest) (*domain.Payment, error) {
			return nil, errors.New("connection reset by peer")
		},
	})

	w := postValidate(router, validBody)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("connection reset")) {
		t.Error("Internal error details must not leak")
	}
}

func TestPaymentHandler_GetPayment(t *testing.T) {
	router := setupTestRouter(&mockPaymentService{
		GetPaymentFunc: func(ctx context.Context, paymentID int64) (*domain.Payment, error) {
			if paymentID != 7 {
				return nil, domain.ErrPaymentNotFound
			}
			return samplePayment(7, domain.PaymentStatusConfirmed), nil
		},
	})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/v1/payments/7", http.StatusOK},
		{"/api/v1/payments/8", http.StatusNotFound},
		{"/api/v1/payments/abc", http.StatusBadRequest},
		{"/api/v1/payments/0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.wantStatus, w.Code)
		}
	}
}

func TestPaymentHandler_GetPaymentsForBooking(t *testing.T) {
	router := setupTestRouter(&mockPaymentService{
		GetPaymentsForBookingFunc: func(ctx context.Context, bookingID int64) ([]*domain.Payment, error) {
			if bookingID != 42 {
				t.Errorf("Expected booking 42, got %d", bookingID)
			}
			return []*domain.Payment{
				samplePayment(2, domain.PaymentStatusConfirmed),
				samplePayment(1, domain.PaymentStatusFailed),
			}, nil
		},
	})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/payments/booking/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Data dto.PaymentListResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Data.Total != 2 || len(resp.Data.Payments) != 2 {
		t.Fatalf("Expected 2 payments, got %+v", resp.Data)
	}
	if resp.Data.Payments[0].ID != 2 {
		t.Errorf("Expected service order to be kept, got first id %d", resp.Data.Payments[0].ID)
	}
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(ctx context.Context) error { return s.err }

func TestHealthHandler_Ready(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		components map[string]HealthChecker
		wantStatus int
	}{
		{"all healthy", map[string]HealthChecker{"database": stubChecker{}, "chain": stubChecker{}}, http.StatusOK},
		{"node down", map[string]HealthChecker{"database": stubChecker{}, "chain": stubChecker{err: errors.New("unreachable")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			h := NewHealthHandler(tt.components)
			router.GET("/ready", h.Ready)

			req, _ := http.NewRequest(http.MethodGet, "/ready", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}
