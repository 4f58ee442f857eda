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

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/dto"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/service"
	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/worker"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc       func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error)
	ConfirmBookingFunc      func(ctx context.Context, bookingID int64) (*domain.Booking, error)
	CancelBookingFunc       func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error)
	GetBookingFunc          func(ctx context.Context, bookingID, tenantID int64) (*domain.Booking, error)
	ListTenantBookingsFunc  func(ctx context.Context, tenantID int64, page, pageSize int) ([]*domain.Booking, error)
	ExpireStaleBookingsFunc func(ctx context.Context) (*service.ExpiryResult, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, tenantID, req)
	}
	return nil, nil
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	if m.ConfirmBookingFunc != nil {
		return m.ConfirmBookingFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, opts)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, tenantID int64) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, tenantID)
	}
	return nil, nil
}

func (m *MockBookingService) ListTenantBookings(ctx context.Context, tenantID int64, page, pageSize int) ([]*domain.Booking, error) {
	if m.ListTenantBookingsFunc != nil {
		return m.ListTenantBookingsFunc(ctx, tenantID, page, pageSize)
	}
	return nil, nil
}

func (m *MockBookingService) ExpireStaleBookings(ctx context.Context) (*service.ExpiryResult, error) {
	if m.ExpireStaleBookingsFunc != nil {
		return m.ExpireStaleBookingsFunc(ctx)
	}
	return &service.ExpiryResult{}, nil
}

func sampleBooking(id int64, status domain.BookingStatus) *domain.Booking {
	start, _ := domain.ParseDate("2030-01-10")
	end, _ := domain.ParseDate("2030-01-13")
	return &domain.Booking{
		ID:            id,
		PropertyID:    5,
		TenantID:      7,
		StartDate:     start,
		EndDate:       end,
		Status:        status,
		WalletAddress: "0x00000000000000000000000000000000000000aa",
		PricePerNight: decimal.NewFromInt(100),
		TotalPrice:    decimal.NewFromInt(300),
		Currency:      "ETH",
		CreatedAt:     time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func setupTestRouter(handler *BookingHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	bookings := router.Group("/api/v1/bookings")
	{
		bookings.POST("", handler.CreateBooking)
		bookings.GET("", handler.ListBookings)
		bookings.GET("/:id", handler.GetBooking)
		bookings.POST("/:id/cancel", handler.CancelBooking)
	}
	router.POST("/internal/v1/bookings/:id/confirm", handler.ConfirmBooking)

	return router
}

func doRequest(router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var response dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return response
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	validRequest := &dto.CreateBookingRequest{
		PropertyID:    5,
		StartDate:     "2030-01-10",
		EndDate:       "2030-01-13",
		WalletAddress: "0x00000000000000000000000000000000000000aa",
	}

	tests := []struct {
		name           string
		userID         string
		request        any
		mockFunc       func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:    "successful booking",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				if tenantID != 7 {
					return nil, errors.New("wrong tenant")
				}
				return sampleBooking(42, domain.BookingStatusAwaitingPayment), nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing user header",
			request:        validRequest,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "non-numeric user header",
			userID:         "alice",
			request:        validRequest,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "missing fields",
			userID:         "7",
			request:        map[string]any{"propertyId": 5},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name:    "start date in the past",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, domain.ErrStartDateInPast
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "START_DATE_IN_PAST",
		},
		{
			name:    "wallet mismatch",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, domain.ErrWalletMismatch
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "WALLET_MISMATCH",
		},
		{
			name:    "property not found",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, domain.ErrPropertyNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "PROPERTY_NOT_FOUND",
		},
		{
			name:    "dates taken",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, domain.ErrPropertyUnavailable
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "PROPERTY_UNAVAILABLE",
		},
		{
			name:    "listing service down",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, domain.ErrUpstreamUnavailable
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:    "unexpected error",
			userID:  "7",
			request: validRequest,
			mockFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
				return nil, errors.New("disk full")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(NewBookingHandler(&MockBookingService{CreateBookingFunc: tt.mockFunc}))

			w := doRequest(router, http.MethodPost, "/api/v1/bookings", tt.userID, tt.request)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedCode != "" {
				if code := decodeError(t, w).Code; code != tt.expectedCode {
					t.Errorf("expected code %s, got %s", tt.expectedCode, code)
				}
			}
		})
	}
}

func TestBookingHandler_CreateBookingResponseBody(t *testing.T) {
	router := setupTestRouter(NewBookingHandler(&MockBookingService{
		CreateBookingFunc: func(ctx context.Context, tenantID int64, req *dto.CreateBookingRequest) (*domain.Booking, error) {
			return sampleBooking(42, domain.BookingStatusAwaitingPayment), nil
		},
	}))

	w := doRequest(router, http.MethodPost, "/api/v1/bookings", "7", &dto.CreateBookingRequest{
		PropertyID: 5, StartDate: "2030-01-10", EndDate: "2030-01-13",
		WalletAddress: "0x00000000000000000000000000000000000000aa",
	})

	var body dto.BookingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.ID != 42 || body.Status != "AWAITING_PAYMENT" {
		t.Errorf("unexpected booking %+v", body)
	}
	if body.StartDate != "2030-01-10" || body.EndDate != "2030-01-13" || body.Nights != 3 {
		t.Errorf("unexpected dates %s..%s (%d nights)", body.StartDate, body.EndDate, body.Nights)
	}
	if body.PricePerNight != "100" || body.TotalPrice != "300" {
		t.Errorf("unexpected prices %s / %s", body.PricePerNight, body.TotalPrice)
	}
}

func TestBookingHandler_ConfirmBooking(t *testing.T) {
	tests := []struct {
		name           string
		bookingID      string
		mockFunc       func(ctx context.Context, bookingID int64) (*domain.Booking, error)
		expectedStatus int
		expectedCode   string
		expectedError  string
	}{
		{
			name:      "successful confirmation",
			bookingID: "42",
			mockFunc: func(ctx context.Context, bookingID int64) (*domain.Booking, error) {
				return sampleBooking(bookingID, domain.BookingStatusConfirmed), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid booking id",
			bookingID:      "abc",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_BOOKING_ID",
		},
		{
			name:      "booking not found",
			bookingID: "999",
			mockFunc: func(ctx context.Context, bookingID int64) (*domain.Booking, error) {
				return nil, domain.ErrBookingNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "BOOKING_NOT_FOUND",
		},
		{
			name:      "already confirmed",
			bookingID: "42",
			mockFunc: func(ctx context.Context, bookingID int64) (*domain.Booking, error) {
				return sampleBooking(bookingID, domain.BookingStatusConfirmed), &domain.TransitionError{
					Action: "confirm", From: domain.BookingStatusConfirmed, To: domain.BookingStatusConfirmed,
				}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_STATUS_TRANSITION",
			expectedError:  "Cannot confirm booking in status CONFIRMED",
		},
		{
			name:      "expired booking",
			bookingID: "42",
			mockFunc: func(ctx context.Context, bookingID int64) (*domain.Booking, error) {
				return nil, &domain.TransitionError{
					Action: "confirm", From: domain.BookingStatusExpired, To: domain.BookingStatusConfirmed,
				}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_STATUS_TRANSITION",
			expectedError:  "Cannot confirm booking in status EXPIRED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(NewBookingHandler(&MockBookingService{ConfirmBookingFunc: tt.mockFunc}))

			w := doRequest(router, http.MethodPost, "/internal/v1/bookings/"+tt.bookingID+"/confirm", "", nil)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedCode != "" {
				resp := decodeError(t, w)
				if resp.Code != tt.expectedCode {
					t.Errorf("expected code %s, got %s", tt.expectedCode, resp.Code)
				}
				if tt.expectedError != "" && resp.Error != tt.expectedError {
					t.Errorf("expected error %q, got %q", tt.expectedError, resp.Error)
				}
			}
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		body           any
		mockFunc       func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:   "cancel with reason",
			userID: "7",
			body:   &dto.CancelBookingRequest{Reason: "plans changed"},
			mockFunc: func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error) {
				if opts.TenantID != 7 || opts.Reason != "plans changed" {
					return nil, errors.New("unexpected options")
				}
				return sampleBooking(bookingID, domain.BookingStatusCancelled), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "cancel without body",
			userID: "7",
			mockFunc: func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error) {
				return sampleBooking(bookingID, domain.BookingStatusCancelled), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "not the owner",
			userID: "8",
			mockFunc: func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error) {
				return nil, domain.ErrNotBookingOwner
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "NOT_BOOKING_OWNER",
		},
		{
			name:   "already cancelled",
			userID: "7",
			mockFunc: func(ctx context.Context, bookingID int64, opts service.CancelOptions) (*domain.Booking, error) {
				return nil, &domain.TransitionError{
					Action: "cancel", From: domain.BookingStatusCancelled, To: domain.BookingStatusCancelled,
				}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "INVALID_STATUS_TRANSITION",
		},
		{
			name:           "missing user header",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(NewBookingHandler(&MockBookingService{CancelBookingFunc: tt.mockFunc}))

			w := doRequest(router, http.MethodPost, "/api/v1/bookings/42/cancel", tt.userID, tt.body)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedCode != "" {
				if code := decodeError(t, w).Code; code != tt.expectedCode {
					t.Errorf("expected code %s, got %s", tt.expectedCode, code)
				}
			}
		})
	}
}

func TestBookingHandler_GetBooking(t *testing.T) {
	mockService := &MockBookingService{
		GetBookingFunc: func(ctx context.Context, bookingID, tenantID int64) (*domain.Booking, error) {
			if tenantID != 7 {
				return nil, domain.ErrBookingNotFound
			}
			return sampleBooking(bookingID, domain.BookingStatusConfirmed), nil
		},
	}
	router := setupTestRouter(NewBookingHandler(mockService))

	w := doRequest(router, http.MethodGet, "/api/v1/bookings/42", "7", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/bookings/42", "8", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for another tenant, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/bookings/0", "7", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for id 0, got %d", w.Code)
	}
}

func TestBookingHandler_ListBookings(t *testing.T) {
	tests := []struct {
		name             string
		query            string
		expectedPage     int
		expectedPageSize int
	}{
		{name: "defaults", query: "", expectedPage: 1, expectedPageSize: 20},
		{name: "explicit", query: "?page=3&page_size=5", expectedPage: 3, expectedPageSize: 5},
		{name: "out of range", query: "?page=-1&page_size=500", expectedPage: 1, expectedPageSize: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPage, gotPageSize int
			mockService := &MockBookingService{
				ListTenantBookingsFunc: func(ctx context.Context, tenantID int64, page, pageSize int) ([]*domain.Booking, error) {
					gotPage, gotPageSize = page, pageSize
					return []*domain.Booking{sampleBooking(1, domain.BookingStatusConfirmed)}, nil
				},
			}
			router := setupTestRouter(NewBookingHandler(mockService))

			w := doRequest(router, http.MethodGet, "/api/v1/bookings"+tt.query, "7", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			if gotPage != tt.expectedPage || gotPageSize != tt.expectedPageSize {
				t.Errorf("expected page %d/%d, got %d/%d", tt.expectedPage, tt.expectedPageSize, gotPage, gotPageSize)
			}

			var body dto.PaginatedResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(body.Data) != 1 {
				t.Errorf("expected 1 booking, got %d", len(body.Data))
			}
		})
	}
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

type fakeStats struct{}

func (fakeStats) GetStats() *worker.ExpiryWorkerStats {
	return &worker.ExpiryWorkerStats{IsRunning: true, TotalRuns: 3, TotalExpired: 2}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		components     map[string]HealthChecker
		expectedStatus int
	}{
		{name: "all healthy", components: map[string]HealthChecker{"database": fakeChecker{}}, expectedStatus: http.StatusOK},
		{
			name: "database down",
			components: map[string]HealthChecker{
				"database": fakeChecker{err: errors.New("refused")},
				"redis":    fakeChecker{},
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{name: "nothing configured", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.components, nil)
			router := gin.New()
			router.GET("/ready", h.Ready)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestHealthHandler_WorkerStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/with", NewHealthHandler(nil, fakeStats{}).WorkerStats)
	router.GET("/without", NewHealthHandler(nil, nil).WorkerStats)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/with", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var stats worker.ExpiryWorkerStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.TotalRuns != 3 || stats.TotalExpired != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/without", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
