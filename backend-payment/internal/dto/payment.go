package dto

import (
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/shopspring/decimal"
)

// ValidatePaymentRequest asks the service to verify an escrow funding
// transaction. ExpectedAmount accepts a JSON number or a decimal string.
type ValidatePaymentRequest struct {
	BookingID       int64           `json:"bookingId" binding:"required"`
	TransactionHash string          `json:"transactionHash" binding:"required"`
	ContractAddress string          `json:"contractAddress" binding:"required"`
	ExpectedAmount  decimal.Decimal `json:"expectedAmount"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID              int64      `json:"id"`
	BookingID       int64      `json:"bookingId"`
	TransactionHash string     `json:"transactionHash"`
	ContractAddress string     `json:"contractAddress"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	PayerAddress    string     `json:"payerAddress,omitempty"`
	Status          string     `json:"status"`
	BlockNumber     uint64     `json:"blockNumber,omitempty"`
	ValidatedAt     *time.Time `json:"validatedAt,omitempty"`
	ErrorCode       string     `json:"errorCode,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FromPayment converts a domain Payment to PaymentResponse
func FromPayment(p *domain.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:              p.ID,
		BookingID:       p.BookingID,
		TransactionHash: p.TransactionHash,
		ContractAddress: p.ContractAddress,
		Amount:          p.Amount.String(),
		Currency:        p.Currency,
		PayerAddress:    p.PayerAddress,
		Status:          string(p.Status),
		BlockNumber:     p.BlockNumber,
		ValidatedAt:     p.ValidatedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.ErrorCode != nil {
		resp.ErrorCode = *p.ErrorCode
	}
	if p.ErrorMessage != nil {
		resp.ErrorMessage = *p.ErrorMessage
	}
	return resp
}

// FromPayments converts a list of payments
func FromPayments(payments []*domain.Payment) []*PaymentResponse {
	result := make([]*PaymentResponse, len(payments))
	for i, p := range payments {
		result[i] = FromPayment(p)
	}
	return result
}

// PaymentListResponse represents a list of payments
type PaymentListResponse struct {
	Payments []*PaymentResponse `json:"payments"`
	Total    int                `json:"total"`
}

// SuccessResponse wraps successful payloads
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// NewSuccessResponse wraps data
func NewSuccessResponse(data any) *SuccessResponse {
	return &SuccessResponse{Success: true, Data: data}
}

// ErrorDetail describes why a request failed
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ErrorResponse wraps an error. Data carries the FAILED payment when
// validation was rejected for good.
type ErrorResponse struct {
	Success bool             `json:"success"`
	Error   *ErrorDetail     `json:"error"`
	Data    *PaymentResponse `json:"data,omitempty"`
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{Error: &ErrorDetail{Code: code, Message: message}}
}
