package dto

import (
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/response"
)

// CreateBookingRequest represents request to book a property
type CreateBookingRequest struct {
	PropertyID    int64  `json:"propertyId" binding:"required"`
	StartDate     string `json:"startDate" binding:"required"`
	EndDate       string `json:"endDate" binding:"required"`
	WalletAddress string `json:"walletAddress" binding:"required"`
}

// CancelBookingRequest represents an optional cancellation reason
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID            int64     `json:"id"`
	PropertyID    int64     `json:"propertyId"`
	TenantID      int64     `json:"tenantId"`
	StartDate     string    `json:"startDate"`
	EndDate       string    `json:"endDate"`
	Nights        int       `json:"nights"`
	Status        string    `json:"status"`
	WalletAddress string    `json:"walletAddress"`
	PricePerNight string    `json:"pricePerNight"`
	TotalPrice    string    `json:"totalPrice"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PaginatedResponse wraps a page of bookings
type PaginatedResponse struct {
	Data     []*BookingResponse `json:"data"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// ErrorResponse represents an error in API response
type ErrorResponse = response.ErrorBody

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:            b.ID,
		PropertyID:    b.PropertyID,
		TenantID:      b.TenantID,
		StartDate:     b.StartDate.Format(domain.DateLayout),
		EndDate:       b.EndDate.Format(domain.DateLayout),
		Nights:        b.Nights(),
		Status:        string(b.Status),
		WalletAddress: b.WalletAddress,
		PricePerNight: b.PricePerNight.String(),
		TotalPrice:    b.TotalPrice.String(),
		Currency:      b.Currency,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// FromDomainList converts a slice of bookings
func FromDomainList(bookings []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, FromDomain(b))
	}
	return out
}
