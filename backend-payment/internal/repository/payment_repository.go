package repository

import (
	"context"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
)

// PaymentRepository persists payments. TransactionHash is unique; a second
// insert of the same hash fails with ErrPaymentAlreadyExists.
type PaymentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	// GetByTransactionHash expects a lower-cased hash
	GetByTransactionHash(ctx context.Context, txHash string) (*domain.Payment, error)
	// ListByBooking returns every attempt for the booking, newest first
	ListByBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error)
	// WithinTx runs fn against a store bound to one transaction. Writes are
	// committed when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx PaymentStore) error) error
}

// PaymentStore writes payments inside a transaction
type PaymentStore interface {
	// Insert stores payment and assigns its ID
	Insert(ctx context.Context, payment *domain.Payment) error
	// Update stores the mutable columns of payment
	Update(ctx context.Context, payment *domain.Payment) error
}
