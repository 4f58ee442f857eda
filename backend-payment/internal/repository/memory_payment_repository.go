package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
)

// MemoryPaymentRepository implements PaymentRepository using in-memory storage
// This is useful for testing and development
type MemoryPaymentRepository struct {
	payments  map[int64]*domain.Payment
	byHash    map[string]int64  // transactionHash -> paymentID
	byBooking map[int64][]int64 // bookingID -> []paymentID
	nextID    int64
	mu        sync.RWMutex

	// txMu serializes transactions, standing in for the row lock the unique
	// index takes in Postgres
	txMu sync.Mutex
}

// NewMemoryPaymentRepository creates a new in-memory payment repository
func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments:  make(map[int64]*domain.Payment),
		byHash:    make(map[string]int64),
		byBooking: make(map[int64][]int64),
	}
}

// GetByID retrieves a payment by its ID
func (r *MemoryPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, exists := r.payments[id]
	if !exists {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

// GetByTransactionHash retrieves the payment recorded for a transaction
func (r *MemoryPaymentRepository) GetByTransactionHash(ctx context.Context, txHash string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byHash[txHash]
	if !exists {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(r.payments[id]), nil
}

// ListByBooking returns every payment attempt for a booking, newest first
func (r *MemoryPaymentRepository) ListByBooking(ctx context.Context, bookingID int64) ([]*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Payment, 0, len(r.byBooking[bookingID]))
	for _, id := range r.byBooking[bookingID] {
		result = append(result, clonePayment(r.payments[id]))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// WithinTx stages fn's writes and applies them only when fn succeeds
func (r *MemoryPaymentRepository) WithinTx(ctx context.Context, fn func(tx PaymentStore) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	tx := &memoryPaymentTx{repo: r, staged: map[int64]*domain.Payment{}}
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range tx.order {
		p := tx.staged[id]
		if _, exists := r.payments[id]; !exists {
			r.byHash[p.TransactionHash] = id
			r.byBooking[p.BookingID] = append(r.byBooking[p.BookingID], id)
		}
		r.payments[id] = p
	}
	return nil
}

// Count returns the number of stored payments
func (r *MemoryPaymentRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payments)
}

type memoryPaymentTx struct {
	repo   *MemoryPaymentRepository
	staged map[int64]*domain.Payment
	order  []int64
}

func (tx *memoryPaymentTx) Insert(ctx context.Context, payment *domain.Payment) error {
	r := tx.repo
	r.mu.Lock()
	if _, exists := r.byHash[payment.TransactionHash]; exists {
		r.mu.Unlock()
		return domain.ErrPaymentAlreadyExists
	}
	r.nextID++
	payment.ID = r.nextID
	r.mu.Unlock()

	for _, p := range tx.staged {
		if p.TransactionHash == payment.TransactionHash {
			return domain.ErrPaymentAlreadyExists
		}
	}
	tx.staged[payment.ID] = clonePayment(payment)
	tx.order = append(tx.order, payment.ID)
	return nil
}

func (tx *memoryPaymentTx) Update(ctx context.Context, payment *domain.Payment) error {
	if _, staged := tx.staged[payment.ID]; !staged {
		tx.repo.mu.RLock()
		_, exists := tx.repo.payments[payment.ID]
		tx.repo.mu.RUnlock()
		if !exists {
			return domain.ErrPaymentNotFound
		}
		tx.order = append(tx.order, payment.ID)
	}
	tx.staged[payment.ID] = clonePayment(payment)
	return nil
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	if p.ValidatedAt != nil {
		t := *p.ValidatedAt
		c.ValidatedAt = &t
	}
	if p.ErrorCode != nil {
		s := *p.ErrorCode
		c.ErrorCode = &s
	}
	if p.ErrorMessage != nil {
		s := *p.ErrorMessage
		c.ErrorMessage = &s
	}
	return &c
}
