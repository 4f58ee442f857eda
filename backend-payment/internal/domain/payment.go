package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment (matches DB CHECK)
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusValidating PaymentStatus = "VALIDATING"
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusValidating, PaymentStatusConfirmed,
		PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

var (
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// IsTransactionHash reports whether s is 0x followed by 64 hex characters
func IsTransactionHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// IsAddress reports whether s is 0x followed by 40 hex characters
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeHex lower-cases a hash or address so comparisons and the unique
// index are case-insensitive
func NormalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Payment is one on-chain payment validation attempt. TransactionHash is
// unique across all payments.
type Payment struct {
	ID              int64           `json:"id"`
	TransactionHash string          `json:"transactionHash"`
	ContractAddress string          `json:"contractAddress"`
	BookingID       int64           `json:"bookingId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PayerAddress    string          `json:"payerAddress,omitempty"`
	Status          PaymentStatus   `json:"status"`
	BlockNumber     uint64          `json:"blockNumber,omitempty"`
	ValidatedAt     *time.Time      `json:"validatedAt,omitempty"`
	ErrorCode       *string         `json:"errorCode,omitempty"`
	ErrorMessage    *string         `json:"errorMessage,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NewPayment creates a payment in VALIDATING for the given submission.
// Amount holds the expected amount until the chain confirms the real one.
func NewPayment(bookingID int64, txHash, contract string, expected decimal.Decimal, currency string, now time.Time) (*Payment, error) {
	if bookingID <= 0 {
		return nil, ErrInvalidBookingID
	}
	if !IsTransactionHash(txHash) {
		return nil, ErrInvalidTransactionHash
	}
	if !IsAddress(contract) {
		return nil, ErrInvalidContractAddress
	}
	if !expected.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	now = now.UTC()
	return &Payment{
		TransactionHash: NormalizeHex(txHash),
		ContractAddress: NormalizeHex(contract),
		BookingID:       bookingID,
		Amount:          expected,
		Currency:        currency,
		Status:          PaymentStatusValidating,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// DefaultCurrency is the currency escrow amounts are denominated in
const DefaultCurrency = "ETH"

// Confirm records a successful validation
func (p *Payment) Confirm(amount decimal.Decimal, payer string, blockNumber uint64, now time.Time) error {
	if p.Status != PaymentStatusValidating && p.Status != PaymentStatusPending {
		return &TransitionError{From: p.Status, To: PaymentStatusConfirmed}
	}
	now = now.UTC()
	p.Status = PaymentStatusConfirmed
	p.Amount = amount
	p.PayerAddress = NormalizeHex(payer)
	p.BlockNumber = blockNumber
	p.ValidatedAt = &now
	p.ErrorCode = nil
	p.ErrorMessage = nil
	p.UpdatedAt = now
	return nil
}

// Fail records a permanent validation failure
func (p *Payment) Fail(code ValidationCode, message string, now time.Time) error {
	if p.Status != PaymentStatusValidating && p.Status != PaymentStatusPending {
		return &TransitionError{From: p.Status, To: PaymentStatusFailed}
	}
	c := string(code)
	p.Status = PaymentStatusFailed
	p.ErrorCode = &c
	p.ErrorMessage = &message
	p.UpdatedAt = now.UTC()
	return nil
}

// Cancel marks a confirmed payment as cancelled after the escrow was
// cancelled on chain
func (p *Payment) Cancel(now time.Time) error {
	if p.Status != PaymentStatusConfirmed {
		return &TransitionError{From: p.Status, To: PaymentStatusCancelled}
	}
	p.Status = PaymentStatusCancelled
	p.UpdatedAt = now.UTC()
	return nil
}

// IsFinal returns true if the payment is in a final state
func (p *Payment) IsFinal() bool {
	return p.Status == PaymentStatusConfirmed ||
		p.Status == PaymentStatusFailed ||
		p.Status == PaymentStatusCancelled
}

// IsSuccessful returns true if the payment was confirmed
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusConfirmed
}
