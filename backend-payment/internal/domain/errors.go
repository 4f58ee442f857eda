package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Payment errors
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists for this transaction")
	ErrInvalidTransition    = errors.New("illegal payment status transition")

	// Validation errors
	ErrInvalidPaymentID       = errors.New("invalid payment id")
	ErrInvalidBookingID       = errors.New("invalid booking id")
	ErrInvalidTransactionHash = errors.New("transaction hash must be 0x followed by 64 hex characters")
	ErrInvalidContractAddress = errors.New("contract address must be 0x followed by 40 hex characters")
	ErrInvalidAmount          = errors.New("expected amount must be a positive decimal")
)

// ErrorKind classifies errors for transport mapping and retry decisions
type ErrorKind string

const (
	KindClientInput ErrorKind = "client_input"
	KindDomainState ErrorKind = "domain_state"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindRetryable   ErrorKind = "retryable"
	KindPermanent   ErrorKind = "permanent"
	KindInternal    ErrorKind = "internal"
)

// ValidationCode identifies why on-chain validation did not confirm a payment
type ValidationCode string

const (
	CodeTransactionNotFound  ValidationCode = "TRANSACTION_NOT_FOUND"
	CodeTransactionFailed    ValidationCode = "TRANSACTION_FAILED"
	CodeInvalidContract      ValidationCode = "INVALID_CONTRACT"
	CodeEventNotFound        ValidationCode = "EVENT_NOT_FOUND"
	CodeAmountMismatch       ValidationCode = "AMOUNT_MISMATCH"
	CodeInvalidContractState ValidationCode = "INVALID_CONTRACT_STATE"
	CodeChainUnavailable     ValidationCode = "CHAIN_UNAVAILABLE"
)

// ValidationError is returned when a transaction does not prove the payment.
// Retryable errors leave no trace; the same hash may be submitted again.
type ValidationError struct {
	Code      ValidationCode
	Message   string
	Retryable bool
	Details   map[string]string
	Err       error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewTransactionNotFound reports a hash with no receipt yet
func NewTransactionNotFound(hash string) *ValidationError {
	return &ValidationError{
		Code:      CodeTransactionNotFound,
		Message:   fmt.Sprintf("transaction %s not found or not yet mined", hash),
		Retryable: true,
	}
}

// NewTransactionFailed reports a reverted transaction
func NewTransactionFailed(hash string) *ValidationError {
	return &ValidationError{
		Code:    CodeTransactionFailed,
		Message: fmt.Sprintf("transaction %s reverted", hash),
	}
}

// NewInvalidContract reports a transaction sent to another address
func NewInvalidContract(expected, actual string) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidContract,
		Message: fmt.Sprintf("transaction was sent to %s, expected %s", actual, expected),
		Details: map[string]string{"expected": expected, "actual": actual},
	}
}

// NewEventNotFound reports a receipt without a Funded log from the contract
func NewEventNotFound(contract string) *ValidationError {
	return &ValidationError{
		Code:    CodeEventNotFound,
		Message: fmt.Sprintf("no Funded event emitted by %s", contract),
	}
}

// NewAmountMismatch reports a funded amount below the accepted floor
func NewAmountMismatch(expected, actual, floor string) *ValidationError {
	return &ValidationError{
		Code:    CodeAmountMismatch,
		Message: fmt.Sprintf("funded amount %s is below expected %s", actual, expected),
		Details: map[string]string{"expected": expected, "actual": actual, "floor": floor},
	}
}

// NewInvalidContractState reports an escrow that is not Funded
func NewInvalidContractState(expected, actual ContractState) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidContractState,
		Message: fmt.Sprintf("contract state is %s, expected %s", actual, expected),
		Details: map[string]string{"expected": expected.String(), "actual": actual.String()},
	}
}

// NewTransactionRejected reports a receipt lookup the node refuses to answer
func NewTransactionRejected(hash string, err error) *ValidationError {
	return &ValidationError{
		Code:    CodeTransactionNotFound,
		Message: fmt.Sprintf("node rejected lookup of transaction %s", hash),
		Err:     err,
	}
}

// NewStateCallRejected reports an escrow whose state() call the node rejects,
// typically because the address is not an escrow contract
func NewStateCallRejected(contract string, err error) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidContractState,
		Message: fmt.Sprintf("state() call on %s was rejected", contract),
		Details: map[string]string{"expected": ContractStateFunded.String(), "actual": "rejected"},
		Err:     err,
	}
}

// NewChainUnavailable wraps a node failure
func NewChainUnavailable(err error) *ValidationError {
	return &ValidationError{
		Code:      CodeChainUnavailable,
		Message:   "blockchain node unavailable",
		Retryable: true,
		Err:       err,
	}
}

// TransitionError is returned when a payment cannot move to the requested status
type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move payment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AsValidationError extracts a ValidationError from err
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// KindOf classifies err
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if ve, ok := AsValidationError(err); ok {
		if ve.Retryable {
			return KindRetryable
		}
		return KindPermanent
	}
	switch {
	case errors.Is(err, ErrInvalidPaymentID),
		errors.Is(err, ErrInvalidBookingID),
		errors.Is(err, ErrInvalidTransactionHash),
		errors.Is(err, ErrInvalidContractAddress),
		errors.Is(err, ErrInvalidAmount):
		return KindClientInput
	case errors.Is(err, ErrPaymentNotFound):
		return KindNotFound
	case errors.Is(err, ErrPaymentAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindDomainState
	default:
		return KindInternal
	}
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRetryable checks if the caller may submit the same request again
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
