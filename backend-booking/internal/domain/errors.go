package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound     = errors.New("booking not found")
	ErrNotBookingOwner     = errors.New("booking belongs to another tenant")
	ErrPropertyUnavailable = errors.New("property is not available for the selected dates")
	ErrInvalidTransition   = errors.New("illegal booking status transition")

	// Validation errors
	ErrInvalidTenantID  = errors.New("invalid tenant id")
	ErrInvalidBookingID = errors.New("invalid booking id")
	ErrInvalidProperty  = errors.New("invalid property id")
	ErrInvalidDate      = errors.New("dates must use the YYYY-MM-DD format")
	ErrStartDateInPast  = errors.New("start date cannot be in the past")
	ErrInvalidDateRange = errors.New("end date must be after start date")
	ErrMinimumStay      = errors.New("booking must be at least one night")
	ErrInvalidWallet    = errors.New("wallet address must be 0x followed by 40 hex characters")

	// Wallet errors
	ErrWalletNotRegistered = errors.New("no wallet address registered for this tenant")
	ErrWalletMismatch      = errors.New("wallet address does not match the registered wallet")

	// Listing errors
	ErrPropertyNotFound = errors.New("property not found")
	ErrInvalidPrice     = errors.New("property has no valid price")

	// Collaborator errors
	ErrUpstreamUnavailable = errors.New("dependent service unavailable")
)

// ErrorKind classifies errors for transport mapping and retry decisions
type ErrorKind string

const (
	KindClientInput ErrorKind = "client_input"
	KindDomainState ErrorKind = "domain_state"
	KindNotFound    ErrorKind = "not_found"
	KindForbidden   ErrorKind = "forbidden"
	KindConflict    ErrorKind = "conflict"
	KindRetryable   ErrorKind = "retryable"
	KindInternal    ErrorKind = "internal"
)

// TransitionError is returned when a booking cannot move to the requested status
type TransitionError struct {
	Action string
	From   BookingStatus
	To     BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Cannot %s booking in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// KindOf classifies err
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTenantID),
		errors.Is(err, ErrInvalidBookingID),
		errors.Is(err, ErrInvalidProperty),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrStartDateInPast),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrMinimumStay),
		errors.Is(err, ErrInvalidWallet),
		errors.Is(err, ErrInvalidPrice):
		return KindClientInput
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrPropertyNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotBookingOwner),
		errors.Is(err, ErrWalletNotRegistered),
		errors.Is(err, ErrWalletMismatch):
		return KindForbidden
	case errors.Is(err, ErrPropertyUnavailable):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindDomainState
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindRetryable
	default:
		return KindInternal
	}
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return KindOf(err) == KindClientInput
}
