package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the engine wraps exactly one of these.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrExternalFailure    = errors.New("external failure")
	// ErrFatal marks sequencing bugs (stale correlation, corrupt trigger type).
	// The invocation is rolled back and the error surfaces to the host.
	ErrFatal = errors.New("fatal")
)

// Named preconditions.
var (
	ErrTriggerNotDue       = fmt.Errorf("%w: trigger execution time has not yet elapsed", ErrPreconditionNotMet)
	ErrOrderNotFullyFilled = fmt.Errorf("%w: limit order has not been completely filled", ErrPreconditionNotMet)
	ErrVaultCancelled      = fmt.Errorf("%w: vault is already cancelled", ErrPreconditionNotMet)
	ErrSagaInFlight        = fmt.Errorf("%w: vault has an operation awaiting a reply", ErrPreconditionNotMet)
	ErrPaused              = fmt.Errorf("%w: engine is paused", ErrPreconditionNotMet)
)

// SkipReason classifies why an execution did not move funds.
type SkipReason string

const (
	SkipInsufficientFunds         SkipReason = "insufficient_funds"
	SkipSlippageToleranceExceeded SkipReason = "slippage_tolerance_exceeded"
	SkipUnknownFailure            SkipReason = "unknown_failure"
	SkipSwapAmountAdjustedToZero  SkipReason = "swap_amount_adjusted_to_zero"
)

// VenueError is the typed failure a venue adapter reports for an external call.
type VenueError struct {
	Reason  SkipReason `json:"reason"`
	Message string     `json:"message"`
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue: %s: %s", e.Reason, e.Message)
}

func (e *VenueError) Unwrap() error { return ErrExternalFailure }

// AsVenueError extracts a VenueError from err, defaulting to an unknown failure.
func AsVenueError(err error) *VenueError {
	if err == nil {
		return nil
	}
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve
	}
	return &VenueError{Reason: SkipUnknownFailure, Message: err.Error()}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
