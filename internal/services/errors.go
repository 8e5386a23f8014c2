package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReference     = errors.New("payment reference is required")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrContractNotFound     = errors.New("contract not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrContractNotActive    = errors.New("contract is not active")
	ErrContractSettled      = errors.New("contract is already fully paid")
	ErrAmountExceedsBalance = errors.New("amount exceeds remaining balance")
	ErrDuplicateReference   = errors.New("payment reference already exists")
)

// PaymentFailedError reports an attempt to confirm a payment that has already
// failed; the stored failure reason is surfaced verbatim.
type PaymentFailedError struct {
	Reason string
}

func (e *PaymentFailedError) Error() string {
	if e.Reason == "" {
		return "payment has already failed"
	}
	return fmt.Sprintf("payment has already failed: %s", e.Reason)
}
