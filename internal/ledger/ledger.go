// Package ledger holds the hire-purchase contract arithmetic. Functions here
// are pure; persistence happens inside the caller's transaction.
package ledger

import (
	"errors"
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
)

var (
	ErrContractNotActive = errors.New("contract is not active")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrExceedsBalance    = errors.New("amount exceeds remaining balance")
)

// RemainingBalance is the outstanding kobo balance, never negative.
func RemainingBalance(c *models.Contract) int64 {
	remaining := c.PayableKobo - c.PaidKobo
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ProgressRatio is paid/payable clamped to [0, 1].
func ProgressRatio(c *models.Contract) float64 {
	if c.PayableKobo <= 0 {
		return 0
	}
	ratio := float64(c.PaidKobo) / float64(c.PayableKobo)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// NextDueDate derives the date the next weekly installment falls due, or nil
// when the contract has no usable schedule or nothing left to pay.
func NextDueDate(c *models.Contract) *time.Time {
	if c.WeeklyKobo <= 0 || c.DurationWeeks <= 0 {
		return nil
	}
	if c.PaidKobo >= c.PayableKobo {
		return nil
	}
	paidInstallments := c.PaidKobo / c.WeeklyKobo
	if paidInstallments >= int64(c.DurationWeeks) {
		return nil
	}
	due := c.StartDate.AddDate(0, 0, int(paidInstallments+1)*7)
	return &due
}

// ApplyPayment credits amount kobo against the contract, recomputing status
// and next due date. The contract must be ACTIVE and the amount must not
// exceed the remaining balance; status never reverts once terminal.
func ApplyPayment(c *models.Contract, amountKobo int64) error {
	if c.Status != models.ContractActive {
		return ErrContractNotActive
	}
	if amountKobo <= 0 {
		return ErrInvalidAmount
	}
	if amountKobo > RemainingBalance(c) {
		return ErrExceedsBalance
	}

	c.PaidKobo += amountKobo
	if RemainingBalance(c) == 0 {
		c.Status = models.ContractCompleted
		c.NextDueDate = nil
	} else {
		c.NextDueDate = NextDueDate(c)
	}
	return nil
}

// NextPaymentAmount is the smaller of the weekly installment and what is
// still owed.
func NextPaymentAmount(c *models.Contract) int64 {
	remaining := RemainingBalance(c)
	if c.WeeklyKobo < remaining {
		return c.WeeklyKobo
	}
	return remaining
}
