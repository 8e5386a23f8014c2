package services

import (
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/ledger"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/money"
)

// Snapshots expose derived, presentation-safe naira values. Kobo never
// crosses this boundary.

type ContractSnapshot struct {
	ID                   string  `json:"id"`
	DriverID             string  `json:"driverId"`
	PoolID               string  `json:"poolId"`
	VehicleName          string  `json:"vehicleName"`
	PrincipalNgn         float64 `json:"principalNgn"`
	DepositNgn           float64 `json:"depositNgn"`
	TotalPayableNgn      float64 `json:"totalPayableNgn"`
	DurationWeeks        int     `json:"durationWeeks"`
	WeeklyPaymentNgn     float64 `json:"weeklyPaymentNgn"`
	StartDate            string  `json:"startDate"`
	Status               string  `json:"status"`
	TotalPaidNgn         float64 `json:"totalPaidNgn"`
	RemainingBalanceNgn  float64 `json:"remainingBalanceNgn"`
	ProgressRatio        float64 `json:"progressRatio"`
	NextDueDate          *string `json:"nextDueDate"`
	NextPaymentAmountNgn float64 `json:"nextPaymentAmountNgn"`
}

type PaymentSnapshot struct {
	ID               string  `json:"id"`
	ContractID       string  `json:"contractId"`
	DriverID         string  `json:"driverId"`
	AmountNgn        float64 `json:"amountNgn"`
	AppliedAmountNgn float64 `json:"appliedAmountNgn"`
	Reference        string  `json:"reference"`
	PayerEmail       *string `json:"payerEmail"`
	Status           string  `json:"status"`
	ConfirmedAt      *string `json:"confirmedAt"`
	FailedReason     *string `json:"failedReason"`
	CreatedAt        string  `json:"createdAt"`
}

type DistributionResult struct {
	PaymentID            string  `json:"paymentId"`
	PoolID               string  `json:"poolId"`
	DistributedAmountNgn float64 `json:"distributedAmountNgn"`
	InvestorCreditsCount int     `json:"investorCreditsCount"`
	RemainderNgn         float64 `json:"remainderNgn"`
	AlreadyDistributed   bool    `json:"alreadyDistributed"`
}

type ConfirmResult struct {
	AlreadyProcessed bool               `json:"alreadyProcessed"`
	Payment          PaymentSnapshot    `json:"payment"`
	Contract         ContractSnapshot   `json:"contract"`
	Distribution     DistributionResult `json:"distribution"`
}

func isoTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func contractSnapshot(c *models.Contract) ContractSnapshot {
	return ContractSnapshot{
		ID:                   c.ContractID,
		DriverID:             c.DriverID,
		PoolID:               c.PoolID,
		VehicleName:          c.VehicleName,
		PrincipalNgn:         money.NGN(c.PrincipalKobo),
		DepositNgn:           money.NGN(c.DepositKobo),
		TotalPayableNgn:      money.NGN(c.PayableKobo),
		DurationWeeks:        c.DurationWeeks,
		WeeklyPaymentNgn:     money.NGN(c.WeeklyKobo),
		StartDate:            c.StartDate.UTC().Format(time.RFC3339),
		Status:               string(c.Status),
		TotalPaidNgn:         money.NGN(c.PaidKobo),
		RemainingBalanceNgn:  money.NGN(ledger.RemainingBalance(c)),
		ProgressRatio:        ledger.ProgressRatio(c),
		NextDueDate:          isoTime(c.NextDueDate),
		NextPaymentAmountNgn: money.NGN(ledger.NextPaymentAmount(c)),
	}
}

func paymentSnapshot(p *models.Payment) PaymentSnapshot {
	return PaymentSnapshot{
		ID:               p.PaymentID,
		ContractID:       p.ContractID,
		DriverID:         p.DriverID,
		AmountNgn:        money.NGN(p.AmountKobo),
		AppliedAmountNgn: money.NGN(p.AppliedKobo),
		Reference:        p.GatewayRef,
		PayerEmail:       p.PayerEmail,
		Status:           string(p.Status),
		ConfirmedAt:      isoTime(p.ConfirmedAt),
		FailedReason:     p.FailedReason,
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339),
	}
}
