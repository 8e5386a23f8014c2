package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/distribution"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/ledger"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/money"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/store"
)

const defaultPageSize = 20

// PaymentService owns repayment intake, gateway confirmation, and the
// pro-rata investor distribution that follows it.
type PaymentService struct {
	Store     store.Store
	RefPrefix string
	// PageCap bounds ListPayments regardless of the requested limit.
	PageCap int
}

func (s *PaymentService) pageCap() int {
	if s.PageCap > 0 {
		return s.PageCap
	}
	return 200
}

func (s *PaymentService) newReference() string {
	prefix := s.RefPrefix
	if prefix == "" {
		prefix = "cm_driver_repay"
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// CreatePayment validates a repayment attempt against its contract and
// persists it as PENDING. When the gateway reference is empty a unique one
// is generated.
func (s *PaymentService) CreatePayment(ctx context.Context, contractID, driverID string, amountKobo int64, payerEmail, gatewayRef string) (*PaymentSnapshot, error) {
	if contractID == "" || driverID == "" {
		return nil, ErrInvalidReference
	}
	if amountKobo <= 0 {
		return nil, ErrInvalidAmount
	}

	contract, err := s.Store.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("load contract: %w", err)
	}
	// A contract owned by another driver is indistinguishable from a
	// missing one to the caller.
	if contract.DriverID != driverID {
		return nil, ErrContractNotFound
	}
	if contract.Status != models.ContractActive {
		return nil, ErrContractNotActive
	}

	remaining := ledger.RemainingBalance(contract)
	if remaining <= 0 {
		return nil, ErrContractSettled
	}
	if amountKobo > remaining {
		return nil, ErrAmountExceedsBalance
	}

	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		ref = s.newReference()
	}

	var email *string
	if trimmed := strings.ToLower(strings.TrimSpace(payerEmail)); trimmed != "" {
		email = &trimmed
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		PaymentID:  uuid.NewString(),
		ContractID: contract.ContractID,
		DriverID:   driverID,
		AmountKobo: amountKobo,
		GatewayRef: ref,
		PayerEmail: email,
		Status:     models.PaymentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	snap := paymentSnapshot(payment)
	return &snap, nil
}

// MarkFailed records a gateway failure for a PENDING payment. Failure
// callbacks replayed after the payment reached a terminal status are no-ops.
func (s *PaymentService) MarkFailed(ctx context.Context, gatewayRef, reason string) error {
	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		return ErrInvalidReference
	}
	if _, err := s.Store.MarkPaymentFailed(ctx, ref, reason); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// ListPayments returns a driver's payments newest-first, optionally filtered
// by contract and start date, capped at the configured page size.
func (s *PaymentService) ListPayments(ctx context.Context, driverID, contractID string, limit int, since *time.Time) ([]PaymentSnapshot, error) {
	if driverID == "" {
		return nil, ErrInvalidReference
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if c := s.pageCap(); limit > c {
		limit = c
	}

	payments, err := s.Store.ListPayments(ctx, driverID, contractID, limit, since)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]PaymentSnapshot, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentSnapshot(p))
	}
	return out, nil
}

// GetActiveContract returns the driver's active contract, falling back to
// the most recently closed one, or nil when the driver has no contract.
func (s *PaymentService) GetActiveContract(ctx context.Context, driverID string) (*ContractSnapshot, error) {
	if driverID == "" {
		return nil, ErrInvalidReference
	}
	contract, err := s.Store.GetActiveContractForDriver(ctx, driverID)
	if errors.Is(err, store.ErrNotFound) {
		contract, err = s.Store.GetLatestClosedContractForDriver(ctx, driverID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	snap := contractSnapshot(contract)
	return &snap, nil
}

// ConfirmOptions carries what the gateway verified about a payment.
type ConfirmOptions struct {
	// VerifiedAmountKobo is the amount the gateway actually charged; nil
	// means trust the requested amount.
	VerifiedAmountKobo *int64
	Channel            string
	Metadata           map[string]any
}

// Confirm applies a gateway-confirmed payment: flips the payment record,
// credits the contract, journals both sides, and distributes the applied
// amount across the pool's investors — all in one unit of work. It is safe
// to call any number of times with the same reference.
func (s *PaymentService) Confirm(ctx context.Context, gatewayRef string, opts ConfirmOptions) (*ConfirmResult, error) {
	ref := strings.TrimSpace(gatewayRef)
	if ref == "" {
		return nil, ErrInvalidReference
	}

	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(ctx)
		}
	}()

	payment, err := tx.GetPaymentByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}

	// Lock the contract row for the whole unit of work: confirmations of
	// different payments against the same contract must apply their balance
	// updates one at a time, or the later write clobbers the earlier one.
	contract, err := tx.GetContractForUpdate(ctx, payment.ContractID)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}

	switch payment.Status {
	case models.PaymentConfirmed:
		// Idempotent replay: no contract mutation, distribution re-run
		// defensively (it is itself a no-op once credits exist).
		dist, err := s.distribute(ctx, tx, payment, contract)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		done = true
		return &ConfirmResult{
			AlreadyProcessed: true,
			Payment:          paymentSnapshot(payment),
			Contract:         contractSnapshot(contract),
			Distribution:     dist,
		}, nil
	case models.PaymentFailed:
		reason := ""
		if payment.FailedReason != nil {
			reason = *payment.FailedReason
		}
		return nil, &PaymentFailedError{Reason: reason}
	}

	if contract.Status != models.ContractActive {
		return nil, ErrContractNotActive
	}

	verified := payment.AmountKobo
	if opts.VerifiedAmountKobo != nil {
		verified = *opts.VerifiedAmountKobo
	}
	if verified <= 0 {
		return nil, ErrInvalidAmount
	}

	remaining := ledger.RemainingBalance(contract)
	if remaining <= 0 {
		return nil, ErrContractSettled
	}

	applied := verified
	if applied > remaining {
		applied = remaining
	}
	unapplied := verified - applied

	meta := mergeMetadata(payment.Metadata, opts.Metadata)
	if opts.Channel != "" {
		meta["channel"] = opts.Channel
	}
	meta["unappliedNgn"] = money.NGN(unapplied)

	now := time.Now().UTC()
	rows, err := tx.ConfirmPayment(ctx, ref, verified, applied, now, meta)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	if err != nil || rows == 0 {
		// Another delivery won the race; surface its committed result.
		_ = tx.Rollback(ctx)
		done = true
		return s.replay(ctx, ref)
	}

	payment.Status = models.PaymentConfirmed
	payment.AmountKobo = verified
	payment.AppliedKobo = applied
	payment.ConfirmedAt = &now
	payment.FailedReason = nil
	payment.Metadata = meta

	if err := ledger.ApplyPayment(contract, applied); err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	if err := tx.UpdateContractProgress(ctx, contract); err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}

	// Journal the driver side once per reference, tolerating partial
	// replays of earlier deliveries.
	if _, err := tx.FindTransactionByReference(ctx, ref, models.TransactionRepayment); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check repayment entry: %w", err)
		}
		entry := &models.Transaction{
			TransactionID: uuid.NewString(),
			UserID:        payment.DriverID,
			ActorType:     models.ActorDriver,
			Kind:          models.TransactionRepayment,
			AmountKobo:    applied,
			GatewayRef:    ref,
			RelatedID:     contract.ContractID,
			Description:   fmt.Sprintf("Hire-purchase repayment for %s", contract.VehicleName),
			Metadata: map[string]any{
				"source":       "driver_repayment",
				"paymentId":    payment.PaymentID,
				"unappliedNgn": money.NGN(unapplied),
			},
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return nil, fmt.Errorf("journal repayment: %w", err)
		}
	}

	// The gateway already charged any excess over the remaining balance;
	// it goes to the driver's wallet, not into the void.
	if unapplied > 0 {
		if err := tx.CreditWallet(ctx, payment.DriverID, unapplied, 0); err != nil {
			return nil, fmt.Errorf("credit driver wallet: %w", err)
		}
		entry := &models.Transaction{
			TransactionID: uuid.NewString(),
			UserID:        payment.DriverID,
			ActorType:     models.ActorDriver,
			Kind:          models.TransactionWalletFunding,
			AmountKobo:    unapplied,
			GatewayRef:    ref + "_unapplied",
			RelatedID:     contract.ContractID,
			Description:   "Unapplied repayment amount credited to wallet",
			Metadata: map[string]any{
				"source":    "driver_repayment",
				"paymentId": payment.PaymentID,
			},
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return nil, fmt.Errorf("journal wallet funding: %w", err)
		}
	}

	dist, err := s.distribute(ctx, tx, payment, contract)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	done = true

	return &ConfirmResult{
		AlreadyProcessed: false,
		Payment:          paymentSnapshot(payment),
		Contract:         contractSnapshot(contract),
		Distribution:     dist,
	}, nil
}

// replay reads the committed state after a lost confirmation race and
// returns the same result the winning delivery produced.
func (s *PaymentService) replay(ctx context.Context, ref string) (*ConfirmResult, error) {
	payment, err := s.Store.GetPaymentByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	if payment.Status == models.PaymentFailed {
		reason := ""
		if payment.FailedReason != nil {
			reason = *payment.FailedReason
		}
		return nil, &PaymentFailedError{Reason: reason}
	}

	contract, err := s.Store.GetContract(ctx, payment.ContractID)
	if err != nil {
		return nil, fmt.Errorf("reload contract: %w", err)
	}

	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	dist, err := s.distribute(ctx, tx, payment, contract)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &ConfirmResult{
		AlreadyProcessed: true,
		Payment:          paymentSnapshot(payment),
		Contract:         contractSnapshot(contract),
		Distribution:     dist,
	}, nil
}

// distribute splits the applied amount across the pool's investors. A
// payment whose credits already exist is left untouched; a pool with no
// confirmed contributions yields an unallocated remainder, not an error.
func (s *PaymentService) distribute(ctx context.Context, q store.Querier, payment *models.Payment, contract *models.Contract) (DistributionResult, error) {
	result := DistributionResult{
		PaymentID: payment.PaymentID,
		PoolID:    contract.PoolID,
	}

	applied := payment.AppliedKobo
	if applied <= 0 {
		applied = payment.AmountKobo
	}

	existing, err := q.CountInvestorCredits(ctx, payment.PaymentID)
	if err != nil {
		return result, fmt.Errorf("count credits: %w", err)
	}
	if existing > 0 {
		result.DistributedAmountNgn = money.NGN(applied)
		result.InvestorCreditsCount = existing
		result.AlreadyDistributed = true
		return result, nil
	}
	if applied <= 0 {
		return result, nil
	}

	contributions, err := q.ListConfirmedPoolInvestments(ctx, contract.PoolID)
	if err != nil {
		return result, fmt.Errorf("load pool investments: %w", err)
	}

	plan := distribution.BuildPlan(applied, contributions)
	if len(plan.Credits) == 0 {
		result.DistributedAmountNgn = money.NGN(applied)
		result.RemainderNgn = money.NGN(plan.RemainderKobo)
		return result, nil
	}

	rows := make([]*models.InvestorCredit, 0, len(plan.Credits))
	for _, c := range plan.Credits {
		rows = append(rows, &models.InvestorCredit{
			CreditID:     uuid.NewString(),
			PaymentID:    payment.PaymentID,
			PoolID:       contract.PoolID,
			InvestorID:   c.InvestorID,
			AmountKobo:   c.AmountKobo,
			OwnershipBps: c.OwnershipBps,
			Status:       "POSTED",
		})
	}
	if err := q.InsertInvestorCredits(ctx, rows); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// A concurrent replay posted the credits first.
			count, cErr := q.CountInvestorCredits(ctx, payment.PaymentID)
			if cErr != nil {
				return result, fmt.Errorf("recount credits: %w", cErr)
			}
			result.DistributedAmountNgn = money.NGN(applied)
			result.InvestorCreditsCount = count
			result.AlreadyDistributed = true
			return result, nil
		}
		return result, fmt.Errorf("insert credits: %w", err)
	}

	var distributed int64
	for _, row := range rows {
		if err := q.CreditWallet(ctx, row.InvestorID, row.AmountKobo, row.AmountKobo); err != nil {
			return result, fmt.Errorf("credit investor wallet: %w", err)
		}
		entry := &models.Transaction{
			TransactionID: uuid.NewString(),
			UserID:        row.InvestorID,
			ActorType:     models.ActorInvestor,
			Kind:          models.TransactionReturnCredit,
			AmountKobo:    row.AmountKobo,
			GatewayRef:    fmt.Sprintf("%s_%s", payment.GatewayRef, row.InvestorID),
			RelatedID:     contract.PoolID,
			Description:   fmt.Sprintf("Driver repayment credit from %s", contract.VehicleName),
			Metadata: map[string]any{
				"source":       "driver_repayment",
				"contractId":   contract.ContractID,
				"paymentId":    payment.PaymentID,
				"ownershipBps": row.OwnershipBps,
			},
		}
		if err := q.InsertTransaction(ctx, entry); err != nil {
			return result, fmt.Errorf("journal investor credit: %w", err)
		}
		distributed += row.AmountKobo
	}

	result.DistributedAmountNgn = money.NGN(distributed)
	result.InvestorCreditsCount = len(rows)
	result.RemainderNgn = money.NGN(plan.RemainderKobo)
	return result, nil
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra)+2)
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
