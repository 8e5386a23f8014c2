package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/store"
)

const (
	testDriver   = "driver-1"
	testContract = "contract-1"
	testPool     = "pool-1"
)

func newFixture(t *testing.T) (*PaymentService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedContract(&models.Contract{
		ContractID:    testContract,
		DriverID:      testDriver,
		PoolID:        testPool,
		VehicleName:   "Shuttle 07",
		PrincipalKobo: 8_000_000,
		PayableKobo:   10_000_000, // NGN 100,000
		DurationWeeks: 20,
		WeeklyKobo:    500_000, // NGN 5,000
		StartDate:     time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:        models.ContractActive,
		CreatedAt:     time.Now().UTC(),
	})
	// 70/30 pool.
	mem.SeedInvestment(models.PoolInvestment{
		InvestmentID: "i1", PoolID: testPool, InvestorID: "alice",
		AmountKobo: 7_000_000, Status: "CONFIRMED",
	})
	mem.SeedInvestment(models.PoolInvestment{
		InvestmentID: "i2", PoolID: testPool, InvestorID: "bob",
		AmountKobo: 3_000_000, Status: "CONFIRMED",
	})
	return &PaymentService{Store: mem}, mem
}

func createPending(t *testing.T, svc *PaymentService, amountKobo int64) PaymentSnapshot {
	t.Helper()
	snap, err := svc.CreatePayment(context.Background(), testContract, testDriver, amountKobo, "driver@example.com", "")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return *snap
}

func TestCreatePaymentValidation(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	if _, err := svc.CreatePayment(ctx, testContract, testDriver, 0, "", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount = %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.CreatePayment(ctx, "missing", testDriver, 1000, "", ""); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("missing contract = %v, want ErrContractNotFound", err)
	}
	if _, err := svc.CreatePayment(ctx, testContract, "other-driver", 1000, "", ""); !errors.Is(err, ErrContractNotFound) {
		t.Fatalf("foreign contract = %v, want ErrContractNotFound", err)
	}
	if _, err := svc.CreatePayment(ctx, testContract, testDriver, 10_000_001, "", ""); !errors.Is(err, ErrAmountExceedsBalance) {
		t.Fatalf("over balance = %v, want ErrAmountExceedsBalance", err)
	}
}

func TestCreatePaymentGeneratesReference(t *testing.T) {
	svc, _ := newFixture(t)
	snap := createPending(t, svc, 500_000)
	if snap.Reference == "" || snap.Status != "PENDING" {
		t.Fatalf("snapshot = %+v, want PENDING with reference", snap)
	}
	if snap.AmountNgn != 5000 {
		t.Fatalf("amountNgn = %v, want 5000", snap.AmountNgn)
	}

	other := createPending(t, svc, 500_000)
	if other.Reference == snap.Reference {
		t.Fatalf("references must be unique, both %q", snap.Reference)
	}
}

func TestCreatePaymentDuplicateReference(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	if _, err := svc.CreatePayment(ctx, testContract, testDriver, 1000, "", "ref-dup"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.CreatePayment(ctx, testContract, testDriver, 1000, "", "ref-dup"); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("second create = %v, want ErrDuplicateReference", err)
	}
}

func TestConfirmHappyPath(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()
	snap := createPending(t, svc, 500_000) // NGN 5,000

	res, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{Channel: "card"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.AlreadyProcessed {
		t.Fatal("first confirm reported alreadyProcessed")
	}
	if res.Payment.Status != "CONFIRMED" || res.Payment.AppliedAmountNgn != 5000 {
		t.Fatalf("payment = %+v, want CONFIRMED/5000", res.Payment)
	}
	if res.Contract.TotalPaidNgn != 5000 || res.Contract.Status != "ACTIVE" {
		t.Fatalf("contract = %+v, want paid 5000, ACTIVE", res.Contract)
	}
	// One installment paid: next due is the second installment date.
	wantDue := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if res.Contract.NextDueDate == nil || *res.Contract.NextDueDate != wantDue {
		t.Fatalf("nextDueDate = %v, want %s", res.Contract.NextDueDate, wantDue)
	}

	// 70/30 split of NGN 5,000.
	if res.Distribution.InvestorCreditsCount != 2 || res.Distribution.RemainderNgn != 0 {
		t.Fatalf("distribution = %+v, want 2 credits, zero remainder", res.Distribution)
	}
	credits := mem.Credits()
	byInvestor := map[string]int64{}
	for _, c := range credits {
		byInvestor[c.InvestorID] = c.AmountKobo
	}
	if byInvestor["alice"] != 350_000 || byInvestor["bob"] != 150_000 {
		t.Fatalf("credits = %v, want alice 350000 / bob 150000", byInvestor)
	}

	aliceAvail, aliceReturns, _ := mem.GetWallet(ctx, "alice")
	if aliceAvail != 350_000 || aliceReturns != 350_000 {
		t.Fatalf("alice wallet = %d/%d, want 350000/350000", aliceAvail, aliceReturns)
	}

	// Journal: one driver repayment entry plus one per credited investor.
	var repayments, returns int
	for _, entry := range mem.Journal() {
		switch entry.Kind {
		case models.TransactionRepayment:
			repayments++
		case models.TransactionReturnCredit:
			returns++
		}
	}
	if repayments != 1 || returns != 2 {
		t.Fatalf("journal = %d repayments / %d returns, want 1/2", repayments, returns)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()
	snap := createPending(t, svc, 500_000)

	first, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}

	if !second.AlreadyProcessed {
		t.Fatal("second confirm must report alreadyProcessed")
	}
	if second.Contract.TotalPaidNgn != first.Contract.TotalPaidNgn {
		t.Fatalf("contract paid changed on replay: %v -> %v", first.Contract.TotalPaidNgn, second.Contract.TotalPaidNgn)
	}
	if second.Distribution.InvestorCreditsCount != first.Distribution.InvestorCreditsCount {
		t.Fatalf("credit count changed on replay: %d -> %d", first.Distribution.InvestorCreditsCount, second.Distribution.InvestorCreditsCount)
	}
	if got := len(mem.Credits()); got != 2 {
		t.Fatalf("credits = %d after replay, want 2", got)
	}
	var repayments int
	for _, entry := range mem.Journal() {
		if entry.Kind == models.TransactionRepayment {
			repayments++
		}
	}
	if repayments != 1 {
		t.Fatalf("driver journal entries = %d after replay, want 1", repayments)
	}
}

func TestConfirmConcurrentPaymentsConserveBalance(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()

	first := createPending(t, svc, 500_000)
	second := createPending(t, svc, 300_000)

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, ref := range []string{first.Reference, second.Reference} {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			<-start
			_, err := svc.Confirm(ctx, ref, ConfirmOptions{})
			errs <- err
		}(ref)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent confirm: %v", err)
		}
	}

	// Neither confirmation may clobber the other's balance update.
	contract, err := mem.GetContract(ctx, testContract)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if contract.PaidKobo != 800_000 {
		t.Fatalf("paid = %d, want 800000: a confirmation's write was lost", contract.PaidKobo)
	}

	var credited int64
	for _, c := range mem.Credits() {
		credited += c.AmountKobo
	}
	if credited != 800_000 {
		t.Fatalf("credits sum = %d, want 800000 matching contract progress", credited)
	}
	var repayments int
	for _, entry := range mem.Journal() {
		if entry.Kind == models.TransactionRepayment {
			repayments++
		}
	}
	if repayments != 2 {
		t.Fatalf("repayment entries = %d, want 2", repayments)
	}
}

// staleReadStore simulates a delivery that reads its payment just before a
// concurrent delivery of the same reference commits: the read reports
// PENDING, the guarded confirmation update then matches zero rows.
type staleReadStore struct {
	store.Store
	stale bool
}

func (s *staleReadStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &staleReadTx{Tx: tx, s: s}, nil
}

type staleReadTx struct {
	store.Tx
	s *staleReadStore
}

func (t *staleReadTx) GetPaymentByRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	p, err := t.Tx.GetPaymentByRef(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}
	if t.s.stale {
		t.s.stale = false
		cp := *p
		cp.Status = models.PaymentPending
		cp.AppliedKobo = 0
		cp.ConfirmedAt = nil
		return &cp, nil
	}
	return p, nil
}

func TestConfirmLostRaceReturnsCommittedResult(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()
	wrapped := &staleReadStore{Store: mem}
	svc.Store = wrapped

	snap := createPending(t, svc, 500_000)
	first, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("winning confirm: %v", err)
	}

	// The losing delivery saw PENDING, so it walks the full confirmation
	// path and loses the guarded update.
	wrapped.stale = true
	second, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("losing confirm must not error: %v", err)
	}
	if !second.AlreadyProcessed {
		t.Fatal("losing confirm must report alreadyProcessed")
	}
	if second.Payment.Status != "CONFIRMED" || second.Payment.AppliedAmountNgn != first.Payment.AppliedAmountNgn {
		t.Fatalf("losing result = %+v, want the winner's committed payment", second.Payment)
	}
	if second.Contract.TotalPaidNgn != first.Contract.TotalPaidNgn {
		t.Fatalf("losing result paid = %v, want %v", second.Contract.TotalPaidNgn, first.Contract.TotalPaidNgn)
	}

	// No double posting from the losing delivery.
	contract, err := mem.GetContract(ctx, testContract)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if contract.PaidKobo != 500_000 {
		t.Fatalf("paid = %d, want 500000", contract.PaidKobo)
	}
	if got := len(mem.Credits()); got != 2 {
		t.Fatalf("credits = %d, want 2", got)
	}
	var repayments int
	for _, entry := range mem.Journal() {
		if entry.Kind == models.TransactionRepayment {
			repayments++
		}
	}
	if repayments != 1 {
		t.Fatalf("repayment entries = %d, want 1", repayments)
	}
}

func TestConfirmOverpaymentFundsWallet(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()

	// Pay down to a NGN 2,000 remaining balance.
	snap := createPending(t, svc, 9_800_000)
	if _, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{}); err != nil {
		t.Fatalf("setup confirm: %v", err)
	}

	// Gateway verifies NGN 5,000 against the NGN 2,000 remainder.
	last, err := svc.CreatePayment(ctx, testContract, testDriver, 200_000, "", "")
	if err != nil {
		t.Fatalf("create final payment: %v", err)
	}
	verified := int64(500_000)
	res, err := svc.Confirm(ctx, last.Reference, ConfirmOptions{VerifiedAmountKobo: &verified})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if res.Payment.AppliedAmountNgn != 2000 {
		t.Fatalf("applied = %v, want 2000", res.Payment.AppliedAmountNgn)
	}
	if res.Contract.Status != "COMPLETED" || res.Contract.RemainingBalanceNgn != 0 {
		t.Fatalf("contract = %+v, want COMPLETED/0", res.Contract)
	}
	if res.Contract.NextDueDate != nil {
		t.Fatalf("completed contract nextDueDate = %v, want nil", res.Contract.NextDueDate)
	}

	// The NGN 3,000 excess lands in the driver's wallet with its own entry.
	avail, _, _ := mem.GetWallet(ctx, testDriver)
	if avail != 300_000 {
		t.Fatalf("driver wallet = %d, want 300000", avail)
	}
	var funding *models.Transaction
	for _, entry := range mem.Journal() {
		if entry.Kind == models.TransactionWalletFunding {
			funding = entry
		}
	}
	if funding == nil || funding.AmountKobo != 300_000 {
		t.Fatalf("wallet funding entry = %+v, want 300000", funding)
	}
	if funding.GatewayRef != last.Reference+"_unapplied" {
		t.Fatalf("funding ref = %q, want %q", funding.GatewayRef, last.Reference+"_unapplied")
	}
}

func TestConfirmConservation(t *testing.T) {
	svc, mem := newFixture(t)
	ctx := context.Background()
	// An amount that does not divide evenly over 70/30.
	snap := createPending(t, svc, 100_001)
	res, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var total int64
	for _, c := range mem.Credits() {
		total += c.AmountKobo
	}
	if total != 100_001 {
		t.Fatalf("credits sum = %d, want exactly 100001", total)
	}
	if res.Distribution.RemainderNgn != 0 {
		t.Fatalf("remainder = %v, want 0", res.Distribution.RemainderNgn)
	}
}

func TestConfirmEmptyPool(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedContract(&models.Contract{
		ContractID:    testContract,
		DriverID:      testDriver,
		PoolID:        "empty-pool",
		PayableKobo:   1_000_000,
		DurationWeeks: 10,
		WeeklyKobo:    100_000,
		StartDate:     time.Now().UTC(),
		Status:        models.ContractActive,
		CreatedAt:     time.Now().UTC(),
	})
	svc := &PaymentService{Store: mem}
	ctx := context.Background()

	snap, err := svc.CreatePayment(ctx, testContract, testDriver, 100_000, "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("empty pool must not error: %v", err)
	}
	if res.Distribution.InvestorCreditsCount != 0 {
		t.Fatalf("credits = %d, want 0", res.Distribution.InvestorCreditsCount)
	}
	if res.Distribution.RemainderNgn != 1000 {
		t.Fatalf("remainder = %v, want full 1000", res.Distribution.RemainderNgn)
	}
	if len(mem.Credits()) != 0 {
		t.Fatal("no credit rows expected for an empty pool")
	}
}

func TestConfirmUnknownReference(t *testing.T) {
	svc, _ := newFixture(t)
	if _, err := svc.Confirm(context.Background(), "no-such-ref", ConfirmOptions{}); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("unknown ref = %v, want ErrPaymentNotFound", err)
	}
}

func TestConfirmFailedPayment(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	snap := createPending(t, svc, 100_000)

	if err := svc.MarkFailed(ctx, snap.Reference, "card declined"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	_, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	var failed *PaymentFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("confirm failed payment = %v, want PaymentFailedError", err)
	}
	if failed.Reason != "card declined" {
		t.Fatalf("reason = %q, want stored reason", failed.Reason)
	}
}

func TestMarkFailedIsOneWay(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	snap := createPending(t, svc, 100_000)

	if _, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// A late failure callback after confirmation is a no-op.
	if err := svc.MarkFailed(ctx, snap.Reference, "late failure"); err != nil {
		t.Fatalf("late markFailed: %v", err)
	}
	res, err := svc.Confirm(ctx, snap.Reference, ConfirmOptions{})
	if err != nil {
		t.Fatalf("replay confirm: %v", err)
	}
	if res.Payment.Status != "CONFIRMED" {
		t.Fatalf("status = %s, confirmed payment must never fail", res.Payment.Status)
	}
}

func TestListPaymentsCapped(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	svc.PageCap = 3

	for i := 0; i < 5; i++ {
		createPending(t, svc, 1_000)
	}

	got, err := svc.ListPayments(ctx, testDriver, "", 100, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("cap ignored, got %d payments", len(got))
	}

	if _, err := svc.ListPayments(ctx, "", "", 10, nil); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("missing driver = %v, want ErrInvalidReference", err)
	}
}

func TestGetActiveContract(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	snap, err := svc.GetActiveContract(ctx, testDriver)
	if err != nil || snap == nil {
		t.Fatalf("active contract: %v, %v", snap, err)
	}
	if snap.Status != "ACTIVE" || snap.RemainingBalanceNgn != 100_000 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.NextPaymentAmountNgn != 5000 {
		t.Fatalf("nextPaymentAmountNgn = %v, want weekly 5000", snap.NextPaymentAmountNgn)
	}

	none, err := svc.GetActiveContract(ctx, "unknown-driver")
	if err != nil || none != nil {
		t.Fatalf("unknown driver = %v, %v; want nil, nil", none, err)
	}

	// Once completed, the contract is still returned as history.
	pay := createPending(t, svc, 10_000_000)
	if _, err := svc.Confirm(ctx, pay.Reference, ConfirmOptions{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	hist, err := svc.GetActiveContract(ctx, testDriver)
	if err != nil || hist == nil {
		t.Fatalf("historical contract: %v, %v", hist, err)
	}
	if hist.Status != "COMPLETED" || hist.ProgressRatio != 1 {
		t.Fatalf("historical = %+v, want COMPLETED/1.0", hist)
	}
}

func TestConfirmAfterSettlementRejected(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	// Two pending payments; the first one settles the whole contract.
	full := createPending(t, svc, 10_000_000)
	second := createPending(t, svc, 100_000)
	if _, err := svc.Confirm(ctx, full.Reference, ConfirmOptions{}); err != nil {
		t.Fatalf("confirm full: %v", err)
	}

	if _, err := svc.Confirm(ctx, second.Reference, ConfirmOptions{}); !errors.Is(err, ErrContractNotActive) {
		t.Fatalf("confirm on settled contract = %v, want ErrContractNotActive", err)
	}
}
