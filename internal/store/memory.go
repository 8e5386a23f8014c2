package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
)

// Memory is an in-memory Store used by the tests. Each method is atomic
// under a single mutex; Begin hands back the same state, so a rolled-back
// unit of work does not undo writes already made inside it. The service
// orders its mutations so that the only rollback paths occur before any
// write (lost CAS, duplicate insert), which keeps this fake honest.
// GetContractForUpdate inside a unit of work takes a per-contract lock held
// until Commit or Rollback, matching the row lock the production store takes.
type Memory struct {
	mu          sync.Mutex
	contracts   map[string]*models.Contract
	payments    map[string]*models.Payment // keyed by gateway reference
	investments []models.PoolInvestment
	credits     []*models.InvestorCredit
	wallets     map[string]*walletRow
	journal     []*models.Transaction
	rowLocks    map[string]*sync.Mutex
}

type walletRow struct {
	availableKobo int64
	returnsKobo   int64
}

func NewMemory() *Memory {
	return &Memory{
		contracts: make(map[string]*models.Contract),
		payments:  make(map[string]*models.Payment),
		wallets:   make(map[string]*walletRow),
		rowLocks:  make(map[string]*sync.Mutex),
	}
}

type memoryTx struct {
	*Memory
	unlocks []func()
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{Memory: m}, nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.release()
	return nil
}

func (t *memoryTx) release() {
	for _, unlock := range t.unlocks {
		unlock()
	}
	t.unlocks = nil
}

func (m *Memory) contractLock(contractID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.rowLocks[contractID]
	if !ok {
		lock = &sync.Mutex{}
		m.rowLocks[contractID] = lock
	}
	return lock
}

// GetContractForUpdate inside a unit of work blocks until any other unit of
// work holding the same contract commits or rolls back.
func (t *memoryTx) GetContractForUpdate(ctx context.Context, contractID string) (*models.Contract, error) {
	lock := t.contractLock(contractID)
	lock.Lock()
	t.unlocks = append(t.unlocks, lock.Unlock)
	return t.GetContract(ctx, contractID)
}

// SeedContract installs a contract fixture.
func (m *Memory) SeedContract(c *models.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.ContractID] = &cp
}

// SeedInvestment installs a pool-investment fixture.
func (m *Memory) SeedInvestment(inv models.PoolInvestment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.investments = append(m.investments, inv)
}

// Journal returns a copy of all recorded journal entries.
func (m *Memory) Journal() []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Transaction, len(m.journal))
	copy(out, m.journal)
	return out
}

// Credits returns a copy of all investor-credit rows.
func (m *Memory) Credits() []*models.InvestorCredit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.InvestorCredit, len(m.credits))
	copy(out, m.credits)
	return out
}

func copyContract(c *models.Contract) *models.Contract {
	cp := *c
	if c.NextDueDate != nil {
		d := *c.NextDueDate
		cp.NextDueDate = &d
	}
	return &cp
}

func copyPayment(p *models.Payment) *models.Payment {
	cp := *p
	if p.ConfirmedAt != nil {
		t := *p.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}

func (m *Memory) GetContract(ctx context.Context, contractID string) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[contractID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyContract(c), nil
}

// GetContractForUpdate on the bare store has no surrounding unit of work, so
// there is nothing to hold a lock for; it reads like GetContract.
func (m *Memory) GetContractForUpdate(ctx context.Context, contractID string) (*models.Contract, error) {
	return m.GetContract(ctx, contractID)
}

func (m *Memory) GetActiveContractForDriver(ctx context.Context, driverID string) (*models.Contract, error) {
	return m.latestContract(driverID, func(c *models.Contract) bool {
		return c.Status == models.ContractActive
	})
}

func (m *Memory) GetLatestClosedContractForDriver(ctx context.Context, driverID string) (*models.Contract, error) {
	return m.latestContract(driverID, func(c *models.Contract) bool {
		return c.Status != models.ContractActive
	})
}

func (m *Memory) latestContract(driverID string, match func(*models.Contract) bool) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Contract
	for _, c := range m.contracts {
		if c.DriverID != driverID || !match(c) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return copyContract(best), nil
}

func (m *Memory) UpdateContractProgress(ctx context.Context, c *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.contracts[c.ContractID]
	if !ok {
		return ErrNotFound
	}
	existing.PaidKobo = c.PaidKobo
	existing.Status = c.Status
	existing.NextDueDate = c.NextDueDate
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) CreatePayment(ctx context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.payments[p.GatewayRef]; exists {
		return ErrDuplicate
	}
	cp := copyPayment(p)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.payments[p.GatewayRef] = cp
	return nil
}

func (m *Memory) GetPaymentByRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[gatewayRef]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPayment(p), nil
}

func (m *Memory) ConfirmPayment(ctx context.Context, gatewayRef string, amountKobo, appliedKobo int64, confirmedAt time.Time, metadata map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[gatewayRef]
	if !ok || p.Status != models.PaymentPending {
		return 0, nil
	}
	p.Status = models.PaymentConfirmed
	p.AmountKobo = amountKobo
	p.AppliedKobo = appliedKobo
	p.ConfirmedAt = &confirmedAt
	p.FailedReason = nil
	p.Metadata = metadata
	p.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (m *Memory) MarkPaymentFailed(ctx context.Context, gatewayRef, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[gatewayRef]
	if !ok || p.Status != models.PaymentPending {
		return 0, nil
	}
	p.Status = models.PaymentFailed
	p.FailedReason = &reason
	p.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (m *Memory) ListPayments(ctx context.Context, driverID, contractID string, limit int, since *time.Time) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.DriverID != driverID {
			continue
		}
		if contractID != "" && p.ContractID != contractID {
			continue
		}
		if since != nil && p.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, copyPayment(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListConfirmedPoolInvestments(ctx context.Context, poolID string) ([]models.PoolInvestment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PoolInvestment
	for _, inv := range m.investments {
		if inv.PoolID == poolID && inv.Status == "CONFIRMED" {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *Memory) CountInvestorCredits(ctx context.Context, paymentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.credits {
		if c.PaymentID == paymentID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertInvestorCredits(ctx context.Context, credits []*models.InvestorCredit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range credits {
		for _, existing := range m.credits {
			if existing.PaymentID == c.PaymentID && existing.InvestorID == c.InvestorID {
				return ErrDuplicate
			}
		}
		cp := *c
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		m.credits = append(m.credits, &cp)
	}
	return nil
}

func (m *Memory) CreditWallet(ctx context.Context, userID string, amountKobo, returnsKobo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		w = &walletRow{}
		m.wallets[userID] = w
	}
	w.availableKobo += amountKobo
	w.returnsKobo += returnsKobo
	return nil
}

func (m *Memory) GetWallet(ctx context.Context, userID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[userID]
	if !ok {
		return 0, 0, nil
	}
	return w.availableKobo, w.returnsKobo, nil
}

func (m *Memory) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.journal = append(m.journal, &cp)
	return nil
}

func (m *Memory) FindTransactionByReference(ctx context.Context, gatewayRef string, kind models.TransactionKind) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.journal {
		if t.GatewayRef == gatewayRef && t.Kind == kind {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}
