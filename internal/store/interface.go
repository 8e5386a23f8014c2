package store

import (
	"context"
	"errors"
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned on a unique-constraint violation, which the
	// confirmation path treats as a concurrent delivery of the same event.
	ErrDuplicate = errors.New("duplicate record")
)

// Querier is the set of operations available both on a Store and inside a
// transaction.
type Querier interface {
	GetContract(ctx context.Context, contractID string) (*models.Contract, error)
	// GetContractForUpdate loads the contract and locks its row until the
	// unit of work ends, so confirmations of different payments against the
	// same contract apply their balance updates one at a time.
	GetContractForUpdate(ctx context.Context, contractID string) (*models.Contract, error)
	GetActiveContractForDriver(ctx context.Context, driverID string) (*models.Contract, error)
	GetLatestClosedContractForDriver(ctx context.Context, driverID string) (*models.Contract, error)
	UpdateContractProgress(ctx context.Context, c *models.Contract) error

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByRef(ctx context.Context, gatewayRef string) (*models.Payment, error)
	// ConfirmPayment flips a PENDING payment to CONFIRMED and reports the
	// number of rows updated; zero means another delivery won the race.
	ConfirmPayment(ctx context.Context, gatewayRef string, amountKobo, appliedKobo int64, confirmedAt time.Time, metadata map[string]any) (int64, error)
	// MarkPaymentFailed flips a PENDING payment to FAILED; it is a no-op on
	// any other status.
	MarkPaymentFailed(ctx context.Context, gatewayRef, reason string) (int64, error)
	ListPayments(ctx context.Context, driverID, contractID string, limit int, since *time.Time) ([]*models.Payment, error)

	ListConfirmedPoolInvestments(ctx context.Context, poolID string) ([]models.PoolInvestment, error)

	CountInvestorCredits(ctx context.Context, paymentID string) (int, error)
	InsertInvestorCredits(ctx context.Context, credits []*models.InvestorCredit) error

	// CreditWallet adds to a user's available balance, and to their
	// cumulative returns when returnsKobo is non-zero.
	CreditWallet(ctx context.Context, userID string, amountKobo, returnsKobo int64) error
	GetWallet(ctx context.Context, userID string) (availableKobo, returnsKobo int64, err error)

	// InsertTransaction appends a journal entry. The journal has no update
	// or delete operations.
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	FindTransactionByReference(ctx context.Context, gatewayRef string, kind models.TransactionKind) (*models.Transaction, error)
}

// Tx is a unit of work: every mutation inside it commits or aborts as a whole.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence dependency handed to the services. Implementations:
// Postgres for production, Memory for tests.
type Store interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
}
