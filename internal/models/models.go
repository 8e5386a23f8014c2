package models

import "time"

type ContractStatus string

const (
	ContractActive    ContractStatus = "ACTIVE"
	ContractCompleted ContractStatus = "COMPLETED"
	ContractDefaulted ContractStatus = "DEFAULTED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type TransactionKind string

const (
	TransactionRepayment     TransactionKind = "repayment"
	TransactionReturnCredit  TransactionKind = "return"
	TransactionWalletFunding TransactionKind = "wallet_funding"
)

type ActorType string

const (
	ActorDriver   ActorType = "driver"
	ActorInvestor ActorType = "investor"
)

// All monetary fields are int64 kobo (NGN minor units).

// Contract is a hire-purchase agreement between a driver and the pool
// backing the vehicle.
type Contract struct {
	ContractID    string
	DriverID      string
	PoolID        string
	VehicleName   string
	PrincipalKobo int64
	DepositKobo   int64
	PayableKobo   int64
	DurationWeeks int
	WeeklyKobo    int64
	StartDate     time.Time
	Status        ContractStatus
	PaidKobo      int64
	NextDueDate   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is a single repayment attempt, keyed by the gateway reference.
type Payment struct {
	PaymentID    string
	ContractID   string
	DriverID     string
	AmountKobo   int64
	AppliedKobo  int64
	GatewayRef   string
	PayerEmail   *string
	Status       PaymentStatus
	ConfirmedAt  *time.Time
	FailedReason *string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PoolInvestment is a confirmed investor contribution to a pool. Rows are
// owned by the investment subsystem; this service only reads them.
type PoolInvestment struct {
	InvestmentID string
	PoolID       string
	InvestorID   string
	AmountKobo   int64
	Status       string
	CreatedAt    time.Time
}

// InvestorCredit is one investor's share of one confirmed payment.
// At most one row may exist per (payment, investor) pair.
type InvestorCredit struct {
	CreditID     string
	PaymentID    string
	PoolID       string
	InvestorID   string
	AmountKobo   int64
	OwnershipBps int
	Status       string
	CreatedAt    time.Time
}

// Transaction is an append-only journal entry. Corrections are made with
// new, oppositely-signed entries; rows are never updated or deleted.
type Transaction struct {
	TransactionID string
	UserID        string
	ActorType     ActorType
	Kind          TransactionKind
	AmountKobo    int64
	GatewayRef    string
	RelatedID     string
	Description   string
	Metadata      map[string]any
	CreatedAt     time.Time
}
