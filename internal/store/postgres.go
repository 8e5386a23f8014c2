package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/models"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, db: pool}
}

type postgresTx struct {
	Postgres
	tx pgx.Tx
}

func (s *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresTx{Postgres: Postgres{pool: s.pool, db: tx}, tx: tx}, nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

const contractColumns = `contract_id, driver_id, pool_id, vehicle_name,
	principal_kobo, deposit_kobo, payable_kobo, duration_weeks, weekly_kobo,
	start_date, status, paid_kobo, next_due_date, created_at, updated_at`

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	var nextDue sql.NullTime
	err := row.Scan(
		&c.ContractID,
		&c.DriverID,
		&c.PoolID,
		&c.VehicleName,
		&c.PrincipalKobo,
		&c.DepositKobo,
		&c.PayableKobo,
		&c.DurationWeeks,
		&c.WeeklyKobo,
		&c.StartDate,
		&c.Status,
		&c.PaidKobo,
		&nextDue,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if nextDue.Valid {
		c.NextDueDate = &nextDue.Time
	}
	return &c, nil
}

func (s *Postgres) GetContract(ctx context.Context, contractID string) (*models.Contract, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM hp_contracts WHERE contract_id=$1
	`, contractID)
	return scanContract(row)
}

func (s *Postgres) GetContractForUpdate(ctx context.Context, contractID string) (*models.Contract, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM hp_contracts WHERE contract_id=$1
		FOR UPDATE
	`, contractID)
	return scanContract(row)
}

func (s *Postgres) GetActiveContractForDriver(ctx context.Context, driverID string) (*models.Contract, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM hp_contracts
		WHERE driver_id=$1 AND status='ACTIVE'
		ORDER BY created_at DESC
		LIMIT 1
	`, driverID)
	return scanContract(row)
}

func (s *Postgres) GetLatestClosedContractForDriver(ctx context.Context, driverID string) (*models.Contract, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+contractColumns+`
		FROM hp_contracts
		WHERE driver_id=$1 AND status IN ('COMPLETED','DEFAULTED')
		ORDER BY updated_at DESC
		LIMIT 1
	`, driverID)
	return scanContract(row)
}

func (s *Postgres) UpdateContractProgress(ctx context.Context, c *models.Contract) error {
	_, err := s.db.Exec(ctx, `
		UPDATE hp_contracts
		SET paid_kobo=$2, status=$3, next_due_date=$4, updated_at=now()
		WHERE contract_id=$1
	`, c.ContractID, c.PaidKobo, c.Status, c.NextDueDate)
	return err
}

const paymentColumns = `payment_id, contract_id, driver_id, amount_kobo,
	applied_kobo, gateway_ref, payer_email, status, confirmed_at,
	failed_reason, metadata, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var payerEmail, failedReason sql.NullString
	var confirmedAt sql.NullTime
	err := row.Scan(
		&p.PaymentID,
		&p.ContractID,
		&p.DriverID,
		&p.AmountKobo,
		&p.AppliedKobo,
		&p.GatewayRef,
		&payerEmail,
		&p.Status,
		&confirmedAt,
		&failedReason,
		&p.Metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if payerEmail.Valid {
		p.PayerEmail = &payerEmail.String
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	if failedReason.Valid {
		p.FailedReason = &failedReason.String
	}
	return &p, nil
}

func (s *Postgres) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_payments (
			payment_id, contract_id, driver_id, amount_kobo, applied_kobo,
			gateway_ref, payer_email, status, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		p.PaymentID,
		p.ContractID,
		p.DriverID,
		p.AmountKobo,
		p.AppliedKobo,
		p.GatewayRef,
		p.PayerEmail,
		p.Status,
		p.Metadata,
	)
	return mapError(err)
}

func (s *Postgres) GetPaymentByRef(ctx context.Context, gatewayRef string) (*models.Payment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM driver_payments WHERE gateway_ref=$1
	`, gatewayRef)
	return scanPayment(row)
}

func (s *Postgres) ConfirmPayment(ctx context.Context, gatewayRef string, amountKobo, appliedKobo int64, confirmedAt time.Time, metadata map[string]any) (int64, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE driver_payments
		SET status='CONFIRMED', amount_kobo=$2, applied_kobo=$3,
			confirmed_at=$4, failed_reason=NULL, metadata=$5, updated_at=now()
		WHERE gateway_ref=$1 AND status='PENDING'
	`, gatewayRef, amountKobo, appliedKobo, confirmedAt, metadata)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected(), nil
}

func (s *Postgres) MarkPaymentFailed(ctx context.Context, gatewayRef, reason string) (int64, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE driver_payments
		SET status='FAILED', failed_reason=$2, updated_at=now()
		WHERE gateway_ref=$1 AND status='PENDING'
	`, gatewayRef, reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (s *Postgres) ListPayments(ctx context.Context, driverID, contractID string, limit int, since *time.Time) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM driver_payments
		WHERE driver_id=$1
			AND ($2='' OR contract_id=$2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := s.db.Query(ctx, query, driverID, contractID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Postgres) ListConfirmedPoolInvestments(ctx context.Context, poolID string) ([]models.PoolInvestment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT investment_id, pool_id, investor_id, amount_kobo, status, created_at
		FROM pool_investments
		WHERE pool_id=$1 AND status='CONFIRMED'
		ORDER BY created_at
	`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PoolInvestment
	for rows.Next() {
		var inv models.PoolInvestment
		if err := rows.Scan(
			&inv.InvestmentID,
			&inv.PoolID,
			&inv.InvestorID,
			&inv.AmountKobo,
			&inv.Status,
			&inv.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Postgres) CountInvestorCredits(ctx context.Context, paymentID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM investor_credits WHERE payment_id=$1
	`, paymentID).Scan(&n)
	return n, err
}

func (s *Postgres) InsertInvestorCredits(ctx context.Context, credits []*models.InvestorCredit) error {
	for _, c := range credits {
		_, err := s.db.Exec(ctx, `
			INSERT INTO investor_credits (
				credit_id, payment_id, pool_id, investor_id,
				amount_kobo, ownership_bps, status
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			c.CreditID,
			c.PaymentID,
			c.PoolID,
			c.InvestorID,
			c.AmountKobo,
			c.OwnershipBps,
			c.Status,
		)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (s *Postgres) CreditWallet(ctx context.Context, userID string, amountKobo, returnsKobo int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO wallets (user_id, available_kobo, total_returns_kobo)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET available_kobo = wallets.available_kobo + EXCLUDED.available_kobo,
			total_returns_kobo = wallets.total_returns_kobo + EXCLUDED.total_returns_kobo,
			updated_at = now()
	`, userID, amountKobo, returnsKobo)
	return err
}

func (s *Postgres) GetWallet(ctx context.Context, userID string) (int64, int64, error) {
	var available, returns int64
	err := s.db.QueryRow(ctx, `
		SELECT available_kobo, total_returns_kobo FROM wallets WHERE user_id=$1
	`, userID).Scan(&available, &returns)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	return available, returns, err
}

func (s *Postgres) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (
			transaction_id, user_id, actor_type, kind, amount_kobo,
			gateway_ref, related_id, description, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		t.TransactionID,
		t.UserID,
		t.ActorType,
		t.Kind,
		t.AmountKobo,
		t.GatewayRef,
		t.RelatedID,
		t.Description,
		t.Metadata,
	)
	return mapError(err)
}

func (s *Postgres) FindTransactionByReference(ctx context.Context, gatewayRef string, kind models.TransactionKind) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRow(ctx, `
		SELECT transaction_id, user_id, actor_type, kind, amount_kobo,
			gateway_ref, related_id, description, metadata, created_at
		FROM transactions
		WHERE gateway_ref=$1 AND kind=$2
		LIMIT 1
	`, gatewayRef, kind).Scan(
		&t.TransactionID,
		&t.UserID,
		&t.ActorType,
		&t.Kind,
		&t.AmountKobo,
		&t.GatewayRef,
		&t.RelatedID,
		&t.Description,
		&t.Metadata,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}
