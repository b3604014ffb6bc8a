package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// Querier is the subset of sqlx satisfied by both *sqlx.DB and *sqlx.Tx, so
// the same repository methods run standalone or inside an atomic unit.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

var (
	_ Querier = (*sqlx.DB)(nil)
	_ Querier = (*sqlx.Tx)(nil)
)

// Store interfaces are what the domain services depend on. The concrete
// repositories below implement them against Postgres; tests substitute fakes.

// LedgerStore persists transaction envelopes and journal entries
type LedgerStore interface {
	WithTx(tx *sqlx.Tx) LedgerStore
	InsertTransaction(ctx context.Context, tx *entities.Transaction) error
	InsertEntries(ctx context.Context, entries []*entities.LedgerEntry) error
	GetTransactionByID(ctx context.Context, txID uuid.UUID) (*entities.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, txID uuid.UUID, status entities.TransactionStatus) error
	GetEntriesByTransactionID(ctx context.Context, txID uuid.UUID) ([]*entities.LedgerEntry, error)
	GetEntriesByUser(ctx context.Context, userID uuid.UUID) ([]*entities.LedgerEntry, error)
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Transaction, error)
	CountTransactionsByReference(ctx context.Context, refType entities.ReferenceType, refID, userID uuid.UUID) (int, error)
	GetTotalDebitsAndCredits(ctx context.Context) (decimal.Decimal, decimal.Decimal, error)
	ListUnbalancedTransactions(ctx context.Context, epsilon decimal.Decimal) ([]uuid.UUID, error)
	ListJournalUsers(ctx context.Context) ([]uuid.UUID, error)
}

// WalletStore persists the materialized wallet view
type WalletStore interface {
	WithTx(tx *sqlx.Tx) WalletStore
	GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
	GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error)
	Save(ctx context.Context, wallet *entities.Wallet) error
	SetPreference(ctx context.Context, userID uuid.UUID, pref entities.PayoutPreference) error
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	ListEligibleForDistribution(ctx context.Context) ([]*entities.Wallet, error)
}

// DepositStore persists external-payment intents
type DepositStore interface {
	WithTx(tx *sqlx.Tx) DepositStore
	Create(ctx context.Context, deposit *entities.Deposit) error
	GetByOrderID(ctx context.Context, orderID string) (*entities.Deposit, error)
	ConfirmPending(ctx context.Context, orderID, paymentID string) (bool, error)
	MarkFailed(ctx context.Context, orderID string) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error)
	GetTotalConfirmed(ctx context.Context) (decimal.Decimal, error)
}

// WithdrawalStore persists withdrawal requests and their sourcing
type WithdrawalStore interface {
	WithTx(tx *sqlx.Tx) WithdrawalStore
	Create(ctx context.Context, withdrawal *entities.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	Decide(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus) error
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error)
	HasPendingSweep(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PositionStore persists investment positions
type PositionStore interface {
	WithTx(tx *sqlx.Tx) PositionStore
	Create(ctx context.Context, position *entities.Position) error
	GetActiveFlexibleForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Position, error)
	Grow(ctx context.Context, positionID uuid.UUID, amount decimal.Decimal) error
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Position, error)
	Close(ctx context.Context, positionID uuid.UUID, closedAt time.Time) error
	CloseAllByUser(ctx context.Context, userID uuid.UUID, closedAt time.Time) (int64, error)
}

// DistributionStore persists profit distribution runs
type DistributionStore interface {
	WithTx(tx *sqlx.Tx) DistributionStore
	Create(ctx context.Context, dist *entities.ProfitDistribution) error
	Finalize(ctx context.Context, id uuid.UUID, recipients int, total decimal.Decimal) error
	GetByPeriod(ctx context.Context, period string) (*entities.ProfitDistribution, error)
}

// OutboxStore persists outbound notification tasks
type OutboxStore interface {
	WithTx(tx *sqlx.Tx) OutboxStore
	Enqueue(ctx context.Context, event *entities.OutboxEvent) error
	ClaimPending(ctx context.Context, limit int) ([]*entities.OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, maxAttempts int) error
}

var (
	_ LedgerStore       = (*LedgerRepository)(nil)
	_ WalletStore       = (*WalletRepository)(nil)
	_ DepositStore      = (*DepositRepository)(nil)
	_ WithdrawalStore   = (*WithdrawalRepository)(nil)
	_ PositionStore     = (*PositionRepository)(nil)
	_ DistributionStore = (*DistributionRepository)(nil)
	_ OutboxStore       = (*OutboxRepository)(nil)
)

// isNoRows reports whether err is the driver's empty-result sentinel
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
