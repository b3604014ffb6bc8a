package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// DepositRepository persists external-payment intents. The conditional
// pending→success transition here is the sole guard against double-crediting
// from duplicate gateway callbacks.
type DepositRepository struct {
	db Querier
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sqlx.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *DepositRepository) WithTx(tx *sqlx.Tx) DepositStore {
	return &DepositRepository{db: tx}
}

const depositColumns = `
	id, user_id, order_id, amount, plan, referrer_id, status,
	payment_id, created_at, confirmed_at
`

// Create persists a new pending deposit intent
func (r *DepositRepository) Create(ctx context.Context, deposit *entities.Deposit) error {
	if err := deposit.Validate(); err != nil {
		return fmt.Errorf("validate deposit: %w", err)
	}

	query := `
		INSERT INTO deposits (id, user_id, order_id, amount, plan, referrer_id,
			status, payment_id, created_at, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.UserID,
		deposit.OrderID,
		deposit.Amount,
		deposit.Plan,
		deposit.ReferrerID,
		deposit.Status,
		deposit.PaymentID,
		deposit.CreatedAt,
		deposit.ConfirmedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deposit order %s already exists: %w", deposit.OrderID, err)
		}
		return fmt.Errorf("create deposit: %w", err)
	}

	return nil
}

// GetByOrderID retrieves a deposit by its gateway order reference
func (r *DepositRepository) GetByOrderID(ctx context.Context, orderID string) (*entities.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE order_id = $1`

	var deposit entities.Deposit
	if err := sqlx.GetContext(ctx, r.db, &deposit, query, orderID); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("deposit for order %s not found: %w", orderID, err)
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}

	return &deposit, nil
}

// ConfirmPending performs the atomic conditional transition pending→success.
// Returns false when the deposit was not in pending state, meaning a
// concurrent duplicate confirmation already won; the caller must not credit.
func (r *DepositRepository) ConfirmPending(ctx context.Context, orderID, paymentID string) (bool, error) {
	query := `
		UPDATE deposits
		SET status = $1, payment_id = $2, confirmed_at = $3
		WHERE order_id = $4 AND status = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		entities.DepositStatusSuccess,
		paymentID,
		time.Now(),
		orderID,
		entities.DepositStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("confirm deposit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// MarkFailed marks a deposit failed, e.g. on signature mismatch
func (r *DepositRepository) MarkFailed(ctx context.Context, orderID string) error {
	query := `
		UPDATE deposits
		SET status = $1
		WHERE order_id = $2 AND status = $3
	`

	_, err := r.db.ExecContext(ctx, query,
		entities.DepositStatusFailed,
		orderID,
		entities.DepositStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark deposit failed: %w", err)
	}

	return nil
}

// ListByUserID returns a user's deposits, newest first
func (r *DepositRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error) {
	query := `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var deposits []*entities.Deposit
	if err := sqlx.SelectContext(ctx, r.db, &deposits, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}

	return deposits, nil
}

// GetTotalConfirmed returns the sum of all successfully credited deposits
func (r *DepositRepository) GetTotalConfirmed(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM deposits WHERE status = 'success'`

	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, r.db, &total, query); err != nil {
		return decimal.Zero, fmt.Errorf("get total confirmed deposits: %w", err)
	}

	return total, nil
}
