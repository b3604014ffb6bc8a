package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// WithdrawalRepository persists withdrawal requests together with their exact
// bucket sourcing, so rejection can reverse what was actually drained.
type WithdrawalRepository struct {
	db Querier
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *WithdrawalRepository) WithTx(tx *sqlx.Tx) WithdrawalStore {
	return &WithdrawalRepository{db: tx}
}

const withdrawalColumns = `
	id, user_id, transaction_id, amount, status,
	from_profit, from_referral, from_principal, swept, created_at, decided_at
`

// Create persists a new pending withdrawal
func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *entities.Withdrawal) error {
	if err := withdrawal.Validate(); err != nil {
		return fmt.Errorf("validate withdrawal: %w", err)
	}

	query := `
		INSERT INTO withdrawals (id, user_id, transaction_id, amount, status,
			from_profit, from_referral, from_principal, swept, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		withdrawal.ID,
		withdrawal.UserID,
		withdrawal.TransactionID,
		withdrawal.Amount,
		withdrawal.Status,
		withdrawal.FromProfit,
		withdrawal.FromReferral,
		withdrawal.FromPrincipal,
		withdrawal.Swept,
		withdrawal.CreatedAt,
		withdrawal.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	var withdrawal entities.Withdrawal
	if err := sqlx.GetContext(ctx, r.db, &withdrawal, query, id); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("withdrawal %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}

	return &withdrawal, nil
}

// GetByIDForUpdate locks the withdrawal row so approve and reject cannot race
func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1 FOR UPDATE`

	var withdrawal entities.Withdrawal
	if err := sqlx.GetContext(ctx, r.db, &withdrawal, query, id); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("withdrawal %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("get withdrawal for update: %w", err)
	}

	return &withdrawal, nil
}

// Decide moves a pending withdrawal to approved or rejected
func (r *WithdrawalRepository) Decide(ctx context.Context, id uuid.UUID, status entities.WithdrawalStatus) error {
	if status != entities.WithdrawalStatusApproved && status != entities.WithdrawalStatusRejected {
		return fmt.Errorf("invalid decision status: %s", status)
	}

	query := `
		UPDATE withdrawals
		SET status = $1, decided_at = $2
		WHERE id = $3 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("decide withdrawal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("withdrawal %s not found or already decided", id)
	}

	return nil
}

// ListByUserID returns a user's withdrawals, newest first
func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var withdrawals []*entities.Withdrawal
	if err := sqlx.SelectContext(ctx, r.db, &withdrawals, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}

	return withdrawals, nil
}

// HasPendingSweep reports whether a sweep-created withdrawal is already
// pending for the user, which makes a settlement re-run skip them.
func (r *WithdrawalRepository) HasPendingSweep(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM withdrawals
			WHERE user_id = $1 AND status = 'pending' AND swept = TRUE
		)
	`

	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, userID); err != nil {
		return false, fmt.Errorf("check pending sweep: %w", err)
	}

	return exists, nil
}
