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

// PositionRepository persists investment positions
type PositionRepository struct {
	db Querier
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *PositionRepository) WithTx(tx *sqlx.Tx) PositionStore {
	return &PositionRepository{db: tx}
}

const positionColumns = `id, user_id, amount, plan, active, opened_at, closed_at`

// Create persists a new position
func (r *PositionRepository) Create(ctx context.Context, position *entities.Position) error {
	if err := position.Validate(); err != nil {
		return fmt.Errorf("validate position: %w", err)
	}

	query := `
		INSERT INTO positions (id, user_id, amount, plan, active, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		position.ID,
		position.UserID,
		position.Amount,
		position.Plan,
		position.Active,
		position.OpenedAt,
		position.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("create position: %w", err)
	}

	return nil
}

// GetActiveFlexibleForUpdate locks the user's most recent active flexible
// position. Compounding grows it; nil means none exists yet.
func (r *PositionRepository) GetActiveFlexibleForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND plan = 'flexible' AND active = TRUE
		ORDER BY opened_at DESC
		LIMIT 1
		FOR UPDATE
	`

	var position entities.Position
	if err := sqlx.GetContext(ctx, r.db, &position, query, userID); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active flexible position: %w", err)
	}

	return &position, nil
}

// Grow increases an active position by the given amount
func (r *PositionRepository) Grow(ctx context.Context, positionID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("grow amount must be positive")
	}

	query := `
		UPDATE positions
		SET amount = amount + $1
		WHERE id = $2 AND active = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, amount, positionID)
	if err != nil {
		return fmt.Errorf("grow position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position %s not found or inactive", positionID)
	}

	return nil
}

// ListActiveByUser returns a user's active positions
func (r *PositionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*entities.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1 AND active = TRUE
		ORDER BY opened_at
	`

	var positions []*entities.Position
	if err := sqlx.SelectContext(ctx, r.db, &positions, query, userID); err != nil {
		return nil, fmt.Errorf("list active positions: %w", err)
	}

	return positions, nil
}

// Close marks one position inactive, recording the closure time. Used when a
// sweep liquidates a locked position while the rest of the wallet stays open.
func (r *PositionRepository) Close(ctx context.Context, positionID uuid.UUID, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET active = FALSE, closed_at = $1
		WHERE id = $2 AND active = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, closedAt, positionID)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position %s not found or inactive", positionID)
	}

	return nil
}

// CloseAllByUser marks every active position of a user inactive and records
// the closure time. Returns the count closed.
func (r *PositionRepository) CloseAllByUser(ctx context.Context, userID uuid.UUID, closedAt time.Time) (int64, error) {
	query := `
		UPDATE positions
		SET active = FALSE, closed_at = $1
		WHERE user_id = $2 AND active = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, closedAt, userID)
	if err != nil {
		return 0, fmt.Errorf("close positions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return rowsAffected, nil
}
