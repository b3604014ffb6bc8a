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

// DistributionRepository persists performance-period distribution runs. The
// unique period column is the AlreadyDistributed guard.
type DistributionRepository struct {
	db Querier
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db *sqlx.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *DistributionRepository) WithTx(tx *sqlx.Tx) DistributionStore {
	return &DistributionRepository{db: tx}
}

// Create inserts the period row before any crediting happens. A duplicate
// period surfaces as ErrAlreadyDistributed and nothing is credited.
func (r *DistributionRepository) Create(ctx context.Context, dist *entities.ProfitDistribution) error {
	query := `
		INSERT INTO profit_distributions (id, period, declared_profit, admin_share,
			user_pool, recipients, total_distributed, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		dist.ID,
		dist.Period,
		dist.DeclaredProfit,
		dist.AdminShare,
		dist.UserPool,
		dist.Recipients,
		dist.TotalDistributed,
		dist.Status,
		dist.CreatedAt,
		dist.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("period %s: %w", dist.Period, entities.ErrAlreadyDistributed)
		}
		return fmt.Errorf("create distribution: %w", err)
	}

	return nil
}

// Finalize records the run's outcome and marks it completed
func (r *DistributionRepository) Finalize(ctx context.Context, id uuid.UUID, recipients int, total decimal.Decimal) error {
	query := `
		UPDATE profit_distributions
		SET recipients = $1, total_distributed = $2, status = $3, completed_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		recipients,
		total,
		entities.DistributionStatusCompleted,
		time.Now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize distribution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("distribution %s not found", id)
	}

	return nil
}

// GetByPeriod retrieves a distribution run
func (r *DistributionRepository) GetByPeriod(ctx context.Context, period string) (*entities.ProfitDistribution, error) {
	query := `
		SELECT id, period, declared_profit, admin_share, user_pool,
		       recipients, total_distributed, status, created_at, completed_at
		FROM profit_distributions
		WHERE period = $1
	`

	var dist entities.ProfitDistribution
	if err := sqlx.GetContext(ctx, r.db, &dist, query, period); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("distribution for period %s not found: %w", period, err)
		}
		return nil, fmt.Errorf("get distribution: %w", err)
	}

	return &dist, nil
}
