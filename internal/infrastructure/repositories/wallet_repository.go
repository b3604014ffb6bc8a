package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// WalletRepository persists the materialized wallet view. Balance columns are
// written exclusively by the ledger service's fold; everything else reads.
type WalletRepository struct {
	db Querier
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *WalletRepository) WithTx(tx *sqlx.Tx) WalletStore {
	return &WalletRepository{db: tx}
}

const walletColumns = `
	id, user_id, principal, profit, referral, locked,
	total_deposited, total_withdrawn, total_profit, payout_preference,
	created_at, updated_at
`

// GetByUserID retrieves a wallet; ErrWalletNotFound if the user has none yet
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	var wallet entities.Wallet
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, userID); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, entities.ErrWalletNotFound)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	return &wallet, nil
}

// GetByUserIDForUpdate locks the wallet row for the duration of the enclosing
// transaction. Concurrent operations on the same user serialize here.
func (r *WalletRepository) GetByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	var wallet entities.Wallet
	if err := sqlx.GetContext(ctx, r.db, &wallet, query, userID); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, entities.ErrWalletNotFound)
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}

	return &wallet, nil
}

// GetOrCreateForUpdate locks the user's wallet row, lazily creating an empty
// wallet on first credit. The insert is idempotent under races via the
// user_id unique constraint.
func (r *WalletRepository) GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	insert := `
		INSERT INTO wallets (id, user_id, principal, profit, referral, locked,
			total_deposited, total_withdrawn, total_profit, payout_preference,
			created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, 0, 0, 0, 'payout', $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, insert, uuid.New(), userID, now); err != nil {
		return nil, fmt.Errorf("upsert wallet: %w", err)
	}

	return r.GetByUserIDForUpdate(ctx, userID)
}

// Save writes the folded balances back. Only the ledger service calls this,
// inside the same atomic unit as the journal insert.
func (r *WalletRepository) Save(ctx context.Context, wallet *entities.Wallet) error {
	if err := wallet.Validate(); err != nil {
		return fmt.Errorf("validate wallet: %w", err)
	}

	query := `
		UPDATE wallets
		SET principal = $1, profit = $2, referral = $3, locked = $4,
		    total_deposited = $5, total_withdrawn = $6, total_profit = $7,
		    updated_at = $8
		WHERE user_id = $9
	`

	result, err := r.db.ExecContext(ctx, query,
		wallet.Principal,
		wallet.Profit,
		wallet.Referral,
		wallet.Locked,
		wallet.TotalDeposited,
		wallet.TotalWithdrawn,
		wallet.TotalProfit,
		time.Now(),
		wallet.UserID,
	)
	if err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", wallet.UserID, entities.ErrWalletNotFound)
	}

	return nil
}

// SetPreference updates the profit-share routing preference
func (r *WalletRepository) SetPreference(ctx context.Context, userID uuid.UUID, pref entities.PayoutPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	query := `UPDATE wallets SET payout_preference = $1, updated_at = $2 WHERE user_id = $3`

	result, err := r.db.ExecContext(ctx, query, pref, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, entities.ErrWalletNotFound)
	}

	return nil
}

// ListUserIDs returns every wallet's user, oldest first. Bulk operations
// iterate this and commit per user.
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM wallets ORDER BY created_at`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query); err != nil {
		return nil, fmt.Errorf("list wallet users: %w", err)
	}

	return ids, nil
}

// ListEligibleForDistribution returns wallets with invested principal
func (r *WalletRepository) ListEligibleForDistribution(ctx context.Context) ([]*entities.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE principal > 0 ORDER BY created_at`

	var wallets []*entities.Wallet
	if err := sqlx.SelectContext(ctx, r.db, &wallets, query); err != nil {
		return nil, fmt.Errorf("list eligible wallets: %w", err)
	}

	return wallets, nil
}
