package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// LedgerRepository persists the append-only journal and transaction envelopes.
// Entries are never updated or deleted.
type LedgerRepository struct {
	db Querier
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *LedgerRepository) WithTx(tx *sqlx.Tx) LedgerStore {
	return &LedgerRepository{db: tx}
}

// InsertTransaction persists a transaction envelope
func (r *LedgerRepository) InsertTransaction(ctx context.Context, tx *entities.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, tx_type, status, amount, fee, net_amount,
			reference_type, reference_id, description, detail, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Type,
		tx.Status,
		tx.Amount,
		tx.Fee,
		tx.NetAmount,
		tx.ReferenceType,
		tx.ReferenceID,
		tx.Description,
		[]byte(tx.Detail),
		tx.CreatedAt,
		tx.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

// InsertEntries bulk-inserts journal entries with COPY semantics
func (r *LedgerRepository) InsertEntries(ctx context.Context, entries []*entities.LedgerEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("no entries to insert")
	}

	query := `
		INSERT INTO ledger_entries (
			id, transaction_id, account_owner, account_type, direction,
			amount, reference_type, reference_id, created_at
		)
		VALUES (:id, :transaction_id, :account_owner, :account_type, :direction,
			:amount, :reference_type, :reference_id, :created_at)
	`

	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("validate entry: %w", err)
		}
	}

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, entries); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}

	return nil
}

// GetTransactionByID retrieves a transaction envelope
func (r *LedgerRepository) GetTransactionByID(ctx context.Context, txID uuid.UUID) (*entities.Transaction, error) {
	query := `
		SELECT id, user_id, tx_type, status, amount, fee, net_amount,
		       reference_type, reference_id, description, detail, created_at, completed_at
		FROM transactions
		WHERE id = $1
	`

	var tx entities.Transaction
	if err := sqlx.GetContext(ctx, r.db, &tx, query, txID); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("transaction not found: %w", err)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	return &tx, nil
}

// UpdateTransactionStatus moves an envelope to a terminal status
func (r *LedgerRepository) UpdateTransactionStatus(ctx context.Context, txID uuid.UUID, status entities.TransactionStatus) error {
	var completedAt *time.Time
	if status.IsTerminal() {
		now := time.Now()
		completedAt = &now
	}

	query := `
		UPDATE transactions
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, status, completedAt, txID)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s not found or not pending", txID)
	}

	return nil
}

// GetEntriesByTransactionID retrieves all journal lines of one transaction
func (r *LedgerRepository) GetEntriesByTransactionID(ctx context.Context, txID uuid.UUID) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, account_owner, account_type, direction,
		       amount, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE transaction_id = $1
		ORDER BY created_at, id
	`

	var entries []*entities.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, txID); err != nil {
		return nil, fmt.Errorf("get entries by transaction: %w", err)
	}

	return entries, nil
}

// GetEntriesByUser retrieves a user's full journal in insertion order, for
// fold-based consistency checks.
func (r *LedgerRepository) GetEntriesByUser(ctx context.Context, userID uuid.UUID) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT id, transaction_id, account_owner, account_type, direction,
		       amount, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE account_owner = $1
		ORDER BY created_at, id
	`

	var entries []*entities.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("get entries by user: %w", err)
	}

	return entries, nil
}

// ListTransactionsByUser returns a user's transaction envelopes, newest first
func (r *LedgerRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Transaction, error) {
	query := `
		SELECT id, user_id, tx_type, status, amount, fee, net_amount,
		       reference_type, reference_id, description, detail, created_at, completed_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var txs []*entities.Transaction
	if err := sqlx.SelectContext(ctx, r.db, &txs, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list transactions by user: %w", err)
	}

	return txs, nil
}

// CountTransactionsByReference reports whether a user already has a
// transaction for a business object, used for idempotent re-run checks.
func (r *LedgerRepository) CountTransactionsByReference(ctx context.Context, refType entities.ReferenceType, refID, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE reference_type = $1 AND reference_id = $2 AND user_id = $3
	`

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, refType, refID, userID); err != nil {
		return 0, fmt.Errorf("count transactions by reference: %w", err)
	}

	return count, nil
}

// ===== Audit queries =====

// GetTotalDebitsAndCredits returns the journal-wide debit and credit sums
func (r *LedgerRepository) GetTotalDebitsAndCredits(ctx context.Context) (totalDebits, totalCredits decimal.Decimal, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0) AS total_debits,
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0) AS total_credits
		FROM ledger_entries
	`

	row := r.db.QueryRowxContext(ctx, query)
	if err := row.Scan(&totalDebits, &totalCredits); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get total debits and credits: %w", err)
	}

	return totalDebits, totalCredits, nil
}

// ListUnbalancedTransactions returns IDs of transactions whose debits and
// credits disagree beyond the epsilon. Healthy ledgers return nothing.
func (r *LedgerRepository) ListUnbalancedTransactions(ctx context.Context, epsilon decimal.Decimal) ([]uuid.UUID, error) {
	query := `
		SELECT transaction_id
		FROM ledger_entries
		GROUP BY transaction_id
		HAVING ABS(
			SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END) -
			SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END)
		) > $1
	`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, epsilon); err != nil {
		return nil, fmt.Errorf("list unbalanced transactions: %w", err)
	}

	return ids, nil
}

// ListJournalUsers returns every user that owns at least one journal entry
func (r *LedgerRepository) ListJournalUsers(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT account_owner
		FROM ledger_entries
		WHERE account_owner IS NOT NULL
	`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query); err != nil {
		return nil, fmt.Errorf("list journal users: %w", err)
	}

	return ids, nil
}

// isUniqueViolation reports a Postgres unique-constraint error
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
