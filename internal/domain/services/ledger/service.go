package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
	"github.com/poolvest/ledger-service/pkg/metrics"
)

// Service is the only component allowed to write journal entries. It enforces
// the double-entry invariant and folds entries into wallets inside the same
// atomic unit as the journal write.
type Service struct {
	ledgerRepo  *repositories.LedgerRepository
	walletRepo  *repositories.WalletRepository
	depositRepo repositories.DepositStore
	runTx       func(ctx context.Context, fn func(*sqlx.Tx) error) error
	logger      *logger.Logger
}

// NewService creates a new ledger service
func NewService(
	db *sqlx.DB,
	ledgerRepo *repositories.LedgerRepository,
	walletRepo *repositories.WalletRepository,
	depositRepo repositories.DepositStore,
	logger *logger.Logger,
) *Service {
	return &Service{
		ledgerRepo:  ledgerRepo,
		walletRepo:  walletRepo,
		depositRepo: depositRepo,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		logger: logger,
	}
}

// RecordRequest describes one business event and its balanced movement set
type RecordRequest struct {
	UserID        uuid.UUID
	Type          entities.TransactionType
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	ReferenceType entities.ReferenceType
	ReferenceID   *uuid.UUID
	Description   string
	Detail        entities.TransactionDetail
	Movements     []entities.Movement
	// Pending leaves the envelope open for a later settlement phase
	// (withdrawals). Everything else is recorded terminal-success.
	Pending bool
}

// Record validates, persists, and folds one transaction in its own atomic
// unit. All-or-nothing: a failure at any step leaves no observable state.
func (s *Service) Record(ctx context.Context, req *RecordRequest) (*entities.Transaction, error) {
	var tx *entities.Transaction
	err := s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		var err error
		tx, err = s.RecordTx(ctx, dbTx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// RecordTx is Record inside a caller-owned transaction, for callers that need
// additional writes (deposit rows, withdrawal rows, positions) in the same
// atomic unit.
func (s *Service) RecordTx(ctx context.Context, dbTx *sqlx.Tx, req *RecordRequest) (*entities.Transaction, error) {
	started := time.Now()

	if err := req.Type.Validate(); err != nil {
		return nil, err
	}
	// The invariant check runs before any write and is never corrected.
	if err := entities.ValidateBalanced(req.Movements); err != nil {
		return nil, err
	}

	envelope := &entities.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          req.Type,
		Status:        entities.TransactionStatusPending,
		Amount:        req.Amount,
		Fee:           req.Fee,
		NetAmount:     req.Amount.Sub(req.Fee),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		CreatedAt:     time.Now(),
	}
	if !req.Pending {
		envelope.MarkSuccess()
	}
	if req.Detail != nil {
		if err := envelope.SetDetail(req.Detail); err != nil {
			return nil, err
		}
	}

	ledgerRepo := s.ledgerRepo.WithTx(dbTx)
	if err := ledgerRepo.InsertTransaction(ctx, envelope); err != nil {
		return nil, err
	}

	if err := s.applyMovementsTx(ctx, dbTx, envelope.ID, req.ReferenceType, req.ReferenceID, req.Movements); err != nil {
		return nil, err
	}

	metrics.TransactionsRecorded.WithLabelValues(string(req.Type)).Inc()
	metrics.RecordDuration.Observe(time.Since(started).Seconds())

	s.logger.Info("Ledger transaction recorded",
		"transaction_id", envelope.ID,
		"type", envelope.Type,
		"user_id", envelope.UserID,
		"amount", envelope.Amount.String(),
		"status", envelope.Status)

	return envelope, nil
}

// AppendPhaseTx appends a second balanced entry set to an existing pending
// envelope: withdrawal approval (locked→admin bank) or rejection (locked back
// to the source buckets). The per-transaction invariant holds because each
// phase balances independently.
func (s *Service) AppendPhaseTx(
	ctx context.Context,
	dbTx *sqlx.Tx,
	transactionID uuid.UUID,
	refType entities.ReferenceType,
	refID *uuid.UUID,
	movements []entities.Movement,
) error {
	if err := entities.ValidateBalanced(movements); err != nil {
		return err
	}

	envelope, err := s.ledgerRepo.WithTx(dbTx).GetTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if envelope.Status != entities.TransactionStatusPending {
		return fmt.Errorf("transaction %s is %s, not pending", transactionID, envelope.Status)
	}

	return s.applyMovementsTx(ctx, dbTx, transactionID, refType, refID, movements)
}

// CompleteTx moves a pending envelope to success
func (s *Service) CompleteTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID) error {
	return s.settleTx(ctx, dbTx, transactionID, (*entities.Transaction).MarkSuccess)
}

// FailTx moves a pending envelope to failed
func (s *Service) FailTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID) error {
	return s.settleTx(ctx, dbTx, transactionID, (*entities.Transaction).MarkFailed)
}

func (s *Service) settleTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID, mark func(*entities.Transaction)) error {
	repo := s.ledgerRepo.WithTx(dbTx)
	envelope, err := repo.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return err
	}
	mark(envelope)
	return repo.UpdateTransactionStatus(ctx, transactionID, envelope.Status)
}

// applyMovementsTx inserts the journal entries and folds the user-owned ones
// into their wallets. System pool entries are journaled but never materialized.
func (s *Service) applyMovementsTx(
	ctx context.Context,
	dbTx *sqlx.Tx,
	transactionID uuid.UUID,
	refType entities.ReferenceType,
	refID *uuid.UUID,
	movements []entities.Movement,
) error {
	now := time.Now()
	entries := make([]*entities.LedgerEntry, len(movements))
	for i, m := range movements {
		entries[i] = &entities.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transactionID,
			AccountOwner:  m.Owner,
			AccountType:   m.AccountType,
			Direction:     m.Direction,
			Amount:        m.Amount,
			ReferenceType: refType,
			ReferenceID:   refID,
			CreatedAt:     now,
		}
	}

	if err := s.ledgerRepo.WithTx(dbTx).InsertEntries(ctx, entries); err != nil {
		return err
	}

	walletRepo := s.walletRepo.WithTx(dbTx)
	byOwner := groupByOwner(entries)
	for _, owner := range sortedOwners(byOwner) {
		wallet, err := walletRepo.GetOrCreateForUpdate(ctx, owner)
		if err != nil {
			return err
		}
		for _, entry := range byOwner[owner] {
			if err := wallet.Apply(entry); err != nil {
				return err
			}
		}
		if err := walletRepo.Save(ctx, wallet); err != nil {
			return err
		}
	}

	return nil
}

// groupByOwner buckets user-owned entries by wallet owner
func groupByOwner(entries []*entities.LedgerEntry) map[uuid.UUID][]*entities.LedgerEntry {
	byOwner := make(map[uuid.UUID][]*entities.LedgerEntry)
	for _, entry := range entries {
		if entry.AccountOwner == nil {
			continue
		}
		byOwner[*entry.AccountOwner] = append(byOwner[*entry.AccountOwner], entry)
	}
	return byOwner
}

// sortedOwners returns owners in a stable order so concurrent multi-wallet
// transactions acquire row locks consistently.
func sortedOwners(byOwner map[uuid.UUID][]*entities.LedgerEntry) []uuid.UUID {
	owners := make([]uuid.UUID, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	return owners
}

// GetWallet returns the materialized balance view for display
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	return s.walletRepo.GetByUserID(ctx, userID)
}

// GetTransaction returns a transaction envelope
func (s *Service) GetTransaction(ctx context.Context, txID uuid.UUID) (*entities.Transaction, error) {
	return s.ledgerRepo.GetTransactionByID(ctx, txID)
}

// GetTransactionWithEntries returns an envelope together with its journal
// lines, for inspecting how one economic event moved money between accounts.
func (s *Service) GetTransactionWithEntries(ctx context.Context, txID uuid.UUID) (*entities.Transaction, []*entities.LedgerEntry, error) {
	tx, err := s.ledgerRepo.GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.ledgerRepo.GetEntriesByTransactionID(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	return tx, entries, nil
}

// GetTransactionTx reads an envelope inside a caller-owned transaction
func (s *Service) GetTransactionTx(ctx context.Context, dbTx *sqlx.Tx, txID uuid.UUID) (*entities.Transaction, error) {
	return s.ledgerRepo.WithTx(dbTx).GetTransactionByID(ctx, txID)
}

// HasTransactionForReference reports whether a user already has a journaled
// transaction for a business object. Bulk re-runs use it to skip users that
// were processed before a crash.
func (s *Service) HasTransactionForReference(ctx context.Context, refType entities.ReferenceType, refID, userID uuid.UUID) (bool, error) {
	count, err := s.ledgerRepo.CountTransactionsByReference(ctx, refType, refID, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUserTransactions returns a user's transaction history
func (s *Service) ListUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Transaction, error) {
	return s.ledgerRepo.ListTransactionsByUser(ctx, userID, limit, offset)
}
