package withdrawal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
	"github.com/poolvest/ledger-service/pkg/metrics"
)

// journal is the slice of the ledger service this package records through
type journal interface {
	RecordTx(ctx context.Context, dbTx *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error)
	AppendPhaseTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID, refType entities.ReferenceType, refID *uuid.UUID, movements []entities.Movement) error
	CompleteTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID) error
	FailTx(ctx context.Context, dbTx *sqlx.Tx, transactionID uuid.UUID) error
	GetTransactionTx(ctx context.Context, dbTx *sqlx.Tx, txID uuid.UUID) (*entities.Transaction, error)
}

// Service handles the withdrawal request and decision lifecycle. Requested
// funds move into the locked bucket immediately so they cannot be spent twice
// while an admin decides.
type Service struct {
	journal        journal
	walletRepo     repositories.WalletStore
	withdrawalRepo repositories.WithdrawalStore
	outboxRepo     repositories.OutboxStore
	runTx          func(ctx context.Context, fn func(*sqlx.Tx) error) error
	logger         *logger.Logger
}

// NewService creates a new withdrawal service
func NewService(
	db *sqlx.DB,
	ledgerService *ledger.Service,
	walletRepo repositories.WalletStore,
	withdrawalRepo repositories.WithdrawalStore,
	outboxRepo repositories.OutboxStore,
	logger *logger.Logger,
) *Service {
	return &Service{
		journal:        ledgerService,
		walletRepo:     walletRepo,
		withdrawalRepo: withdrawalRepo,
		outboxRepo:     outboxRepo,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		logger: logger,
	}
}

// Request sources the amount from the user's buckets in waterfall order and
// locks it pending an admin decision. The wallet row is locked for the whole
// unit, so concurrent requests against the same balance serialize and the
// loser fails cleanly with insufficient funds.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*entities.Withdrawal, error) {
	var withdrawal *entities.Withdrawal
	err := s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		wallet, err := s.walletRepo.WithTx(dbTx).GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		plan, err := entities.PlanWithdrawalSources(wallet, amount)
		if err != nil {
			return err
		}

		withdrawalID := uuid.New()
		tx, err := s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
			UserID:        userID,
			Type:          entities.TransactionTypeWithdrawal,
			Amount:        amount,
			Fee:           decimal.Zero,
			ReferenceType: entities.ReferenceTypeWithdrawalRequest,
			ReferenceID:   &withdrawalID,
			Description:   "Withdrawal requested",
			Detail: entities.WithdrawalDetail{
				FromProfit:    plan.FromProfit,
				FromReferral:  plan.FromReferral,
				FromPrincipal: plan.FromPrincipal,
			},
			Movements: sourceMovements(userID, plan),
			Pending:   true,
		})
		if err != nil {
			return err
		}

		withdrawal = &entities.Withdrawal{
			ID:            withdrawalID,
			UserID:        userID,
			TransactionID: tx.ID,
			Amount:        amount,
			Status:        entities.WithdrawalStatusPending,
			FromProfit:    plan.FromProfit,
			FromReferral:  plan.FromReferral,
			FromPrincipal: plan.FromPrincipal,
			CreatedAt:     time.Now(),
		}
		if err := withdrawal.Validate(); err != nil {
			return err
		}
		if err := s.withdrawalRepo.WithTx(dbTx).Create(ctx, withdrawal); err != nil {
			return err
		}

		event, err := entities.NewOutboxEvent(userID, entities.OutboxEventWithdrawalRequested, map[string]any{
			"withdrawal_id": withdrawalID,
			"amount":        amount,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsRequested.Inc()
	s.logger.Info("Withdrawal requested",
		"withdrawal_id", withdrawal.ID,
		"user_id", userID,
		"amount", amount.String(),
		"from_profit", withdrawal.FromProfit.String(),
		"from_referral", withdrawal.FromReferral.String(),
		"from_principal", withdrawal.FromPrincipal.String())

	return withdrawal, nil
}

// Approve releases the locked funds to the platform settlement account and
// completes the transaction. Only a pending withdrawal can be approved; a
// second decision fails on the conditional status transition.
func (s *Service) Approve(ctx context.Context, withdrawalID uuid.UUID) error {
	return s.decide(ctx, withdrawalID, entities.WithdrawalStatusApproved)
}

// Reject returns the locked funds to the exact buckets they were sourced
// from, using the persisted breakdown, and fails the transaction.
func (s *Service) Reject(ctx context.Context, withdrawalID uuid.UUID) error {
	return s.decide(ctx, withdrawalID, entities.WithdrawalStatusRejected)
}

func (s *Service) decide(ctx context.Context, withdrawalID uuid.UUID, status entities.WithdrawalStatus) error {
	err := s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		withdrawal, err := s.withdrawalRepo.WithTx(dbTx).GetByIDForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if withdrawal.Status != entities.WithdrawalStatusPending {
			return fmt.Errorf("%w: withdrawal %s is %s", entities.ErrAlreadyProcessed, withdrawalID, withdrawal.Status)
		}

		// The envelope carries its own copy of the sourcing. Both copies must
		// agree before money moves on an admin decision.
		envelope, err := s.journal.GetTransactionTx(ctx, dbTx, withdrawal.TransactionID)
		if err != nil {
			return err
		}
		detail, err := envelope.WithdrawalDetail()
		if err != nil {
			return err
		}
		breakdown := withdrawal.Breakdown()
		if !detail.Total().Equal(breakdown.Total()) {
			return fmt.Errorf("withdrawal %s sourcing disagrees with transaction %s",
				withdrawal.ID, withdrawal.TransactionID)
		}

		refID := withdrawal.ID
		switch status {
		case entities.WithdrawalStatusApproved:
			err = s.journal.AppendPhaseTx(ctx, dbTx, withdrawal.TransactionID,
				entities.ReferenceTypeWithdrawalApproval, &refID,
				[]entities.Movement{
					{Owner: &withdrawal.UserID, AccountType: entities.AccountTypeLocked, Direction: entities.DirectionDebit, Amount: withdrawal.Amount},
					{AccountType: entities.AccountTypeAdminBank, Direction: entities.DirectionCredit, Amount: withdrawal.Amount},
				})
			if err != nil {
				return err
			}
			if err := s.journal.CompleteTx(ctx, dbTx, withdrawal.TransactionID); err != nil {
				return err
			}
		case entities.WithdrawalStatusRejected:
			err = s.journal.AppendPhaseTx(ctx, dbTx, withdrawal.TransactionID,
				entities.ReferenceTypeWithdrawalReversal, &refID,
				reversalMovements(withdrawal.UserID, withdrawal.Amount, breakdown))
			if err != nil {
				return err
			}
			if err := s.journal.FailTx(ctx, dbTx, withdrawal.TransactionID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid withdrawal decision: %s", status)
		}

		if err := s.withdrawalRepo.WithTx(dbTx).Decide(ctx, withdrawal.ID, status); err != nil {
			return err
		}

		event, err := entities.NewOutboxEvent(withdrawal.UserID, entities.OutboxEventWithdrawalDecided, map[string]any{
			"withdrawal_id": withdrawal.ID,
			"amount":        withdrawal.Amount,
			"decision":      status,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Withdrawal decided", "withdrawal_id", withdrawalID, "decision", status)
	return nil
}

// sourceMovements moves the planned amounts out of their buckets and into the
// locked bucket as one balanced set. Zero legs are omitted.
func sourceMovements(userID uuid.UUID, plan entities.SourcePlan) []entities.Movement {
	movements := make([]entities.Movement, 0, 4)
	for _, leg := range []struct {
		bucket entities.AccountType
		amount decimal.Decimal
	}{
		{entities.AccountTypeProfit, plan.FromProfit},
		{entities.AccountTypeReferral, plan.FromReferral},
		{entities.AccountTypePrincipal, plan.FromPrincipal},
	} {
		if leg.amount.IsPositive() {
			movements = append(movements, entities.Movement{
				Owner:       &userID,
				AccountType: leg.bucket,
				Direction:   entities.DirectionDebit,
				Amount:      leg.amount,
			})
		}
	}
	movements = append(movements, entities.Movement{
		Owner:       &userID,
		AccountType: entities.AccountTypeLocked,
		Direction:   entities.DirectionCredit,
		Amount:      plan.Total(),
	})
	return movements
}

// reversalMovements is the exact mirror of the request's sourcing
func reversalMovements(userID uuid.UUID, amount decimal.Decimal, breakdown entities.WithdrawalDetail) []entities.Movement {
	movements := []entities.Movement{
		{Owner: &userID, AccountType: entities.AccountTypeLocked, Direction: entities.DirectionDebit, Amount: amount},
	}
	for _, leg := range []struct {
		bucket entities.AccountType
		amount decimal.Decimal
	}{
		{entities.AccountTypeProfit, breakdown.FromProfit},
		{entities.AccountTypeReferral, breakdown.FromReferral},
		{entities.AccountTypePrincipal, breakdown.FromPrincipal},
	} {
		if leg.amount.IsPositive() {
			movements = append(movements, entities.Movement{
				Owner:       &userID,
				AccountType: leg.bucket,
				Direction:   entities.DirectionCredit,
				Amount:      leg.amount,
			})
		}
	}
	return movements
}

// GetByID returns a withdrawal
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	return s.withdrawalRepo.GetByID(ctx, id)
}

// ListByUser returns a user's withdrawal history
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Withdrawal, error) {
	return s.withdrawalRepo.ListByUserID(ctx, userID, limit, offset)
}
