package settlement

import (
	"context"
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

// minSweepAmount is the smallest balance worth sweeping. Anything under one
// currency unit stays in the wallet.
var minSweepAmount = decimal.NewFromInt(1)

// journal is the slice of the ledger service this package records through
type journal interface {
	RecordTx(ctx context.Context, dbTx *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error)
}

// Service runs the settlement sweep: it locks every wallet's withdrawable
// excess into sweep withdrawal requests for the platform to settle. Each
// wallet is its own atomic unit, so a failure mid-sweep keeps the wallets
// already swept and a re-run picks up the rest.
type Service struct {
	journal        journal
	walletRepo     repositories.WalletStore
	withdrawalRepo repositories.WithdrawalStore
	positionRepo   repositories.PositionStore
	outboxRepo     repositories.OutboxStore
	runTx          func(ctx context.Context, fn func(*sqlx.Tx) error) error
	logger         *logger.Logger
}

// NewService creates a new settlement service
func NewService(
	db *sqlx.DB,
	ledgerService *ledger.Service,
	walletRepo repositories.WalletStore,
	withdrawalRepo repositories.WithdrawalStore,
	positionRepo repositories.PositionStore,
	outboxRepo repositories.OutboxStore,
	logger *logger.Logger,
) *Service {
	return &Service{
		journal:        ledgerService,
		walletRepo:     walletRepo,
		withdrawalRepo: withdrawalRepo,
		positionRepo:   positionRepo,
		outboxRepo:     outboxRepo,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		logger: logger,
	}
}

// Report summarizes one sweep run
type Report struct {
	WalletsSwept int             `json:"wallets_swept"`
	Skipped      int             `json:"skipped"`
	TotalSwept   decimal.Decimal `json:"total_swept"`
}

// Settle sweeps every wallet's liquidatable balance above minRetain into a
// pending sweep withdrawal. Wallets below one unit of excess and wallets that
// already have a pending sweep are skipped, which makes re-runs harmless.
func (s *Service) Settle(ctx context.Context, minRetain decimal.Decimal) (*Report, error) {
	if minRetain.IsNegative() {
		minRetain = decimal.Zero
	}

	userIDs, err := s.walletRepo.ListUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{TotalSwept: decimal.Zero}
	for _, userID := range userIDs {
		swept, amount, err := s.sweepWallet(ctx, userID, minRetain)
		if err != nil {
			s.logger.Error("Wallet sweep failed, skipping",
				"user_id", userID,
				"error", err)
			report.Skipped++
			continue
		}
		if !swept {
			report.Skipped++
			continue
		}
		report.WalletsSwept++
		report.TotalSwept = report.TotalSwept.Add(amount)
		metrics.SettlementWallets.Inc()
	}

	s.logger.Info("Settlement sweep completed",
		"wallets_swept", report.WalletsSwept,
		"skipped", report.Skipped,
		"total_swept", report.TotalSwept.String())

	return report, nil
}

// sweepWallet locks one wallet's excess into a sweep withdrawal. The
// liquidatable balance counts term-locked positions at face value; when the
// sweep has to dip into them they are liquidated into principal first and
// closed. Returns false without error when there is nothing to sweep.
func (s *Service) sweepWallet(ctx context.Context, userID uuid.UUID, minRetain decimal.Decimal) (bool, decimal.Decimal, error) {
	var amount decimal.Decimal
	swept := false

	err := s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		pending, err := s.withdrawalRepo.WithTx(dbTx).HasPendingSweep(ctx, userID)
		if err != nil {
			return err
		}
		if pending {
			return nil
		}

		wallet, err := s.walletRepo.WithTx(dbTx).GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		positions, err := s.positionRepo.WithTx(dbTx).ListActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		lockedValue := decimal.Zero
		for _, p := range positions {
			if p.Plan == entities.PlanLocked {
				lockedValue = lockedValue.Add(p.Amount)
			}
		}

		liquidatable := wallet.Profit.Add(wallet.Referral).Add(wallet.Principal).Add(lockedValue)
		amount = liquidatable.Sub(minRetain)
		if amount.LessThan(minSweepAmount) {
			return nil
		}

		// Plan against the principal as it will stand after liquidation, then
		// only liquidate if the plan actually reaches past the flexible
		// principal.
		planWallet := *wallet
		planWallet.Principal = wallet.Principal.Add(lockedValue)
		plan, err := entities.PlanWithdrawalSources(&planWallet, amount)
		if err != nil {
			return err
		}

		movements := sweepMovements(userID, plan)
		liquidated := plan.FromPrincipal.GreaterThan(wallet.Principal)
		if liquidated {
			// The liquidation legs come first: the principal credit must land
			// before the sweep debits principal.
			movements = append([]entities.Movement{
				{Owner: &userID, AccountType: entities.AccountTypeLocked, Direction: entities.DirectionDebit, Amount: lockedValue},
				{Owner: &userID, AccountType: entities.AccountTypePrincipal, Direction: entities.DirectionCredit, Amount: lockedValue},
			}, movements...)
		}

		withdrawalID := uuid.New()
		tx, err := s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
			UserID:        userID,
			Type:          entities.TransactionTypeWithdrawal,
			Amount:        amount,
			Fee:           decimal.Zero,
			ReferenceType: entities.ReferenceTypeSettlementSweep,
			ReferenceID:   &withdrawalID,
			Description:   "Settlement sweep",
			Detail: entities.WithdrawalDetail{
				FromProfit:    plan.FromProfit,
				FromReferral:  plan.FromReferral,
				FromPrincipal: plan.FromPrincipal,
				Swept:         true,
			},
			Movements: movements,
			Pending:   true,
		})
		if err != nil {
			return err
		}

		withdrawal := &entities.Withdrawal{
			ID:            withdrawalID,
			UserID:        userID,
			TransactionID: tx.ID,
			Amount:        amount,
			Status:        entities.WithdrawalStatusPending,
			FromProfit:    plan.FromProfit,
			FromReferral:  plan.FromReferral,
			FromPrincipal: plan.FromPrincipal,
			Swept:         true,
			CreatedAt:     time.Now(),
		}
		if err := withdrawal.Validate(); err != nil {
			return err
		}
		if err := s.withdrawalRepo.WithTx(dbTx).Create(ctx, withdrawal); err != nil {
			return err
		}

		// Sweeping the full principal closes every position; a partial sweep
		// that dipped into locked capital closes just the liquidated terms.
		if plan.FromPrincipal.Equal(planWallet.Principal) && planWallet.Principal.IsPositive() {
			if _, err := s.positionRepo.WithTx(dbTx).CloseAllByUser(ctx, userID, time.Now()); err != nil {
				return err
			}
		} else if liquidated {
			for _, p := range positions {
				if p.Plan != entities.PlanLocked {
					continue
				}
				if err := s.positionRepo.WithTx(dbTx).Close(ctx, p.ID, time.Now()); err != nil {
					return err
				}
			}
		}

		event, err := entities.NewOutboxEvent(userID, entities.OutboxEventWithdrawalRequested, map[string]any{
			"withdrawal_id": withdrawalID,
			"amount":        amount,
			"swept":         true,
		})
		if err != nil {
			return err
		}
		if err := s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event); err != nil {
			return err
		}

		swept = true
		return nil
	})
	if err != nil {
		return false, decimal.Zero, err
	}

	return swept, amount, nil
}

// sweepMovements drains the planned buckets into the locked bucket
func sweepMovements(userID uuid.UUID, plan entities.SourcePlan) []entities.Movement {
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
