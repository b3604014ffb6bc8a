package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/infrastructure/cache"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
	"github.com/poolvest/ledger-service/pkg/metrics"
)

const distributionLockKey = "ledger:distribution:lock"

// journal is the slice of the ledger service this package records through
type journal interface {
	RecordTx(ctx context.Context, dbTx *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error)
	HasTransactionForReference(ctx context.Context, refType entities.ReferenceType, refID, userID uuid.UUID) (bool, error)
}

// Service runs pro-rata profit distributions. One run per period, one run at
// a time: the period row's unique constraint guards against repeats and a
// Redis lock guards against concurrent runs. A run that dies mid-way leaves
// the period row in the running state and can be re-entered.
type Service struct {
	journal          journal
	walletRepo       repositories.WalletStore
	distributionRepo repositories.DistributionStore
	positionRepo     repositories.PositionStore
	outboxRepo       repositories.OutboxStore
	locker           cache.Locker
	runTx            func(ctx context.Context, fn func(*sqlx.Tx) error) error
	adminShare       decimal.Decimal
	taxThreshold     decimal.Decimal
	taxRate          decimal.Decimal
	lockTTL          time.Duration
	logger           *logger.Logger
}

// NewService creates a new distribution service
func NewService(
	db *sqlx.DB,
	ledgerService *ledger.Service,
	walletRepo repositories.WalletStore,
	distributionRepo repositories.DistributionStore,
	positionRepo repositories.PositionStore,
	outboxRepo repositories.OutboxStore,
	locker cache.Locker,
	adminShare, taxThreshold, taxRate decimal.Decimal,
	lockTTL time.Duration,
	logger *logger.Logger,
) *Service {
	return &Service{
		journal:          ledgerService,
		walletRepo:       walletRepo,
		distributionRepo: distributionRepo,
		positionRepo:     positionRepo,
		outboxRepo:       outboxRepo,
		locker:           locker,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		adminShare:   adminShare,
		taxThreshold: taxThreshold,
		taxRate:      taxRate,
		lockTTL:      lockTTL,
		logger:       logger,
	}
}

// Distribute splits the declared profit into the platform share and the user
// pool, then credits every eligible wallet its pro-rata slice. Each wallet
// commits in its own atomic unit. A wallet failure leaves the period running
// and the error surfaces; calling Distribute again for the same period
// resumes the run, skipping wallets that already hold their share.
func (s *Service) Distribute(ctx context.Context, period string, declaredProfit decimal.Decimal) (*entities.ProfitDistribution, error) {
	if !declaredProfit.IsPositive() {
		return nil, fmt.Errorf("declared profit must be positive")
	}

	token, err := s.locker.AcquireLock(ctx, distributionLockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire distribution lock: %w", err)
	}
	if token == "" {
		return nil, entities.ErrDistributionInProgress
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), distributionLockKey, token); err != nil {
			s.logger.Error("Failed to release distribution lock", "error", err)
		}
	}()

	adminShare, userPool := entities.SplitDeclaredProfit(declaredProfit, s.adminShare)

	dist := &entities.ProfitDistribution{
		ID:             uuid.New(),
		Period:         period,
		DeclaredProfit: declaredProfit,
		AdminShare:     adminShare,
		UserPool:       userPool,
		Status:         entities.DistributionStatusRunning,
		CreatedAt:      time.Now(),
	}

	// The period row and the pool intake entries commit together. A completed
	// period fails here before any wallet is touched; a running one is a
	// prior run that died mid-way and is picked back up with its own figures.
	err = s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		if err := s.distributionRepo.WithTx(dbTx).Create(ctx, dist); err != nil {
			return err
		}
		return s.recordPoolIntake(ctx, dbTx, dist)
	})
	if errors.Is(err, entities.ErrAlreadyDistributed) {
		existing, getErr := s.distributionRepo.GetByPeriod(ctx, period)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status != entities.DistributionStatusRunning {
			return nil, err
		}
		if !existing.DeclaredProfit.Equal(declaredProfit) {
			return nil, fmt.Errorf("period %s is mid-run with declared profit %s, got %s",
				period, existing.DeclaredProfit.String(), declaredProfit.String())
		}
		dist = existing
		s.logger.Warn("Resuming interrupted profit distribution",
			"period", period, "distribution_id", dist.ID)
	} else if err != nil {
		return nil, err
	}

	// Snapshot eligibility once and derive the pro-rata base from the same
	// snapshot, so the shares cannot overrun the pool. Wallets funded after
	// this point join the next period.
	eligible, err := s.walletRepo.ListEligibleForDistribution(ctx)
	if err != nil {
		return nil, err
	}
	totalPrincipal := decimal.Zero
	for _, wallet := range eligible {
		totalPrincipal = totalPrincipal.Add(wallet.Principal)
	}

	recipients := 0
	failed := 0
	totalDistributed := decimal.Zero
	for _, wallet := range eligible {
		gross, tax, net, err := entities.ComputeShare(wallet.Principal, totalPrincipal, dist.UserPool, s.taxThreshold, s.taxRate)
		if err != nil {
			return nil, err
		}
		if !gross.IsPositive() {
			continue
		}

		credited, err := s.journal.HasTransactionForReference(ctx, entities.ReferenceTypeProfitShare, dist.ID, wallet.UserID)
		if err != nil {
			return nil, err
		}
		if credited {
			recipients++
			totalDistributed = totalDistributed.Add(gross)
			continue
		}

		if err := s.creditShare(ctx, dist, wallet, gross, tax, net); err != nil {
			failed++
			s.logger.Error("Profit share credit failed, skipping wallet",
				"period", period,
				"user_id", wallet.UserID,
				"gross", gross.String(),
				"error", err)
			continue
		}

		recipients++
		totalDistributed = totalDistributed.Add(gross)
		metrics.DistributionRecipients.Inc()
	}

	// One or more wallets missed their share: leave the period running so the
	// next call resumes it, and surface the failure to the caller.
	if failed > 0 {
		return nil, fmt.Errorf("distribution for period %s incomplete: %d of %d wallets failed, run again to resume",
			period, failed, failed+recipients)
	}

	if err := s.distributionRepo.Finalize(ctx, dist.ID, recipients, totalDistributed); err != nil {
		return nil, err
	}
	dist.Recipients = recipients
	dist.TotalDistributed = totalDistributed
	dist.Status = entities.DistributionStatusCompleted

	s.logger.Info("Profit distribution completed",
		"period", period,
		"declared", dist.DeclaredProfit.String(),
		"admin_share", dist.AdminShare.String(),
		"user_pool", dist.UserPool.String(),
		"recipients", recipients,
		"total_distributed", totalDistributed.String())

	return dist, nil
}

// recordPoolIntake journals the declared profit entering the distribution
// pool and the platform share leaving it. The envelope has no wallet owner;
// pool accounts are journaled but never materialized.
func (s *Service) recordPoolIntake(ctx context.Context, dbTx *sqlx.Tx, dist *entities.ProfitDistribution) error {
	refID := dist.ID
	movements := []entities.Movement{
		{AccountType: entities.AccountTypeAdminBank, Direction: entities.DirectionDebit, Amount: dist.DeclaredProfit},
		{AccountType: entities.AccountTypeProfitPool, Direction: entities.DirectionCredit, Amount: dist.DeclaredProfit},
	}
	if dist.AdminShare.IsPositive() {
		movements = append(movements,
			entities.Movement{AccountType: entities.AccountTypeProfitPool, Direction: entities.DirectionDebit, Amount: dist.AdminShare},
			entities.Movement{AccountType: entities.AccountTypeAdminBank, Direction: entities.DirectionCredit, Amount: dist.AdminShare},
		)
	}

	_, err := s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
		UserID:        entities.SystemUserID,
		Type:          entities.TransactionTypeProfit,
		Amount:        dist.DeclaredProfit,
		Fee:           decimal.Zero,
		ReferenceType: entities.ReferenceTypeProfitShare,
		ReferenceID:   &refID,
		Description:   fmt.Sprintf("Profit pool intake for period %s", dist.Period),
		Detail: entities.ProfitShareDetail{
			Period:     dist.Period,
			GrossShare: dist.DeclaredProfit,
		},
		Movements: movements,
	})
	return err
}

// creditShare commits one wallet's slice in its own atomic unit. Tax above
// the threshold is withheld to the platform settlement account; the net goes
// to the profit bucket or compounds into principal per the wallet preference.
func (s *Service) creditShare(ctx context.Context, dist *entities.ProfitDistribution, wallet *entities.Wallet, gross, tax, net decimal.Decimal) error {
	compound := wallet.Preference == entities.PreferenceCompound

	bucket := entities.AccountTypeProfit
	if compound {
		bucket = entities.AccountTypePrincipal
	}

	refID := dist.ID
	movements := []entities.Movement{
		{AccountType: entities.AccountTypeProfitPool, Direction: entities.DirectionDebit, Amount: gross},
		{Owner: &wallet.UserID, AccountType: bucket, Direction: entities.DirectionCredit, Amount: net},
	}
	if tax.IsPositive() {
		movements = append(movements, entities.Movement{
			AccountType: entities.AccountTypeAdminBank,
			Direction:   entities.DirectionCredit,
			Amount:      tax,
		})
	}

	return s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		_, err := s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
			UserID:        wallet.UserID,
			Type:          entities.TransactionTypeProfit,
			Amount:        gross,
			Fee:           tax,
			ReferenceType: entities.ReferenceTypeProfitShare,
			ReferenceID:   &refID,
			Description:   fmt.Sprintf("Profit share for period %s", dist.Period),
			Detail: entities.ProfitShareDetail{
				Period:      dist.Period,
				GrossShare:  gross,
				TaxWithheld: tax,
				Compounded:  compound,
			},
			Movements: movements,
		})
		if err != nil {
			return err
		}

		// Compounded profit grows the invested base, so it joins the flexible
		// position like a fresh deposit.
		if compound {
			if err := s.growFlexiblePosition(ctx, dbTx, wallet.UserID, net); err != nil {
				return err
			}
		}

		event, err := entities.NewOutboxEvent(wallet.UserID, entities.OutboxEventProfitDistributed, map[string]any{
			"period":     dist.Period,
			"gross":      gross,
			"tax":        tax,
			"net":        net,
			"compounded": compound,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event)
	})
}

func (s *Service) growFlexiblePosition(ctx context.Context, dbTx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	positionRepo := s.positionRepo.WithTx(dbTx)
	existing, err := positionRepo.GetActiveFlexibleForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return positionRepo.Grow(ctx, existing.ID, amount)
	}
	return positionRepo.Create(ctx, &entities.Position{
		ID:       uuid.New(),
		UserID:   userID,
		Amount:   amount,
		Plan:     entities.PlanFlexible,
		Active:   true,
		OpenedAt: time.Now(),
	})
}

// GetByPeriod returns a past distribution run
func (s *Service) GetByPeriod(ctx context.Context, period string) (*entities.ProfitDistribution, error) {
	return s.distributionRepo.GetByPeriod(ctx, period)
}
