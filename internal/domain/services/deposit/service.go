package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
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

// replayCounterTTL bounds how long duplicate-callback counters live in redis
const replayCounterTTL = 24 * time.Hour

// journal is the slice of the ledger service this package records through
type journal interface {
	RecordTx(ctx context.Context, dbTx *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error)
}

// replayCounter tracks duplicate webhook deliveries per order
type replayCounter interface {
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Service handles deposit intents and gateway confirmation callbacks
type Service struct {
	journal       journal
	depositRepo   repositories.DepositStore
	positionRepo  repositories.PositionStore
	outboxRepo    repositories.OutboxStore
	counter       replayCounter
	runTx         func(ctx context.Context, fn func(*sqlx.Tx) error) error
	webhookSecret string
	referralRate  decimal.Decimal
	logger        *logger.Logger
}

// NewService creates a new deposit service
func NewService(
	db *sqlx.DB,
	ledgerService *ledger.Service,
	depositRepo repositories.DepositStore,
	positionRepo repositories.PositionStore,
	outboxRepo repositories.OutboxStore,
	counter replayCounter,
	webhookSecret string,
	referralRate decimal.Decimal,
	logger *logger.Logger,
) *Service {
	return &Service{
		journal:      ledgerService,
		depositRepo:  depositRepo,
		positionRepo: positionRepo,
		outboxRepo:   outboxRepo,
		counter:      counter,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return database.WithTransaction(ctx, db, fn)
		},
		webhookSecret: webhookSecret,
		referralRate:  referralRate,
		logger:        logger,
	}
}

// Initiate creates a pending deposit intent for a gateway checkout. No money
// moves until the gateway confirms.
func (s *Service) Initiate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, plan entities.InvestmentPlan, referrerID *uuid.UUID) (*entities.Deposit, error) {
	deposit := &entities.Deposit{
		ID:         uuid.New(),
		UserID:     userID,
		OrderID:    fmt.Sprintf("PV-%s", uuid.New().String()),
		Amount:     amount,
		Plan:       plan,
		ReferrerID: referrerID,
		Status:     entities.DepositStatusPending,
		CreatedAt:  time.Now(),
	}
	if err := deposit.Validate(); err != nil {
		return nil, err
	}
	if err := s.depositRepo.Create(ctx, deposit); err != nil {
		return nil, err
	}

	s.logger.Info("Deposit intent created",
		"order_id", deposit.OrderID,
		"user_id", userID,
		"amount", amount.String(),
		"plan", plan)

	return deposit, nil
}

// VerifySignature checks the gateway's HMAC-SHA256 signature over
// "orderID|paymentID". Comparison is constant time.
func (s *Service) VerifySignature(orderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return entities.ErrSignatureMismatch
	}
	return nil
}

// VerifyAndCredit processes a gateway success callback. A signature mismatch
// marks the deposit failed and credits nothing. On a valid signature the
// pending to success transition is a single conditional update, so a replayed
// callback can never credit twice. The deposit row, journal entries, wallet
// fold, position growth, and the confirmation notification all commit in one
// atomic unit.
func (s *Service) VerifyAndCredit(ctx context.Context, orderID, paymentID, signature string) (*entities.Transaction, error) {
	if err := s.VerifySignature(orderID, paymentID, signature); err != nil {
		s.failOnMismatch(ctx, orderID)
		return nil, err
	}

	deposit, err := s.depositRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var tx *entities.Transaction
	err = s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		confirmed, err := s.depositRepo.WithTx(dbTx).ConfirmPending(ctx, orderID, paymentID)
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("%w: deposit %s", entities.ErrAlreadyProcessed, orderID)
		}

		refID := deposit.ID
		tx, err = s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
			UserID:        deposit.UserID,
			Type:          entities.TransactionTypeDeposit,
			Amount:        deposit.Amount,
			Fee:           decimal.Zero,
			ReferenceType: entities.ReferenceTypeDeposit,
			ReferenceID:   &refID,
			Description:   fmt.Sprintf("Deposit %s confirmed", orderID),
			Detail: entities.DepositDetail{
				OrderID:   orderID,
				PaymentID: paymentID,
				Plan:      string(deposit.Plan),
			},
			Movements: []entities.Movement{
				{AccountType: entities.AccountTypeGatewayPool, Direction: entities.DirectionDebit, Amount: deposit.Amount},
				{Owner: &deposit.UserID, AccountType: deposit.CreditBucket(), Direction: entities.DirectionCredit, Amount: deposit.Amount},
			},
		})
		if err != nil {
			return err
		}

		if err := s.openOrGrowPosition(ctx, dbTx, deposit); err != nil {
			return err
		}

		event, err := entities.NewOutboxEvent(deposit.UserID, entities.OutboxEventDepositConfirmed, map[string]any{
			"order_id": orderID,
			"amount":   deposit.Amount,
			"plan":     deposit.Plan,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event)
	})
	if err != nil {
		if errors.Is(err, entities.ErrAlreadyProcessed) {
			s.recordReplay(ctx, orderID)
		}
		return nil, err
	}

	metrics.DepositsConfirmed.Inc()
	s.logger.Info("Deposit credited",
		"order_id", orderID,
		"payment_id", paymentID,
		"user_id", deposit.UserID,
		"amount", deposit.Amount.String())

	// The referral bonus is its own atomic unit. A failure here must not
	// unwind a deposit that already committed.
	if deposit.ReferrerID != nil {
		if err := s.creditReferralBonus(ctx, deposit); err != nil {
			s.logger.Error("Referral bonus credit failed",
				"order_id", orderID,
				"referrer_id", *deposit.ReferrerID,
				"error", err)
		}
	}

	return tx, nil
}

// MarkFailed records a gateway failure callback. Nothing was credited, so the
// only state change is the intent status. A forged failure callback also fails
// the intent; no credit can ever follow a signature mismatch.
func (s *Service) MarkFailed(ctx context.Context, orderID, paymentID, signature string) error {
	if err := s.VerifySignature(orderID, paymentID, signature); err != nil {
		s.failOnMismatch(ctx, orderID)
		return err
	}
	return s.depositRepo.MarkFailed(ctx, orderID)
}

// failOnMismatch fails the deposit after an unauthenticated callback. The
// error is logged, not returned; the caller's mismatch error is the outcome.
func (s *Service) failOnMismatch(ctx context.Context, orderID string) {
	if err := s.depositRepo.MarkFailed(ctx, orderID); err != nil {
		s.logger.Error("Failed to fail deposit after signature mismatch",
			"order_id", orderID,
			"error", err)
	}
	s.logger.Warn("Gateway callback signature mismatch", "order_id", orderID)
}

// recordReplay counts a duplicate confirmation for the order
func (s *Service) recordReplay(ctx context.Context, orderID string) {
	metrics.DepositsDuplicate.Inc()
	if s.counter == nil {
		return
	}
	if _, err := s.counter.IncrCounter(ctx, "ledger:webhook:replay:"+orderID, replayCounterTTL); err != nil {
		s.logger.Warn("Replay counter update failed", "order_id", orderID, "error", err)
	}
}

// openOrGrowPosition attaches the confirmed deposit to a position. Flexible
// deposits merge into the user's open flexible position when one exists;
// locked deposits always open a new term position.
func (s *Service) openOrGrowPosition(ctx context.Context, dbTx *sqlx.Tx, deposit *entities.Deposit) error {
	positionRepo := s.positionRepo.WithTx(dbTx)

	if deposit.Plan == entities.PlanFlexible {
		existing, err := positionRepo.GetActiveFlexibleForUpdate(ctx, deposit.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return positionRepo.Grow(ctx, existing.ID, deposit.Amount)
		}
	}

	return positionRepo.Create(ctx, &entities.Position{
		ID:       uuid.New(),
		UserID:   deposit.UserID,
		Amount:   deposit.Amount,
		Plan:     deposit.Plan,
		Active:   true,
		OpenedAt: time.Now(),
	})
}

// creditReferralBonus credits the referrer's referral bucket out of the admin
// bank. Rate is applied to the confirmed deposit amount and rounded to cents.
func (s *Service) creditReferralBonus(ctx context.Context, deposit *entities.Deposit) error {
	bonus := deposit.Amount.Mul(s.referralRate).Round(2)
	if !bonus.IsPositive() {
		return nil
	}

	referrerID := *deposit.ReferrerID
	refID := deposit.ID

	return s.runTx(ctx, func(dbTx *sqlx.Tx) error {
		_, err := s.journal.RecordTx(ctx, dbTx, &ledger.RecordRequest{
			UserID:        referrerID,
			Type:          entities.TransactionTypeReferralBonus,
			Amount:        bonus,
			Fee:           decimal.Zero,
			ReferenceType: entities.ReferenceTypeReferralBonus,
			ReferenceID:   &refID,
			Description:   fmt.Sprintf("Referral bonus for deposit %s", deposit.OrderID),
			Detail: entities.ReferralBonusDetail{
				ReferredUserID: deposit.UserID,
				DepositAmount:  deposit.Amount,
				BonusRate:      s.referralRate,
			},
			Movements: []entities.Movement{
				{AccountType: entities.AccountTypeAdminBank, Direction: entities.DirectionDebit, Amount: bonus},
				{Owner: &referrerID, AccountType: entities.AccountTypeReferral, Direction: entities.DirectionCredit, Amount: bonus},
			},
		})
		if err != nil {
			return err
		}

		event, err := entities.NewOutboxEvent(referrerID, entities.OutboxEventReferralBonus, map[string]any{
			"referred_user_id": deposit.UserID,
			"bonus":            bonus,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.WithTx(dbTx).Enqueue(ctx, event)
	})
}

// GetByOrderID returns a deposit intent
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*entities.Deposit, error) {
	return s.depositRepo.GetByOrderID(ctx, orderID)
}

// ListByUser returns a user's deposit history
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Deposit, error) {
	return s.depositRepo.ListByUserID(ctx, userID, limit, offset)
}
