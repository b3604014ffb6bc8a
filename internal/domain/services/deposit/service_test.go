package deposit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
)

func sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	svc := &Service{webhookSecret: "test-secret"}

	t.Run("valid signature passes", func(t *testing.T) {
		sig := sign("test-secret", "PV-123", "pay_789")
		assert.NoError(t, svc.VerifySignature("PV-123", "pay_789", sig))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		sig := sign("other-secret", "PV-123", "pay_789")
		err := svc.VerifySignature("PV-123", "pay_789", sig)
		require.Error(t, err)
		assert.ErrorIs(t, err, entities.ErrSignatureMismatch)
	})

	t.Run("tampered order ID fails", func(t *testing.T) {
		sig := sign("test-secret", "PV-123", "pay_789")
		assert.ErrorIs(t, svc.VerifySignature("PV-999", "pay_789", sig), entities.ErrSignatureMismatch)
	})

	t.Run("tampered payment ID fails", func(t *testing.T) {
		sig := sign("test-secret", "PV-123", "pay_789")
		assert.ErrorIs(t, svc.VerifySignature("PV-123", "pay_000", sig), entities.ErrSignatureMismatch)
	})

	t.Run("garbage signature fails", func(t *testing.T) {
		assert.ErrorIs(t, svc.VerifySignature("PV-123", "pay_789", "not-hex"), entities.ErrSignatureMismatch)
	})
}

// Fakes for the service-level callback tests. The transaction seam runs the
// unit function with a nil tx, and every fake hands itself back from WithTx.

type fakeJournal struct {
	requests []*ledger.RecordRequest
	err      error
}

func (f *fakeJournal) RecordTx(_ context.Context, _ *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &entities.Transaction{ID: uuid.New(), UserID: req.UserID, Amount: req.Amount}, nil
}

type fakeDepositStore struct {
	byOrder map[string]*entities.Deposit
	failed  []string
}

func (f *fakeDepositStore) WithTx(*sqlx.Tx) repositories.DepositStore { return f }

func (f *fakeDepositStore) Create(_ context.Context, d *entities.Deposit) error {
	f.byOrder[d.OrderID] = d
	return nil
}

func (f *fakeDepositStore) GetByOrderID(_ context.Context, orderID string) (*entities.Deposit, error) {
	d, ok := f.byOrder[orderID]
	if !ok {
		return nil, fmt.Errorf("deposit %s: %w", orderID, sql.ErrNoRows)
	}
	return d, nil
}

func (f *fakeDepositStore) ConfirmPending(_ context.Context, orderID, _ string) (bool, error) {
	d, ok := f.byOrder[orderID]
	if !ok || d.Status != entities.DepositStatusPending {
		return false, nil
	}
	d.Status = entities.DepositStatusSuccess
	return true, nil
}

func (f *fakeDepositStore) MarkFailed(_ context.Context, orderID string) error {
	if d, ok := f.byOrder[orderID]; ok && d.Status == entities.DepositStatusPending {
		d.Status = entities.DepositStatusFailed
		f.failed = append(f.failed, orderID)
	}
	return nil
}

func (f *fakeDepositStore) ListByUserID(context.Context, uuid.UUID, int, int) ([]*entities.Deposit, error) {
	return nil, nil
}

func (f *fakeDepositStore) GetTotalConfirmed(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakePositionStore struct {
	created []*entities.Position
	grown   []uuid.UUID
}

func (f *fakePositionStore) WithTx(*sqlx.Tx) repositories.PositionStore { return f }

func (f *fakePositionStore) Create(_ context.Context, p *entities.Position) error {
	f.created = append(f.created, p)
	return nil
}

func (f *fakePositionStore) GetActiveFlexibleForUpdate(context.Context, uuid.UUID) (*entities.Position, error) {
	return nil, nil
}

func (f *fakePositionStore) Grow(_ context.Context, id uuid.UUID, _ decimal.Decimal) error {
	f.grown = append(f.grown, id)
	return nil
}

func (f *fakePositionStore) ListActiveByUser(context.Context, uuid.UUID) ([]*entities.Position, error) {
	return nil, nil
}

func (f *fakePositionStore) Close(context.Context, uuid.UUID, time.Time) error { return nil }

func (f *fakePositionStore) CloseAllByUser(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

type fakeOutboxStore struct {
	events []*entities.OutboxEvent
}

func (f *fakeOutboxStore) WithTx(*sqlx.Tx) repositories.OutboxStore { return f }

func (f *fakeOutboxStore) Enqueue(_ context.Context, e *entities.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeOutboxStore) ClaimPending(context.Context, int) ([]*entities.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxStore) MarkSent(context.Context, uuid.UUID) error { return nil }

func (f *fakeOutboxStore) MarkAttemptFailed(context.Context, uuid.UUID, int) error { return nil }

type fakeCounter struct {
	keys []string
}

func (f *fakeCounter) IncrCounter(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.keys = append(f.keys, key)
	return int64(len(f.keys)), nil
}

type depositFixture struct {
	svc      *Service
	journal  *fakeJournal
	deposits *fakeDepositStore
	pos      *fakePositionStore
	outbox   *fakeOutboxStore
	counter  *fakeCounter
}

func newDepositFixture() *depositFixture {
	f := &depositFixture{
		journal:  &fakeJournal{},
		deposits: &fakeDepositStore{byOrder: map[string]*entities.Deposit{}},
		pos:      &fakePositionStore{},
		outbox:   &fakeOutboxStore{},
		counter:  &fakeCounter{},
	}
	f.svc = &Service{
		journal:      f.journal,
		depositRepo:  f.deposits,
		positionRepo: f.pos,
		outboxRepo:   f.outbox,
		counter:      f.counter,
		runTx: func(_ context.Context, fn func(*sqlx.Tx) error) error {
			return fn(nil)
		},
		webhookSecret: "test-secret",
		referralRate:  decimal.NewFromFloat(0.05),
		logger:        logger.New("error", "test"),
	}
	return f
}

func pendingDeposit(f *depositFixture, amount int64, referrerID *uuid.UUID) *entities.Deposit {
	d := &entities.Deposit{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		OrderID:    "PV-" + uuid.New().String(),
		Amount:     decimal.NewFromInt(amount),
		Plan:       entities.PlanFlexible,
		ReferrerID: referrerID,
		Status:     entities.DepositStatusPending,
		CreatedAt:  time.Now(),
	}
	f.deposits.byOrder[d.OrderID] = d
	return d
}

func TestVerifyAndCreditHappyPath(t *testing.T) {
	f := newDepositFixture()
	referrer := uuid.New()
	d := pendingDeposit(f, 1000, &referrer)

	tx, err := f.svc.VerifyAndCredit(context.Background(), d.OrderID, "pay_1", sign("test-secret", d.OrderID, "pay_1"))
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, entities.DepositStatusSuccess, d.Status)
	require.Len(t, f.pos.created, 1)
	assert.True(t, f.pos.created[0].Amount.Equal(d.Amount))

	// Deposit credit plus the referral bonus, each its own envelope.
	require.Len(t, f.journal.requests, 2)
	depositReq := f.journal.requests[0]
	assert.Equal(t, entities.ReferenceTypeDeposit, depositReq.ReferenceType)

	bonusReq := f.journal.requests[1]
	assert.Equal(t, entities.ReferenceTypeReferralBonus, bonusReq.ReferenceType)
	assert.Equal(t, referrer, bonusReq.UserID)
	assert.True(t, bonusReq.Amount.Equal(decimal.NewFromInt(50)), "5 percent of 1000")

	// The bonus is funded by the platform settlement account, not the pool.
	require.Len(t, bonusReq.Movements, 2)
	assert.Equal(t, entities.AccountTypeAdminBank, bonusReq.Movements[0].AccountType)
	assert.Equal(t, entities.DirectionDebit, bonusReq.Movements[0].Direction)
	assert.Equal(t, entities.AccountTypeReferral, bonusReq.Movements[1].AccountType)

	require.Len(t, f.outbox.events, 2)
	assert.Equal(t, entities.OutboxEventDepositConfirmed, f.outbox.events[0].EventType)
	assert.Equal(t, entities.OutboxEventReferralBonus, f.outbox.events[1].EventType)
}

func TestVerifyAndCreditSignatureMismatchFailsIntent(t *testing.T) {
	f := newDepositFixture()
	d := pendingDeposit(f, 1000, nil)

	_, err := f.svc.VerifyAndCredit(context.Background(), d.OrderID, "pay_1", "forged")
	require.ErrorIs(t, err, entities.ErrSignatureMismatch)

	assert.Equal(t, entities.DepositStatusFailed, d.Status, "unauthenticated callback must fail the intent")
	assert.Empty(t, f.journal.requests, "nothing may be credited")
	assert.Empty(t, f.outbox.events)
}

func TestVerifyAndCreditMismatchCannotTouchConfirmedDeposit(t *testing.T) {
	f := newDepositFixture()
	d := pendingDeposit(f, 1000, nil)
	d.Status = entities.DepositStatusSuccess

	_, err := f.svc.VerifyAndCredit(context.Background(), d.OrderID, "pay_1", "forged")
	require.ErrorIs(t, err, entities.ErrSignatureMismatch)
	assert.Equal(t, entities.DepositStatusSuccess, d.Status, "a forged callback must not unwind a credited deposit")
}

func TestVerifyAndCreditReplayIsRejected(t *testing.T) {
	f := newDepositFixture()
	d := pendingDeposit(f, 1000, nil)
	sig := sign("test-secret", d.OrderID, "pay_1")

	_, err := f.svc.VerifyAndCredit(context.Background(), d.OrderID, "pay_1", sig)
	require.NoError(t, err)
	require.Len(t, f.journal.requests, 1)

	_, err = f.svc.VerifyAndCredit(context.Background(), d.OrderID, "pay_1", sig)
	require.ErrorIs(t, err, entities.ErrAlreadyProcessed)

	assert.Len(t, f.journal.requests, 1, "a replayed callback must not credit twice")
	require.Len(t, f.counter.keys, 1)
	assert.Equal(t, "ledger:webhook:replay:"+d.OrderID, f.counter.keys[0])
}

func TestMarkFailed(t *testing.T) {
	t.Run("valid signature fails the intent", func(t *testing.T) {
		f := newDepositFixture()
		d := pendingDeposit(f, 1000, nil)

		err := f.svc.MarkFailed(context.Background(), d.OrderID, "pay_1", sign("test-secret", d.OrderID, "pay_1"))
		require.NoError(t, err)
		assert.Equal(t, entities.DepositStatusFailed, d.Status)
	})

	t.Run("forged signature also fails the intent", func(t *testing.T) {
		f := newDepositFixture()
		d := pendingDeposit(f, 1000, nil)

		err := f.svc.MarkFailed(context.Background(), d.OrderID, "pay_1", "forged")
		require.ErrorIs(t, err, entities.ErrSignatureMismatch)
		assert.Equal(t, entities.DepositStatusFailed, d.Status)
	})
}
