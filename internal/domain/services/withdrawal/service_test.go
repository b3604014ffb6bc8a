package withdrawal

import (
	"context"
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

func TestSourceMovements(t *testing.T) {
	userID := uuid.New()
	plan := entities.SourcePlan{
		FromProfit:    decimal.NewFromInt(100),
		FromReferral:  decimal.NewFromInt(20),
		FromPrincipal: decimal.Zero,
	}

	movements := sourceMovements(userID, plan)

	require.NoError(t, entities.ValidateBalanced(movements))
	assert.Len(t, movements, 3, "zero principal leg must be omitted")

	last := movements[len(movements)-1]
	assert.Equal(t, entities.AccountTypeLocked, last.AccountType)
	assert.Equal(t, entities.DirectionCredit, last.Direction)
	assert.True(t, last.Amount.Equal(decimal.NewFromInt(120)))
}

func TestReversalMovementsMirrorSourcing(t *testing.T) {
	userID := uuid.New()
	breakdown := entities.WithdrawalDetail{
		FromProfit:   decimal.NewFromInt(100),
		FromReferral: decimal.NewFromInt(20),
	}
	amount := decimal.NewFromInt(120)

	movements := reversalMovements(userID, amount, breakdown)
	require.NoError(t, entities.ValidateBalanced(movements))

	// The reversal undoes the request exactly: apply request then reversal
	// and every bucket is back where it started.
	wallet := &entities.Wallet{
		UserID:   userID,
		Profit:   decimal.NewFromInt(100),
		Referral: decimal.NewFromInt(50),
	}
	before := *wallet

	for _, m := range append(sourceMovements(userID, entities.SourcePlan{
		FromProfit:   breakdown.FromProfit,
		FromReferral: breakdown.FromReferral,
	}), movements...) {
		require.NoError(t, wallet.Apply(&entities.LedgerEntry{
			ID:            uuid.New(),
			AccountOwner:  m.Owner,
			AccountType:   m.AccountType,
			Direction:     m.Direction,
			Amount:        m.Amount,
			ReferenceType: entities.ReferenceTypeWithdrawalRequest,
		}))
	}

	assert.True(t, wallet.Profit.Equal(before.Profit))
	assert.True(t, wallet.Referral.Equal(before.Referral))
	assert.True(t, wallet.Principal.Equal(before.Principal))
	assert.True(t, wallet.Locked.Equal(before.Locked))
}

// Fakes for the request and decision paths. The transaction seam runs the
// unit function with a nil tx, and every fake hands itself back from WithTx.

type recordedPhase struct {
	txID      uuid.UUID
	refType   entities.ReferenceType
	movements []entities.Movement
}

type fakeJournal struct {
	envelopes map[uuid.UUID]*entities.Transaction
	phases    []recordedPhase
	completed []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeJournal) RecordTx(_ context.Context, _ *sqlx.Tx, req *ledger.RecordRequest) (*entities.Transaction, error) {
	tx := &entities.Transaction{
		ID:            uuid.New(),
		UserID:        req.UserID,
		Type:          req.Type,
		Status:        entities.TransactionStatusPending,
		Amount:        req.Amount,
		Fee:           req.Fee,
		NetAmount:     req.Amount.Sub(req.Fee),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		CreatedAt:     time.Now(),
	}
	if req.Detail != nil {
		if err := tx.SetDetail(req.Detail); err != nil {
			return nil, err
		}
	}
	if !req.Pending {
		tx.MarkSuccess()
	}
	f.envelopes[tx.ID] = tx
	return tx, nil
}

func (f *fakeJournal) AppendPhaseTx(_ context.Context, _ *sqlx.Tx, txID uuid.UUID, refType entities.ReferenceType, _ *uuid.UUID, movements []entities.Movement) error {
	f.phases = append(f.phases, recordedPhase{txID: txID, refType: refType, movements: movements})
	return nil
}

func (f *fakeJournal) CompleteTx(_ context.Context, _ *sqlx.Tx, txID uuid.UUID) error {
	f.envelopes[txID].MarkSuccess()
	f.completed = append(f.completed, txID)
	return nil
}

func (f *fakeJournal) FailTx(_ context.Context, _ *sqlx.Tx, txID uuid.UUID) error {
	f.envelopes[txID].MarkFailed()
	f.failed = append(f.failed, txID)
	return nil
}

func (f *fakeJournal) GetTransactionTx(_ context.Context, _ *sqlx.Tx, txID uuid.UUID) (*entities.Transaction, error) {
	tx, ok := f.envelopes[txID]
	if !ok {
		return nil, entities.ErrWalletNotFound
	}
	return tx, nil
}

type fakeWalletStore struct {
	wallets map[uuid.UUID]*entities.Wallet
}

func (f *fakeWalletStore) WithTx(*sqlx.Tx) repositories.WalletStore { return f }

func (f *fakeWalletStore) GetByUserID(_ context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	return f.get(userID)
}

func (f *fakeWalletStore) GetByUserIDForUpdate(_ context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	return f.get(userID)
}

func (f *fakeWalletStore) GetOrCreateForUpdate(_ context.Context, userID uuid.UUID) (*entities.Wallet, error) {
	return f.get(userID)
}

func (f *fakeWalletStore) get(userID uuid.UUID) (*entities.Wallet, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return nil, entities.ErrWalletNotFound
	}
	return w, nil
}

func (f *fakeWalletStore) Save(context.Context, *entities.Wallet) error { return nil }

func (f *fakeWalletStore) SetPreference(context.Context, uuid.UUID, entities.PayoutPreference) error {
	return nil
}

func (f *fakeWalletStore) ListUserIDs(context.Context) ([]uuid.UUID, error) { return nil, nil }

func (f *fakeWalletStore) ListEligibleForDistribution(context.Context) ([]*entities.Wallet, error) {
	return nil, nil
}

type fakeWithdrawalStore struct {
	byID map[uuid.UUID]*entities.Withdrawal
}

func (f *fakeWithdrawalStore) WithTx(*sqlx.Tx) repositories.WithdrawalStore { return f }

func (f *fakeWithdrawalStore) Create(_ context.Context, w *entities.Withdrawal) error {
	f.byID[w.ID] = w
	return nil
}

func (f *fakeWithdrawalStore) GetByID(_ context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	w, ok := f.byID[id]
	if !ok {
		return nil, entities.ErrWalletNotFound
	}
	return w, nil
}

func (f *fakeWithdrawalStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeWithdrawalStore) Decide(_ context.Context, id uuid.UUID, status entities.WithdrawalStatus) error {
	f.byID[id].Status = status
	return nil
}

func (f *fakeWithdrawalStore) ListByUserID(context.Context, uuid.UUID, int, int) ([]*entities.Withdrawal, error) {
	return nil, nil
}

func (f *fakeWithdrawalStore) HasPendingSweep(context.Context, uuid.UUID) (bool, error) {
	return false, nil
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

type withdrawalFixture struct {
	svc         *Service
	journal     *fakeJournal
	wallets     *fakeWalletStore
	withdrawals *fakeWithdrawalStore
	outbox      *fakeOutboxStore
}

func newWithdrawalFixture(wallet *entities.Wallet) *withdrawalFixture {
	f := &withdrawalFixture{
		journal:     &fakeJournal{envelopes: map[uuid.UUID]*entities.Transaction{}},
		wallets:     &fakeWalletStore{wallets: map[uuid.UUID]*entities.Wallet{}},
		withdrawals: &fakeWithdrawalStore{byID: map[uuid.UUID]*entities.Withdrawal{}},
		outbox:      &fakeOutboxStore{},
	}
	if wallet != nil {
		f.wallets.wallets[wallet.UserID] = wallet
	}
	f.svc = &Service{
		journal:        f.journal,
		walletRepo:     f.wallets,
		withdrawalRepo: f.withdrawals,
		outboxRepo:     f.outbox,
		runTx: func(_ context.Context, fn func(*sqlx.Tx) error) error {
			return fn(nil)
		},
		logger: logger.New("error", "test"),
	}
	return f
}

func TestRequestSourcesWaterfallAndLocks(t *testing.T) {
	userID := uuid.New()
	f := newWithdrawalFixture(&entities.Wallet{
		UserID:    userID,
		Profit:    decimal.NewFromInt(100),
		Referral:  decimal.NewFromInt(50),
		Principal: decimal.NewFromInt(300),
	})

	w, err := f.svc.Request(context.Background(), userID, decimal.NewFromInt(400))
	require.NoError(t, err)

	assert.True(t, w.FromProfit.Equal(decimal.NewFromInt(100)))
	assert.True(t, w.FromReferral.Equal(decimal.NewFromInt(50)))
	assert.True(t, w.FromPrincipal.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, entities.WithdrawalStatusPending, w.Status)

	// The envelope stays open for the decision phase and carries the same
	// sourcing as the withdrawal row.
	envelope := f.journal.envelopes[w.TransactionID]
	require.NotNil(t, envelope)
	assert.Equal(t, entities.TransactionStatusPending, envelope.Status)
	detail, err := envelope.WithdrawalDetail()
	require.NoError(t, err)
	assert.True(t, detail.Total().Equal(w.Breakdown().Total()))

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, entities.OutboxEventWithdrawalRequested, f.outbox.events[0].EventType)
}

func TestApproveReleasesLockedFunds(t *testing.T) {
	userID := uuid.New()
	f := newWithdrawalFixture(&entities.Wallet{
		UserID: userID,
		Profit: decimal.NewFromInt(500),
	})

	w, err := f.svc.Request(context.Background(), userID, decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, f.svc.Approve(context.Background(), w.ID))

	assert.Equal(t, entities.WithdrawalStatusApproved, w.Status)
	assert.Equal(t, []uuid.UUID{w.TransactionID}, f.journal.completed)

	require.Len(t, f.journal.phases, 1)
	phase := f.journal.phases[0]
	assert.Equal(t, entities.ReferenceTypeWithdrawalApproval, phase.refType)
	require.Len(t, phase.movements, 2)
	assert.Equal(t, entities.AccountTypeLocked, phase.movements[0].AccountType)
	assert.Equal(t, entities.DirectionDebit, phase.movements[0].Direction)
	assert.Equal(t, entities.AccountTypeAdminBank, phase.movements[1].AccountType)
	assert.Equal(t, entities.DirectionCredit, phase.movements[1].Direction)
}

func TestRejectReturnsFundsToSourceBuckets(t *testing.T) {
	userID := uuid.New()
	f := newWithdrawalFixture(&entities.Wallet{
		UserID:   userID,
		Profit:   decimal.NewFromInt(150),
		Referral: decimal.NewFromInt(100),
	})

	w, err := f.svc.Request(context.Background(), userID, decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(context.Background(), w.ID))

	assert.Equal(t, entities.WithdrawalStatusRejected, w.Status)
	assert.Equal(t, []uuid.UUID{w.TransactionID}, f.journal.failed)

	require.Len(t, f.journal.phases, 1)
	phase := f.journal.phases[0]
	assert.Equal(t, entities.ReferenceTypeWithdrawalReversal, phase.refType)
	require.NoError(t, entities.ValidateBalanced(phase.movements))

	// The reversal mirrors the persisted breakdown exactly.
	assert.Equal(t, entities.AccountTypeLocked, phase.movements[0].AccountType)
	assert.Equal(t, entities.DirectionDebit, phase.movements[0].Direction)
	assert.True(t, phase.movements[0].Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, entities.AccountTypeProfit, phase.movements[1].AccountType)
	assert.True(t, phase.movements[1].Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, entities.AccountTypeReferral, phase.movements[2].AccountType)
	assert.True(t, phase.movements[2].Amount.Equal(decimal.NewFromInt(50)))
}

func TestDecideRejectsTamperedEnvelope(t *testing.T) {
	userID := uuid.New()
	f := newWithdrawalFixture(&entities.Wallet{
		UserID: userID,
		Profit: decimal.NewFromInt(500),
	})

	w, err := f.svc.Request(context.Background(), userID, decimal.NewFromInt(200))
	require.NoError(t, err)

	// The envelope's sourcing no longer matches the withdrawal row.
	require.NoError(t, f.journal.envelopes[w.TransactionID].SetDetail(entities.WithdrawalDetail{
		FromProfit: decimal.NewFromInt(999),
	}))

	err = f.svc.Approve(context.Background(), w.ID)
	require.Error(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, w.Status, "no decision may land on a disagreeing pair")
	assert.Empty(t, f.journal.phases)
}

func TestDecideTwiceRejected(t *testing.T) {
	userID := uuid.New()
	f := newWithdrawalFixture(&entities.Wallet{
		UserID: userID,
		Profit: decimal.NewFromInt(500),
	})

	w, err := f.svc.Request(context.Background(), userID, decimal.NewFromInt(200))
	require.NoError(t, err)

	require.NoError(t, f.svc.Approve(context.Background(), w.ID))
	err = f.svc.Reject(context.Background(), w.ID)
	require.ErrorIs(t, err, entities.ErrAlreadyProcessed)
	assert.Len(t, f.journal.phases, 1, "the second decision must not move money")
}
