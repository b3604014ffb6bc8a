package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(owner uuid.UUID, at AccountType, dir Direction, amount float64, ref ReferenceType) *LedgerEntry {
	return &LedgerEntry{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		AccountOwner:  &owner,
		AccountType:   at,
		Direction:     dir,
		Amount:        decimal.NewFromFloat(amount),
		ReferenceType: ref,
	}
}

func TestWalletApply(t *testing.T) {
	userID := uuid.New()

	t.Run("deposit credit grows principal and lifetime counter", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		err := w.Apply(entry(userID, AccountTypePrincipal, DirectionCredit, 500, ReferenceTypeDeposit))
		require.NoError(t, err)
		assert.True(t, w.Principal.Equal(decimal.NewFromInt(500)))
		assert.True(t, w.TotalDeposited.Equal(decimal.NewFromInt(500)))
	})

	t.Run("locked plan deposit counts as deposited", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		require.NoError(t, w.Apply(entry(userID, AccountTypeLocked, DirectionCredit, 250, ReferenceTypeDeposit)))
		assert.True(t, w.Locked.Equal(decimal.NewFromInt(250)))
		assert.True(t, w.TotalDeposited.Equal(decimal.NewFromInt(250)))
	})

	t.Run("debit below zero fails without clamping", func(t *testing.T) {
		w := &Wallet{UserID: userID, Profit: decimal.NewFromInt(10)}
		err := w.Apply(entry(userID, AccountTypeProfit, DirectionDebit, 25, ReferenceTypeWithdrawalRequest))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, w.Profit.Equal(decimal.NewFromInt(10)), "failed debit must not move the bucket")
	})

	t.Run("approval debit of locked counts as withdrawn", func(t *testing.T) {
		w := &Wallet{UserID: userID, Locked: decimal.NewFromInt(120)}
		require.NoError(t, w.Apply(entry(userID, AccountTypeLocked, DirectionDebit, 120, ReferenceTypeWithdrawalApproval)))
		assert.True(t, w.Locked.IsZero())
		assert.True(t, w.TotalWithdrawn.Equal(decimal.NewFromInt(120)))
	})

	t.Run("profit share credit counts toward total profit", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		require.NoError(t, w.Apply(entry(userID, AccountTypeProfit, DirectionCredit, 42.50, ReferenceTypeProfitShare)))
		assert.True(t, w.TotalProfit.Equal(decimal.NewFromFloat(42.50)))
	})

	t.Run("compounded profit share also counts toward total profit", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		require.NoError(t, w.Apply(entry(userID, AccountTypePrincipal, DirectionCredit, 30, ReferenceTypeProfitShare)))
		assert.True(t, w.Principal.Equal(decimal.NewFromInt(30)))
		assert.True(t, w.TotalProfit.Equal(decimal.NewFromInt(30)))
	})

	t.Run("system account entries cannot be folded", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		e := entry(userID, AccountTypeGatewayPool, DirectionDebit, 1, ReferenceTypeDeposit)
		assert.Error(t, w.Apply(e))
	})

	t.Run("entry for another user is rejected", func(t *testing.T) {
		w := &Wallet{UserID: userID}
		e := entry(uuid.New(), AccountTypePrincipal, DirectionCredit, 1, ReferenceTypeDeposit)
		assert.Error(t, w.Apply(e))
	})
}

// TestFoldEntriesMatchesIncrementalApply is the consistency property: a
// wallet maintained entry by entry equals the wallet folded from the full
// journal in one pass.
func TestFoldEntriesMatchesIncrementalApply(t *testing.T) {
	userID := uuid.New()
	journal := []*LedgerEntry{
		entry(userID, AccountTypePrincipal, DirectionCredit, 1000, ReferenceTypeDeposit),
		entry(userID, AccountTypeReferral, DirectionCredit, 50, ReferenceTypeReferralBonus),
		entry(userID, AccountTypeProfit, DirectionCredit, 100, ReferenceTypeProfitShare),
		entry(userID, AccountTypeProfit, DirectionDebit, 100, ReferenceTypeWithdrawalRequest),
		entry(userID, AccountTypeReferral, DirectionDebit, 20, ReferenceTypeWithdrawalRequest),
		entry(userID, AccountTypeLocked, DirectionCredit, 120, ReferenceTypeWithdrawalRequest),
		entry(userID, AccountTypeLocked, DirectionDebit, 120, ReferenceTypeWithdrawalApproval),
	}

	incremental := &Wallet{UserID: userID}
	for _, e := range journal {
		require.NoError(t, incremental.Apply(e))
	}

	folded, err := FoldEntries(userID, journal)
	require.NoError(t, err)

	assert.True(t, folded.Principal.Equal(incremental.Principal))
	assert.True(t, folded.Profit.Equal(incremental.Profit))
	assert.True(t, folded.Referral.Equal(incremental.Referral))
	assert.True(t, folded.Locked.Equal(incremental.Locked))
	assert.True(t, folded.TotalDeposited.Equal(incremental.TotalDeposited))
	assert.True(t, folded.TotalWithdrawn.Equal(incremental.TotalWithdrawn))
	assert.True(t, folded.TotalProfit.Equal(incremental.TotalProfit))

	// Final balances after the full flow
	assert.True(t, folded.Principal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, folded.Profit.IsZero())
	assert.True(t, folded.Referral.Equal(decimal.NewFromInt(30)))
	assert.True(t, folded.Locked.IsZero())
	assert.True(t, folded.TotalWithdrawn.Equal(decimal.NewFromInt(120)))
}

func TestWalletValidate(t *testing.T) {
	w := &Wallet{UserID: uuid.New(), Principal: decimal.NewFromInt(-1)}
	assert.Error(t, w.Validate())

	w.Principal = decimal.NewFromInt(1)
	assert.NoError(t, w.Validate())
}
