package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBalanced(t *testing.T) {
	userID := uuid.New()

	t.Run("balanced pair passes", func(t *testing.T) {
		movements := []Movement{
			{AccountType: AccountTypeGatewayPool, Direction: DirectionDebit, Amount: decimal.NewFromInt(100)},
			{Owner: &userID, AccountType: AccountTypePrincipal, Direction: DirectionCredit, Amount: decimal.NewFromInt(100)},
		}
		assert.NoError(t, ValidateBalanced(movements))
	})

	t.Run("multi-leg set balances as a whole", func(t *testing.T) {
		movements := []Movement{
			{Owner: &userID, AccountType: AccountTypeProfit, Direction: DirectionDebit, Amount: decimal.NewFromInt(100)},
			{Owner: &userID, AccountType: AccountTypeReferral, Direction: DirectionDebit, Amount: decimal.NewFromInt(20)},
			{Owner: &userID, AccountType: AccountTypeLocked, Direction: DirectionCredit, Amount: decimal.NewFromInt(120)},
		}
		assert.NoError(t, ValidateBalanced(movements))
	})

	t.Run("imbalance is rejected", func(t *testing.T) {
		movements := []Movement{
			{AccountType: AccountTypeGatewayPool, Direction: DirectionDebit, Amount: decimal.NewFromInt(100)},
			{Owner: &userID, AccountType: AccountTypePrincipal, Direction: DirectionCredit, Amount: decimal.NewFromFloat(99.90)},
		}
		err := ValidateBalanced(movements)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLedgerImbalance)
	})

	t.Run("sub-cent rounding difference is tolerated", func(t *testing.T) {
		movements := []Movement{
			{AccountType: AccountTypeProfitPool, Direction: DirectionDebit, Amount: decimal.NewFromFloat(33.333)},
			{Owner: &userID, AccountType: AccountTypeProfit, Direction: DirectionCredit, Amount: decimal.NewFromFloat(33.33)},
		}
		assert.NoError(t, ValidateBalanced(movements))
	})

	t.Run("empty set is rejected", func(t *testing.T) {
		assert.Error(t, ValidateBalanced(nil))
	})
}

func TestAccountTypeClassification(t *testing.T) {
	for _, at := range []AccountType{AccountTypePrincipal, AccountTypeProfit, AccountTypeReferral, AccountTypeLocked} {
		assert.True(t, at.IsUserAccountType(), "%s should be a user account type", at)
		assert.False(t, at.IsSystemAccountType())
	}
	for _, at := range []AccountType{AccountTypeGatewayPool, AccountTypeAdminBank, AccountTypeProfitPool} {
		assert.True(t, at.IsSystemAccountType(), "%s should be a system account type", at)
		assert.False(t, at.IsUserAccountType())
	}
	assert.Error(t, AccountType("savings").Validate())
}
