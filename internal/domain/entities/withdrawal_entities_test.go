package entities

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanWithdrawalSources(t *testing.T) {
	wallet := &Wallet{
		UserID:    uuid.New(),
		Profit:    decimal.NewFromInt(100),
		Referral:  decimal.NewFromInt(50),
		Principal: decimal.NewFromInt(1000),
	}

	t.Run("drains profit before referral before principal", func(t *testing.T) {
		plan, err := PlanWithdrawalSources(wallet, decimal.NewFromInt(120))
		require.NoError(t, err)
		assert.True(t, plan.FromProfit.Equal(decimal.NewFromInt(100)))
		assert.True(t, plan.FromReferral.Equal(decimal.NewFromInt(20)))
		assert.True(t, plan.FromPrincipal.IsZero())
		assert.True(t, plan.Total().Equal(decimal.NewFromInt(120)))
	})

	t.Run("reaches into principal when earnings run out", func(t *testing.T) {
		plan, err := PlanWithdrawalSources(wallet, decimal.NewFromInt(400))
		require.NoError(t, err)
		assert.True(t, plan.FromProfit.Equal(decimal.NewFromInt(100)))
		assert.True(t, plan.FromReferral.Equal(decimal.NewFromInt(50)))
		assert.True(t, plan.FromPrincipal.Equal(decimal.NewFromInt(250)))
	})

	t.Run("exact full drain succeeds", func(t *testing.T) {
		plan, err := PlanWithdrawalSources(wallet, decimal.NewFromInt(1150))
		require.NoError(t, err)
		assert.True(t, plan.Total().Equal(decimal.NewFromInt(1150)))
	})

	t.Run("shortfall fails with no partial plan", func(t *testing.T) {
		plan, err := PlanWithdrawalSources(wallet, decimal.NewFromFloat(1150.01))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, plan.Total().IsZero())
	})

	t.Run("locked bucket is not liquidatable", func(t *testing.T) {
		lockedOnly := &Wallet{UserID: uuid.New(), Locked: decimal.NewFromInt(500)}
		_, err := PlanWithdrawalSources(lockedOnly, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		_, err := PlanWithdrawalSources(wallet, decimal.Zero)
		assert.Error(t, err)
	})
}

func TestWithdrawalValidate(t *testing.T) {
	w := &Withdrawal{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Amount:        decimal.NewFromInt(120),
		Status:        WithdrawalStatusPending,
		FromProfit:    decimal.NewFromInt(100),
		FromReferral:  decimal.NewFromInt(20),
		FromPrincipal: decimal.Zero,
	}
	assert.NoError(t, w.Validate())

	w.FromReferral = decimal.NewFromInt(10)
	assert.Error(t, w.Validate(), "breakdown must cover the amount")
}
