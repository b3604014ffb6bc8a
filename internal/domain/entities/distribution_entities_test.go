package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDeclaredProfit(t *testing.T) {
	adminShare, userPool := SplitDeclaredProfit(decimal.NewFromInt(1000), decimal.NewFromFloat(0.20))
	assert.True(t, adminShare.Equal(decimal.NewFromInt(200)))
	assert.True(t, userPool.Equal(decimal.NewFromInt(800)))

	// The split always reassembles to the declared amount, including when the
	// share rounds.
	declared := decimal.NewFromFloat(333.33)
	adminShare, userPool = SplitDeclaredProfit(declared, decimal.NewFromFloat(0.20))
	assert.True(t, adminShare.Add(userPool).Equal(declared))
}

func TestComputeShare(t *testing.T) {
	threshold := decimal.NewFromInt(100)
	taxRate := decimal.NewFromFloat(0.10)

	t.Run("pro-rata slice above threshold is taxed", func(t *testing.T) {
		// 300 of 1000 invested, pool of 900: gross 270, tax 27, net 243
		gross, tax, net, err := ComputeShare(
			decimal.NewFromInt(300), decimal.NewFromInt(1000),
			decimal.NewFromInt(900), threshold, taxRate)
		require.NoError(t, err)
		assert.True(t, gross.Equal(decimal.NewFromInt(270)))
		assert.True(t, tax.Equal(decimal.NewFromInt(27)))
		assert.True(t, net.Equal(decimal.NewFromInt(243)))
	})

	t.Run("share at or below threshold is untaxed", func(t *testing.T) {
		// 100 of 1000 invested, pool of 900: gross 90, under the threshold
		gross, tax, net, err := ComputeShare(
			decimal.NewFromInt(100), decimal.NewFromInt(1000),
			decimal.NewFromInt(900), threshold, taxRate)
		require.NoError(t, err)
		assert.True(t, gross.Equal(decimal.NewFromInt(90)))
		assert.True(t, tax.IsZero())
		assert.True(t, net.Equal(gross))
	})

	t.Run("shares round down so the pool cannot be overdrawn", func(t *testing.T) {
		// Three equal holders of a 100 pool: 3 x 33.33 <= 100
		third := decimal.NewFromInt(1)
		total := decimal.NewFromInt(3)
		pool := decimal.NewFromInt(100)

		gross, _, _, err := ComputeShare(third, total, pool, threshold, taxRate)
		require.NoError(t, err)
		assert.True(t, gross.Equal(decimal.NewFromFloat(33.33)))
		assert.True(t, gross.Mul(decimal.NewFromInt(3)).LessThanOrEqual(pool))
	})

	t.Run("zero total principal is rejected", func(t *testing.T) {
		_, _, _, err := ComputeShare(
			decimal.NewFromInt(100), decimal.Zero,
			decimal.NewFromInt(900), threshold, taxRate)
		assert.Error(t, err)
	})
}
