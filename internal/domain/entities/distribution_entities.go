package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutPreference controls where a user's profit share goes
type PayoutPreference string

const (
	PreferenceCompound PayoutPreference = "compound" // Reinvest into principal and grow the flexible position
	PreferencePayout   PayoutPreference = "payout"   // Credit the withdrawable profit bucket
)

// Validate checks if the preference is valid
func (p PayoutPreference) Validate() error {
	switch p {
	case PreferenceCompound, PreferencePayout:
		return nil
	default:
		return fmt.Errorf("invalid payout preference: %s", p)
	}
}

// DistributionStatus represents the state of a distribution run
type DistributionStatus string

const (
	DistributionStatusRunning   DistributionStatus = "running"
	DistributionStatusCompleted DistributionStatus = "completed"
)

// ProfitDistribution records one performance period's distribution run. The
// unique period column is the guard against double-distributing.
type ProfitDistribution struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	Period           string             `json:"period" db:"period"`
	DeclaredProfit   decimal.Decimal    `json:"declared_profit" db:"declared_profit"`
	AdminShare       decimal.Decimal    `json:"admin_share" db:"admin_share"`
	UserPool         decimal.Decimal    `json:"user_pool" db:"user_pool"`
	Recipients       int                `json:"recipients" db:"recipients"`
	TotalDistributed decimal.Decimal    `json:"total_distributed" db:"total_distributed"`
	Status           DistributionStatus `json:"status" db:"status"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// ShareResult is one eligible wallet's computed slice of the user pool
type ShareResult struct {
	UserID uuid.UUID
	Gross  decimal.Decimal
	Tax    decimal.Decimal
	Net    decimal.Decimal
}

// SplitDeclaredProfit splits a declared profit into the platform's share and
// the user-facing pool.
func SplitDeclaredProfit(declared, adminRate decimal.Decimal) (adminShare, userPool decimal.Decimal) {
	adminShare = declared.Mul(adminRate).Round(2)
	userPool = declared.Sub(adminShare)
	return adminShare, userPool
}

// ComputeShare computes one wallet's pro-rata slice of the user pool and the
// tax withheld on it. Shares round down so the aggregate of all net shares
// can never exceed the pool; the rounding residual is not redistributed.
func ComputeShare(principal, totalPrincipal, userPool, taxThreshold, taxRate decimal.Decimal) (gross, tax, net decimal.Decimal, err error) {
	if !totalPrincipal.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero,
			fmt.Errorf("total invested principal must be positive")
	}

	gross = principal.Mul(userPool).Div(totalPrincipal).RoundDown(2)
	if gross.GreaterThan(taxThreshold) {
		tax = gross.Mul(taxRate).Round(2)
	}
	net = gross.Sub(tax)
	return gross, tax, net, nil
}
