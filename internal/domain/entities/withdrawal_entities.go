package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the admin decision state of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// Validate checks if the withdrawal status is valid
func (s WithdrawalStatus) Validate() error {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected:
		return nil
	default:
		return fmt.Errorf("invalid withdrawal status: %s", s)
	}
}

// Withdrawal is a pending payout request. The source breakdown is persisted so
// rejection can reverse the exact sourcing, never an approximation.
type Withdrawal struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"user_id" db:"user_id"`
	TransactionID uuid.UUID        `json:"transaction_id" db:"transaction_id"`
	Amount        decimal.Decimal  `json:"amount" db:"amount"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	FromProfit    decimal.Decimal  `json:"from_profit" db:"from_profit"`
	FromReferral  decimal.Decimal  `json:"from_referral" db:"from_referral"`
	FromPrincipal decimal.Decimal  `json:"from_principal" db:"from_principal"`
	Swept         bool             `json:"swept" db:"swept"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	DecidedAt     *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
}

// Validate validates the withdrawal record
func (w *Withdrawal) Validate() error {
	if w.ID == uuid.Nil {
		return fmt.Errorf("withdrawal ID is required")
	}
	if w.UserID == uuid.Nil {
		return fmt.Errorf("withdrawal user ID is required")
	}
	if !w.Amount.IsPositive() {
		return fmt.Errorf("withdrawal amount must be positive")
	}
	if err := w.Status.Validate(); err != nil {
		return err
	}
	breakdown := w.FromProfit.Add(w.FromReferral).Add(w.FromPrincipal)
	if !breakdown.Sub(w.Amount).Abs().LessThanOrEqual(BalanceEpsilon) {
		return fmt.Errorf("source breakdown %s does not cover amount %s", breakdown.String(), w.Amount.String())
	}
	return nil
}

// Breakdown returns the persisted sourcing as a withdrawal detail payload
func (w *Withdrawal) Breakdown() WithdrawalDetail {
	return WithdrawalDetail{
		FromProfit:    w.FromProfit,
		FromReferral:  w.FromReferral,
		FromPrincipal: w.FromPrincipal,
		Swept:         w.Swept,
	}
}

// SourcePlan is the result of the withdrawal waterfall: how much to take from
// each bucket, drained in fixed priority order.
type SourcePlan struct {
	FromProfit    decimal.Decimal
	FromReferral  decimal.Decimal
	FromPrincipal decimal.Decimal
}

// Total returns the planned total
func (p SourcePlan) Total() decimal.Decimal {
	return p.FromProfit.Add(p.FromReferral).Add(p.FromPrincipal)
}

// PlanWithdrawalSources drains profit first, then referral, then principal,
// each bucket only as far as needed. A shortfall is ErrInsufficientFunds and
// leaves no state to undo.
func PlanWithdrawalSources(w *Wallet, amount decimal.Decimal) (SourcePlan, error) {
	if !amount.IsPositive() {
		return SourcePlan{}, fmt.Errorf("withdrawal amount must be positive")
	}

	var plan SourcePlan
	remaining := amount

	plan.FromProfit = decimal.Min(remaining, w.Profit)
	remaining = remaining.Sub(plan.FromProfit)

	plan.FromReferral = decimal.Min(remaining, w.Referral)
	remaining = remaining.Sub(plan.FromReferral)

	plan.FromPrincipal = decimal.Min(remaining, w.Principal)
	remaining = remaining.Sub(plan.FromPrincipal)

	if remaining.IsPositive() {
		return SourcePlan{}, fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientFunds, amount.String(), w.Profit.Add(w.Referral).Add(w.Principal).String())
	}

	return plan, nil
}
