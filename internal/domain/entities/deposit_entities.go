package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositStatus represents the state of an external payment intent
type DepositStatus string

const (
	DepositStatusPending DepositStatus = "pending"
	DepositStatusSuccess DepositStatus = "success"
	DepositStatusFailed  DepositStatus = "failed"
)

// Validate checks if the deposit status is valid
func (s DepositStatus) Validate() error {
	switch s {
	case DepositStatusPending, DepositStatusSuccess, DepositStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid deposit status: %s", s)
	}
}

// InvestmentPlan determines which bucket a confirmed deposit credits
type InvestmentPlan string

const (
	PlanFlexible InvestmentPlan = "flexible" // Unlocked, credits principal
	PlanLocked   InvestmentPlan = "locked"   // Term-locked, credits the locked bucket
)

// Validate checks if the plan is valid
func (p InvestmentPlan) Validate() error {
	switch p {
	case PlanFlexible, PlanLocked:
		return nil
	default:
		return fmt.Errorf("invalid investment plan: %s", p)
	}
}

// Deposit is an external-payment intent created at checkout. Exactly one
// successful credit may ever originate from it, enforced by the conditional
// pending→success transition in the repository.
type Deposit struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	OrderID     string          `json:"order_id" db:"order_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Plan        InvestmentPlan  `json:"plan" db:"plan"`
	ReferrerID  *uuid.UUID      `json:"referrer_id,omitempty" db:"referrer_id"`
	Status      DepositStatus   `json:"status" db:"status"`
	PaymentID   *string         `json:"payment_id,omitempty" db:"payment_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// Validate validates the deposit record
func (d *Deposit) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("deposit ID is required")
	}
	if d.UserID == uuid.Nil {
		return fmt.Errorf("deposit user ID is required")
	}
	if d.OrderID == "" {
		return fmt.Errorf("deposit order ID is required")
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive")
	}
	if err := d.Plan.Validate(); err != nil {
		return err
	}
	return d.Status.Validate()
}

// CreditBucket returns the wallet bucket the deposit credits on confirmation
func (d *Deposit) CreditBucket() AccountType {
	if d.Plan == PlanLocked {
		return AccountTypeLocked
	}
	return AccountTypePrincipal
}
