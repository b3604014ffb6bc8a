package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceEpsilon is the rounding tolerance for the double-entry invariant.
// Debits and credits of a transaction must agree within one cent.
var BalanceEpsilon = decimal.NewFromFloat(0.01)

// AccountType represents the type of ledger account
type AccountType string

const (
	// User account types (wallet buckets)
	AccountTypePrincipal AccountType = "principal" // Invested capital
	AccountTypeProfit    AccountType = "profit"    // Withdrawable earnings
	AccountTypeReferral  AccountType = "referral"  // Referral bonuses
	AccountTypeLocked    AccountType = "locked"    // Funds held pending withdrawal approval

	// System account types (pool accounts, never materialized into a wallet)
	AccountTypeGatewayPool AccountType = "gateway_pool" // Funds received via the payment gateway
	AccountTypeAdminBank   AccountType = "admin_bank"   // Platform settlement account
	AccountTypeProfitPool  AccountType = "profit_pool"  // Declared profit awaiting distribution
)

// IsUserAccountType returns true if the account type belongs to a user wallet
func (a AccountType) IsUserAccountType() bool {
	return a == AccountTypePrincipal ||
		a == AccountTypeProfit ||
		a == AccountTypeReferral ||
		a == AccountTypeLocked
}

// IsSystemAccountType returns true if the account type is system-level
func (a AccountType) IsSystemAccountType() bool {
	return a == AccountTypeGatewayPool ||
		a == AccountTypeAdminBank ||
		a == AccountTypeProfitPool
}

// Validate checks if the account type is valid
func (a AccountType) Validate() error {
	switch a {
	case AccountTypePrincipal, AccountTypeProfit, AccountTypeReferral, AccountTypeLocked,
		AccountTypeGatewayPool, AccountTypeAdminBank, AccountTypeProfitPool:
		return nil
	default:
		return fmt.Errorf("invalid account type: %s", a)
	}
}

// Direction represents debit or credit
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Validate checks if the direction is valid
func (d Direction) Validate() error {
	switch d {
	case DirectionDebit, DirectionCredit:
		return nil
	default:
		return fmt.Errorf("invalid direction: %s", d)
	}
}

// ReferenceType describes the business reason for a ledger movement
type ReferenceType string

const (
	ReferenceTypeDeposit            ReferenceType = "deposit"
	ReferenceTypeWithdrawalRequest  ReferenceType = "withdrawal_request"
	ReferenceTypeWithdrawalApproval ReferenceType = "withdrawal_approval"
	ReferenceTypeWithdrawalReversal ReferenceType = "withdrawal_reversal"
	ReferenceTypeProfitShare        ReferenceType = "profit_share"
	ReferenceTypeReferralBonus      ReferenceType = "referral_bonus"
	ReferenceTypeSettlementSweep    ReferenceType = "settlement_sweep"
)

// Validate checks if the reference type is valid
func (r ReferenceType) Validate() error {
	switch r {
	case ReferenceTypeDeposit, ReferenceTypeWithdrawalRequest, ReferenceTypeWithdrawalApproval,
		ReferenceTypeWithdrawalReversal, ReferenceTypeProfitShare, ReferenceTypeReferralBonus,
		ReferenceTypeSettlementSweep:
		return nil
	default:
		return fmt.Errorf("invalid reference type: %s", r)
	}
}

// LedgerEntry is one immutable journal line. Entries are append-only:
// corrections are new reversing entries, never updates.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	TransactionID uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	AccountOwner  *uuid.UUID      `json:"account_owner,omitempty" db:"account_owner"`
	AccountType   AccountType     `json:"account_type" db:"account_type"`
	Direction     Direction       `json:"direction" db:"direction"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	ReferenceType ReferenceType   `json:"reference_type" db:"reference_type"`
	ReferenceID   *uuid.UUID      `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate validates the ledger entry
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}
	if e.TransactionID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if err := e.AccountType.Validate(); err != nil {
		return err
	}
	if err := e.Direction.Validate(); err != nil {
		return err
	}
	if err := e.ReferenceType.Validate(); err != nil {
		return err
	}
	if e.AccountType.IsUserAccountType() && e.AccountOwner == nil {
		return fmt.Errorf("user account entry requires an owner")
	}
	if e.AccountType.IsSystemAccountType() && e.AccountOwner != nil {
		return fmt.Errorf("system account entry cannot have an owner")
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("entry amount cannot be negative")
	}
	if e.Amount.IsZero() {
		return fmt.Errorf("entry amount cannot be zero")
	}
	return nil
}

// IsDebit returns true if this is a debit entry
func (e *LedgerEntry) IsDebit() bool {
	return e.Direction == DirectionDebit
}

// IsCredit returns true if this is a credit entry
func (e *LedgerEntry) IsCredit() bool {
	return e.Direction == DirectionCredit
}

// Movement is the caller-facing description of one journal line before it is
// persisted. Owner is nil for system pool accounts.
type Movement struct {
	Owner       *uuid.UUID
	AccountType AccountType
	Direction   Direction
	Amount      decimal.Decimal
}

// Validate validates a single movement
func (m *Movement) Validate() error {
	if err := m.AccountType.Validate(); err != nil {
		return err
	}
	if err := m.Direction.Validate(); err != nil {
		return err
	}
	if m.AccountType.IsUserAccountType() && m.Owner == nil {
		return fmt.Errorf("movement on %s requires an owner", m.AccountType)
	}
	if m.AccountType.IsSystemAccountType() && m.Owner != nil {
		return fmt.Errorf("movement on %s cannot have an owner", m.AccountType)
	}
	if m.Amount.IsNegative() {
		return fmt.Errorf("movement amount cannot be negative")
	}
	if m.Amount.IsZero() {
		return fmt.Errorf("movement amount cannot be zero")
	}
	return nil
}

// ValidateBalanced checks the double-entry invariant over a movement set:
// the debit and credit sums must agree within BalanceEpsilon. An imbalance
// is a programming error and is never silently corrected.
func ValidateBalanced(movements []Movement) error {
	if len(movements) == 0 {
		return fmt.Errorf("%w: empty movement set", ErrLedgerImbalance)
	}

	var debits, credits decimal.Decimal
	for i := range movements {
		if err := movements[i].Validate(); err != nil {
			return fmt.Errorf("movement %d: %w", i, err)
		}
		switch movements[i].Direction {
		case DirectionDebit:
			debits = debits.Add(movements[i].Amount)
		case DirectionCredit:
			credits = credits.Add(movements[i].Amount)
		}
	}

	if debits.Sub(credits).Abs().GreaterThan(BalanceEpsilon) {
		return fmt.Errorf("%w: debits=%s credits=%s", ErrLedgerImbalance, debits.String(), credits.String())
	}

	return nil
}
