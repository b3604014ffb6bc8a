package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the business event behind a transaction
type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
	TransactionTypeProfit        TransactionType = "profit"
	TransactionTypeReferralBonus TransactionType = "referral_bonus"
)

// Validate checks if the transaction type is valid
func (t TransactionType) Validate() error {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeProfit, TransactionTypeReferralBonus:
		return nil
	default:
		return fmt.Errorf("invalid transaction type: %s", t)
	}
}

// TransactionStatus represents the lifecycle state of a transaction.
// Success and failed are terminal.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// Validate checks if the transaction status is valid
func (s TransactionStatus) Validate() error {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid transaction status: %s", s)
	}
}

// IsTerminal returns true once the status can no longer change
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// SystemUserID identifies platform-level transactions in the journal, such
// as the profit pool intake. No real user ever gets this ID.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// TransactionDetail is the closed set of per-type payloads. Each transaction
// type carries exactly the fields it needs instead of a free-form map.
type TransactionDetail interface {
	DetailKind() TransactionType
}

// DepositDetail accompanies deposit transactions
type DepositDetail struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Plan      string `json:"plan"`
}

func (DepositDetail) DetailKind() TransactionType { return TransactionTypeDeposit }

// WithdrawalDetail records the exact bucket sourcing so rejection can reverse it
type WithdrawalDetail struct {
	FromProfit    decimal.Decimal `json:"from_profit"`
	FromReferral  decimal.Decimal `json:"from_referral"`
	FromPrincipal decimal.Decimal `json:"from_principal"`
	Swept         bool            `json:"swept,omitempty"`
}

func (WithdrawalDetail) DetailKind() TransactionType { return TransactionTypeWithdrawal }

// Total returns the full sourced amount
func (d WithdrawalDetail) Total() decimal.Decimal {
	return d.FromProfit.Add(d.FromReferral).Add(d.FromPrincipal)
}

// ProfitShareDetail accompanies profit transactions
type ProfitShareDetail struct {
	Period      string          `json:"period"`
	GrossShare  decimal.Decimal `json:"gross_share"`
	TaxWithheld decimal.Decimal `json:"tax_withheld"`
	Compounded  bool            `json:"compounded"`
}

func (ProfitShareDetail) DetailKind() TransactionType { return TransactionTypeProfit }

// ReferralBonusDetail accompanies referral bonus transactions
type ReferralBonusDetail struct {
	ReferredUserID uuid.UUID       `json:"referred_user_id"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	BonusRate      decimal.Decimal `json:"bonus_rate"`
}

func (ReferralBonusDetail) DetailKind() TransactionType { return TransactionTypeReferralBonus }

// Transaction is the business envelope for one economic event. It is created
// in the same atomic unit as its ledger entries.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	UserID        uuid.UUID         `json:"user_id" db:"user_id"`
	Type          TransactionType   `json:"type" db:"tx_type"`
	Status        TransactionStatus `json:"status" db:"status"`
	Amount        decimal.Decimal   `json:"amount" db:"amount"`
	Fee           decimal.Decimal   `json:"fee" db:"fee"`
	NetAmount     decimal.Decimal   `json:"net_amount" db:"net_amount"`
	ReferenceType ReferenceType     `json:"reference_type" db:"reference_type"`
	ReferenceID   *uuid.UUID        `json:"reference_id,omitempty" db:"reference_id"`
	Description   string            `json:"description" db:"description"`
	Detail        json.RawMessage   `json:"detail,omitempty" db:"detail"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Validate validates the transaction envelope
func (t *Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == uuid.Nil {
		return fmt.Errorf("transaction user ID is required")
	}
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if err := t.ReferenceType.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction amount cannot be negative")
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("transaction fee cannot be negative")
	}
	return nil
}

// SetDetail marshals a typed detail payload onto the envelope. The payload
// kind must match the transaction type.
func (t *Transaction) SetDetail(detail TransactionDetail) error {
	if detail.DetailKind() != t.Type {
		return fmt.Errorf("detail kind %s does not match transaction type %s", detail.DetailKind(), t.Type)
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	t.Detail = raw
	return nil
}

// WithdrawalDetail decodes the detail payload of a withdrawal transaction
func (t *Transaction) WithdrawalDetail() (*WithdrawalDetail, error) {
	if t.Type != TransactionTypeWithdrawal {
		return nil, fmt.Errorf("transaction %s is not a withdrawal", t.ID)
	}
	var detail WithdrawalDetail
	if err := json.Unmarshal(t.Detail, &detail); err != nil {
		return nil, fmt.Errorf("unmarshal withdrawal detail: %w", err)
	}
	return &detail, nil
}

// MarkSuccess marks the transaction as succeeded
func (t *Transaction) MarkSuccess() {
	now := time.Now()
	t.Status = TransactionStatusSuccess
	t.CompletedAt = &now
}

// MarkFailed marks the transaction as failed
func (t *Transaction) MarkFailed() {
	now := time.Now()
	t.Status = TransactionStatusFailed
	t.CompletedAt = &now
}
