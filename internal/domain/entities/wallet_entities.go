package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the materialized per-user balance view. Its bucket values always
// equal the fold of the user's ledger entries to date; only the ledger
// service's fold may write them. Created lazily on first credit, never deleted.
type Wallet struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Principal      decimal.Decimal `json:"principal" db:"principal"`
	Profit         decimal.Decimal `json:"profit" db:"profit"`
	Referral       decimal.Decimal `json:"referral" db:"referral"`
	Locked         decimal.Decimal `json:"locked" db:"locked"`
	TotalDeposited decimal.Decimal `json:"total_deposited" db:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn" db:"total_withdrawn"`
	TotalProfit    decimal.Decimal `json:"total_profit" db:"total_profit"`
	// Preference controls profit-share routing: compound into principal or
	// pay out into the profit bucket.
	Preference PayoutPreference `json:"payout_preference" db:"payout_preference"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}

// Bucket returns the balance of the named bucket
func (w *Wallet) Bucket(accountType AccountType) (decimal.Decimal, error) {
	switch accountType {
	case AccountTypePrincipal:
		return w.Principal, nil
	case AccountTypeProfit:
		return w.Profit, nil
	case AccountTypeReferral:
		return w.Referral, nil
	case AccountTypeLocked:
		return w.Locked, nil
	default:
		return decimal.Zero, fmt.Errorf("not a wallet bucket: %s", accountType)
	}
}

// Validate checks wallet invariants: every bucket is component-wise non-negative
func (w *Wallet) Validate() error {
	if w.UserID == uuid.Nil {
		return fmt.Errorf("wallet user ID is required")
	}
	for _, b := range []struct {
		name  AccountType
		value decimal.Decimal
	}{
		{AccountTypePrincipal, w.Principal},
		{AccountTypeProfit, w.Profit},
		{AccountTypeReferral, w.Referral},
		{AccountTypeLocked, w.Locked},
	} {
		if b.value.IsNegative() {
			return fmt.Errorf("wallet bucket %s is negative: %s", b.name, b.value.String())
		}
	}
	return nil
}

// TotalBalance returns the sum of all buckets
func (w *Wallet) TotalBalance() decimal.Decimal {
	return w.Principal.Add(w.Profit).Add(w.Referral).Add(w.Locked)
}

// Apply folds one ledger entry into the wallet. Credits increase the bucket,
// debits decrease it; lifetime counters move with the reference type. A debit
// below zero fails rather than clamping.
func (w *Wallet) Apply(entry *LedgerEntry) error {
	if !entry.AccountType.IsUserAccountType() {
		return fmt.Errorf("cannot fold system account entry %s into a wallet", entry.AccountType)
	}
	if entry.AccountOwner == nil || *entry.AccountOwner != w.UserID {
		return fmt.Errorf("entry owner does not match wallet user")
	}

	current, err := w.Bucket(entry.AccountType)
	if err != nil {
		return err
	}

	var next decimal.Decimal
	switch entry.Direction {
	case DirectionCredit:
		next = current.Add(entry.Amount)
	case DirectionDebit:
		next = current.Sub(entry.Amount)
		if next.IsNegative() {
			return fmt.Errorf("%w: bucket %s has %s, debit of %s",
				ErrInsufficientFunds, entry.AccountType, current.String(), entry.Amount.String())
		}
	default:
		return fmt.Errorf("invalid direction: %s", entry.Direction)
	}

	switch entry.AccountType {
	case AccountTypePrincipal:
		w.Principal = next
	case AccountTypeProfit:
		w.Profit = next
	case AccountTypeReferral:
		w.Referral = next
	case AccountTypeLocked:
		w.Locked = next
	}

	// Lifetime counters are monotonic and keyed off the business reason,
	// not the bucket touched.
	if entry.IsCredit() {
		switch entry.ReferenceType {
		case ReferenceTypeDeposit:
			if entry.AccountType == AccountTypePrincipal || entry.AccountType == AccountTypeLocked {
				w.TotalDeposited = w.TotalDeposited.Add(entry.Amount)
			}
		case ReferenceTypeProfitShare:
			if entry.AccountType == AccountTypeProfit || entry.AccountType == AccountTypePrincipal {
				w.TotalProfit = w.TotalProfit.Add(entry.Amount)
			}
		case ReferenceTypeWithdrawalApproval:
			// Approval credits admin_bank, not a wallet bucket; counted below.
		}
	}
	if entry.IsDebit() && entry.ReferenceType == ReferenceTypeWithdrawalApproval &&
		entry.AccountType == AccountTypeLocked {
		w.TotalWithdrawn = w.TotalWithdrawn.Add(entry.Amount)
	}

	return nil
}

// FoldEntries replays a user's full journal into a fresh wallet. Used by the
// consistency checker to verify the materialized view.
func FoldEntries(userID uuid.UUID, entries []*LedgerEntry) (*Wallet, error) {
	w := &Wallet{
		ID:         uuid.New(),
		UserID:     userID,
		Preference: PreferencePayout,
	}
	for _, entry := range entries {
		if err := w.Apply(entry); err != nil {
			return nil, fmt.Errorf("fold entry %s: %w", entry.ID, err)
		}
	}
	return w, nil
}
