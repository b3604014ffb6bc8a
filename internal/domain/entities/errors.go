package entities

import "errors"

// Domain error taxonomy. Handlers match these with errors.Is and map them to
// stable error codes so callers can tell "nothing happened" (retry-safe) from
// "already happened" (no retry needed) from "fatal, contact support".
var (
	// ErrLedgerImbalance means a caller constructed an unbalanced movement set.
	// This is a programming error: the operation aborts and is never corrected.
	ErrLedgerImbalance = errors.New("ledger imbalance")

	// ErrInsufficientFunds means the user's buckets cannot cover the request.
	// No state changes.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyProcessed means a duplicate confirmation lost the conditional
	// status transition. Treated as success-equivalent.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrAlreadyDistributed means the performance period was distributed before.
	ErrAlreadyDistributed = errors.New("period already distributed")

	// ErrSignatureMismatch means a payment confirmation failed authenticity.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrWalletNotFound means a wallet aggregate is missing where one is
	// required. Crediting paths upsert instead of returning this.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrDistributionInProgress means another distribution run holds the
	// advisory lock.
	ErrDistributionInProgress = errors.New("distribution already in progress")
)
