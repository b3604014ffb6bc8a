package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// AuditReport summarizes a full-journal consistency sweep
type AuditReport struct {
	TotalDebits            decimal.Decimal `json:"total_debits"`
	TotalCredits           decimal.Decimal `json:"total_credits"`
	Balanced               bool            `json:"balanced"`
	UnbalancedTransactions []uuid.UUID     `json:"unbalanced_transactions"`
	WalletsChecked         int             `json:"wallets_checked"`
	InconsistentWallets    []uuid.UUID     `json:"inconsistent_wallets"`
	ConfirmedDeposits      decimal.Decimal `json:"confirmed_deposits"`
	WalletTotalDeposited   decimal.Decimal `json:"wallet_total_deposited"`
	DepositsReconciled     bool            `json:"deposits_reconciled"`
}

// Audit replays the journal and compares it against the materialized wallets.
// The journal is the source of truth: a wallet that disagrees with its fold is
// flagged, never silently rewritten.
func (s *Service) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{}

	debits, credits, err := s.ledgerRepo.GetTotalDebitsAndCredits(ctx)
	if err != nil {
		return nil, err
	}
	report.TotalDebits = debits
	report.TotalCredits = credits
	report.Balanced = debits.Sub(credits).Abs().LessThanOrEqual(entities.BalanceEpsilon)

	unbalanced, err := s.ledgerRepo.ListUnbalancedTransactions(ctx, entities.BalanceEpsilon)
	if err != nil {
		return nil, err
	}
	report.UnbalancedTransactions = unbalanced
	if len(unbalanced) > 0 {
		report.Balanced = false
	}

	users, err := s.ledgerRepo.ListJournalUsers(ctx)
	if err != nil {
		return nil, err
	}
	totalDeposited := decimal.Zero
	for _, userID := range users {
		consistent, deposited, err := s.checkWallet(ctx, userID)
		if err != nil {
			return nil, err
		}
		report.WalletsChecked++
		totalDeposited = totalDeposited.Add(deposited)
		if !consistent {
			report.InconsistentWallets = append(report.InconsistentWallets, userID)
			s.logger.Warn("Wallet diverges from journal fold", "user_id", userID)
		}
	}

	// Cross-check the deposit intents against the wallets' lifetime counters.
	// Every confirmed intent must show up as exactly one deposited credit.
	confirmed, err := s.depositRepo.GetTotalConfirmed(ctx)
	if err != nil {
		return nil, err
	}
	report.ConfirmedDeposits = confirmed
	report.WalletTotalDeposited = totalDeposited
	report.DepositsReconciled = confirmed.Sub(totalDeposited).Abs().LessThanOrEqual(entities.BalanceEpsilon)
	if !report.DepositsReconciled {
		s.logger.Warn("Confirmed deposits diverge from wallet counters",
			"confirmed", confirmed.String(),
			"wallet_total_deposited", totalDeposited.String())
	}

	return report, nil
}

// checkWallet folds a user's entries from scratch and compares each bucket and
// lifetime counter against the stored wallet row. Also returns the stored
// lifetime deposit counter for the journal-wide reconciliation.
func (s *Service) checkWallet(ctx context.Context, userID uuid.UUID) (bool, decimal.Decimal, error) {
	entries, err := s.ledgerRepo.GetEntriesByUser(ctx, userID)
	if err != nil {
		return false, decimal.Zero, err
	}

	folded, err := entities.FoldEntries(userID, entries)
	if err != nil {
		return false, decimal.Zero, err
	}

	stored, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, decimal.Zero, err
	}

	same := func(a, b decimal.Decimal) bool {
		return a.Sub(b).Abs().LessThanOrEqual(entities.BalanceEpsilon)
	}

	consistent := same(folded.Principal, stored.Principal) &&
		same(folded.Profit, stored.Profit) &&
		same(folded.Referral, stored.Referral) &&
		same(folded.Locked, stored.Locked) &&
		same(folded.TotalDeposited, stored.TotalDeposited) &&
		same(folded.TotalWithdrawn, stored.TotalWithdrawn) &&
		same(folded.TotalProfit, stored.TotalProfit)

	return consistent, stored.TotalDeposited, nil
}
