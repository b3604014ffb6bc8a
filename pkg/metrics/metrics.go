package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger and settlement counters. Registered once on the default registry and
// exposed via /metrics.
var (
	TransactionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_recorded_total",
		Help: "Ledger transactions recorded, by business type",
	}, []string{"type"})

	DepositsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_confirmed_total",
		Help: "Deposit confirmations that won the conditional transition",
	})

	DepositsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_duplicate_total",
		Help: "Deposit confirmations short-circuited as already processed",
	})

	WithdrawalsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "withdrawals_requested_total",
		Help: "Withdrawal requests that locked funds",
	})

	DistributionRecipients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distribution_recipients_total",
		Help: "Wallets credited by profit distribution runs",
	})

	SettlementWallets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_wallets_swept_total",
		Help: "Wallets swept into pending withdrawals",
	})

	OutboxDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Outbox events dispatched, by outcome",
	}, []string{"outcome"})

	RecordDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_record_duration_seconds",
		Help:    "Wall time of atomic ledger record operations",
		Buckets: prometheus.DefBuckets,
	})
)
