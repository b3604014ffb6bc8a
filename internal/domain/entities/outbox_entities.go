package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery state of an outbound event
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxEventType enumerates the notifications the ledger paths emit
type OutboxEventType string

const (
	OutboxEventDepositConfirmed    OutboxEventType = "deposit_confirmed"
	OutboxEventReferralBonus       OutboxEventType = "referral_bonus"
	OutboxEventWithdrawalRequested OutboxEventType = "withdrawal_requested"
	OutboxEventWithdrawalDecided   OutboxEventType = "withdrawal_decided"
	OutboxEventProfitDistributed   OutboxEventType = "profit_distributed"
)

// OutboxEvent is a queued notification task. The ledger paths enqueue and
// commit; a worker delivers later. Delivery failures never reach the ledger.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	EventType OutboxEventType `json:"event_type" db:"event_type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Status    OutboxStatus    `json:"status" db:"status"`
	Attempts  int             `json:"attempts" db:"attempts"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
}

// NewOutboxEvent builds a pending event with a marshaled payload
func NewOutboxEvent(userID uuid.UUID, eventType OutboxEventType, payload any) (*OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		Payload:   raw,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now(),
	}, nil
}
